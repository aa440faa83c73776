package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/fund-ledger/internal/errors"
	"github.com/fund-ledger/internal/ledger"
	"github.com/fund-ledger/internal/models"
	"github.com/fund-ledger/internal/service"
	"github.com/fund-ledger/internal/sig"
	"github.com/fund-ledger/internal/types"
)

const testCaller = "0x1111111111111111111111111111111111111111"

// TestCreateFund_InvalidJSON tests handling of malformed JSON
func TestCreateFund_InvalidJSON(t *testing.T) {
	server := createTestServer()

	req := httptest.NewRequest("POST", "/api/funds", bytes.NewReader([]byte("invalid json")))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Caller-Address", testCaller)

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

// TestCreateFund_DefaultsManagerToCaller tests that an omitted manager falls
// back to the authenticated caller
func TestCreateFund_DefaultsManagerToCaller(t *testing.T) {
	registry := &mockRegistryService{}
	var captured *service.CreateFundInput
	registry.createFundFunc = func(ctx context.Context, input *service.CreateFundInput) (*models.Fund, error) {
		captured = input
		return testFund("fund-123"), nil
	}

	server := createTestServer()
	server.registry = registry

	body := map[string]interface{}{
		"name":              "Alpha Fund",
		"symbol":            "ALPHA",
		"initialSharePrice": "10000000000000000",
	}
	w := doRequest(t, server, "POST", "/api/funds", body, testCaller)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	if captured == nil || captured.Manager != testCaller {
		t.Errorf("Expected manager to default to caller, got %+v", captured)
	}
}

// TestCreateFund_MissingCaller tests rejection when no caller header is set
func TestCreateFund_MissingCaller(t *testing.T) {
	server := createTestServer()

	body := map[string]interface{}{"name": "Alpha", "symbol": "A"}
	w := doRequest(t, server, "POST", "/api/funds", body, "")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

// TestGetFund tests fetching a single fund
func TestGetFund(t *testing.T) {
	server := createTestServer()

	w := doRequest(t, server, "GET", "/api/funds/fund-123", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var fund models.Fund
	if err := json.Unmarshal(w.Body.Bytes(), &fund); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if fund.ID != "fund-123" {
		t.Errorf("Expected fund-123, got %q", fund.ID)
	}
}

// TestGetFund_NotFound tests the error mapping for a missing fund
func TestGetFund_NotFound(t *testing.T) {
	registry := &mockRegistryService{}
	registry.getFundFunc = func(ctx context.Context, fundID string) (*models.Fund, error) {
		return nil, &types.ServiceError{Code: "FUND_NOT_FOUND", Message: "fund not found"}
	}

	server := createTestServer()
	server.registry = registry

	w := doRequest(t, server, "GET", "/api/funds/missing", nil, "")
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d: %s", w.Code, w.Body.String())
	}
}

// TestSubmitInvestmentRequest tests the happy path including signature decoding
func TestSubmitInvestmentRequest(t *testing.T) {
	fundService := &mockFundService{}
	var captured *service.InvestmentRequestInput
	fundService.submitInvestmentFunc = func(ctx context.Context, fundID string, input *service.InvestmentRequestInput) error {
		captured = input
		return nil
	}

	server := createTestServer()
	server.fundService = fundService

	sigHex := "0x" + string(bytes.Repeat([]byte("ab"), 65))
	body := map[string]interface{}{
		"investor":  "0x2222222222222222222222222222222222222222",
		"usdAmount": "10000000000",
		"deadline":  1_800_000_000,
		"nonce":     0,
		"signature": sigHex,
	}
	w := doRequest(t, server, "POST", "/api/funds/fund-123/requests/investments", body, "")

	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}
	if captured == nil || len(captured.Signature) != 65 {
		t.Errorf("Expected 65-byte signature, got %+v", captured)
	}
}

// TestSubmitInvestmentRequest_BadSignatureEncoding tests rejection of malformed hex
func TestSubmitInvestmentRequest_BadSignatureEncoding(t *testing.T) {
	server := createTestServer()

	body := map[string]interface{}{
		"investor":  "0x2222222222222222222222222222222222222222",
		"usdAmount": "10000000000",
		"deadline":  1_800_000_000,
		"nonce":     0,
		"signature": "0xzz",
	}
	w := doRequest(t, server, "POST", "/api/funds/fund-123/requests/investments", body, "")

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

// TestSubmitInvestmentRequest_InvalidPermit tests the 401 mapping for a
// permit that fails verification
func TestSubmitInvestmentRequest_InvalidPermit(t *testing.T) {
	fundService := &mockFundService{}
	fundService.submitInvestmentFunc = func(ctx context.Context, fundID string, input *service.InvestmentRequestInput) error {
		return sig.ErrInvalidSignature
	}

	server := createTestServer()
	server.fundService = fundService

	sigHex := "0x" + string(bytes.Repeat([]byte("cd"), 65))
	body := map[string]interface{}{
		"investor":  "0x2222222222222222222222222222222222222222",
		"usdAmount": "10000000000",
		"deadline":  1_800_000_000,
		"nonce":     0,
		"signature": sigHex,
	}
	w := doRequest(t, server, "POST", "/api/funds/fund-123/requests/investments", body, "")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d: %s", w.Code, w.Body.String())
	}
}

// TestProcessInvestmentRequest_NotManager tests the 403 mapping for a
// manager-only operation invoked by someone else
func TestProcessInvestmentRequest_NotManager(t *testing.T) {
	fundService := &mockFundService{}
	fundService.processInvestmentFunc = func(ctx context.Context, fundID, caller, investor string) (*models.Investment, error) {
		return nil, ledger.ErrNotManager
	}

	server := createTestServer()
	server.fundService = fundService

	path := "/api/funds/fund-123/requests/investments/0x2222222222222222222222222222222222222222/process"
	w := doRequest(t, server, "POST", path, map[string]interface{}{}, testCaller)

	categorized := apperrors.Categorize(ledger.ErrNotManager)
	if w.Code != categorized.StatusCode {
		t.Errorf("Expected status %d, got %d: %s", categorized.StatusCode, w.Code, w.Body.String())
	}
}

// TestUpdateAUM tests the NAV mark endpoint
func TestUpdateAUM(t *testing.T) {
	server := createTestServer()

	body := map[string]interface{}{"newAum": "11000000000"}
	w := doRequest(t, server, "POST", "/api/funds/fund-123/nav", body, testCaller)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var mark models.NavMark
	if err := json.Unmarshal(w.Body.Bytes(), &mark); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if mark.Aum != "11000000000" {
		t.Errorf("Expected aum 11000000000, got %q", mark.Aum)
	}
}

// TestGetNavHistory_InvalidParams tests query parameter validation
func TestGetNavHistory_InvalidParams(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		expected int
	}{
		{
			name:     "valid range",
			query:    "?from=1700000000&to=1800000000&limit=10",
			expected: http.StatusOK,
		},
		{
			name:     "non-numeric from",
			query:    "?from=yesterday",
			expected: http.StatusBadRequest,
		},
		{
			name:     "excessive limit",
			query:    "?limit=10000",
			expected: http.StatusBadRequest,
		},
		{
			name:     "zero limit",
			query:    "?limit=0",
			expected: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := createTestServer()

			w := doRequest(t, server, "GET", "/api/funds/fund-123/nav/history"+tt.query, nil, "")
			if w.Code != tt.expected {
				t.Errorf("Expected status %d, got %d", tt.expected, w.Code)
			}
		})
	}
}

// TestSweepFees tests the fee sweep response shape
func TestSweepFees(t *testing.T) {
	server := createTestServer()

	body := map[string]interface{}{"investmentIds": []uint64{1}}
	w := doRequest(t, server, "POST", "/api/funds/fund-123/fees/sweep", body, testCaller)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var results []map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 sweep result, got %d", len(results))
	}
	if results[0]["managementFeeShares"] != "1000000000000000" {
		t.Errorf("Unexpected management fee shares: %v", results[0]["managementFeeShares"])
	}
}

// TestManualRedemption_InvalidInvestmentID tests path variable validation
func TestManualRedemption_InvalidInvestmentID(t *testing.T) {
	server := createTestServer()

	w := doRequest(t, server, "POST", "/api/funds/fund-123/investments/abc/redeem", map[string]interface{}{}, testCaller)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

// TestCancelRequest_OwnerOnly tests that only the request owner can cancel
func TestCancelRequest_OwnerOnly(t *testing.T) {
	server := createTestServer()
	path := "/api/funds/fund-123/requests/investments/" + testCaller

	w := doRequest(t, server, "DELETE", path, nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 without caller, got %d", w.Code)
	}

	w = doRequest(t, server, "DELETE", path, nil, "0x2222222222222222222222222222222222222222")
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for non-owner, got %d", w.Code)
	}

	w = doRequest(t, server, "DELETE", path, nil, testCaller)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for owner, got %d", w.Code)
	}
}

// TestCancelRedemptionRequest_OwnerOnly tests the redemption cancel guard
func TestCancelRedemptionRequest_OwnerOnly(t *testing.T) {
	server := createTestServer()
	path := "/api/funds/fund-123/requests/redemptions/" + testCaller

	w := doRequest(t, server, "DELETE", path, nil, "0x2222222222222222222222222222222222222222")
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for non-owner, got %d", w.Code)
	}

	w = doRequest(t, server, "DELETE", path, nil, testCaller)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200 for owner, got %d", w.Code)
	}
}
