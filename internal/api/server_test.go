package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fund-ledger/internal/ledger"
	"github.com/fund-ledger/internal/models"
	"github.com/fund-ledger/internal/service"
	"github.com/fund-ledger/internal/types"
)

// Mock services for testing
type mockRegistryService struct {
	createFundFunc func(ctx context.Context, input *service.CreateFundInput) (*models.Fund, error)
	getFundFunc    func(ctx context.Context, fundID string) (*models.Fund, error)
}

func testFund(id string) *models.Fund {
	return &models.Fund{
		ID:          id,
		Name:        "Test Fund",
		Symbol:      "TFND",
		Address:     "0x00000000000000000000000000000000000000aa",
		Manager:     "0x1111111111111111111111111111111111111111",
		Status:      types.FundOpen,
		Aum:         "0",
		SharePrice:  "10000000000000000",
		TotalSupply: "0",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

func (m *mockRegistryService) CreateFund(ctx context.Context, input *service.CreateFundInput) (*models.Fund, error) {
	if m.createFundFunc != nil {
		return m.createFundFunc(ctx, input)
	}
	fund := testFund("fund-123")
	fund.Name = input.Name
	fund.Symbol = input.Symbol
	fund.Manager = input.Manager
	return fund, nil
}

func (m *mockRegistryService) GetFund(ctx context.Context, fundID string) (*models.Fund, error) {
	if m.getFundFunc != nil {
		return m.getFundFunc(ctx, fundID)
	}
	return testFund(fundID), nil
}

func (m *mockRegistryService) ListFunds(ctx context.Context, limit, offset int) ([]*models.Fund, error) {
	return []*models.Fund{testFund("fund-123")}, nil
}

func (m *mockRegistryService) ListFundsByManager(ctx context.Context, manager string) ([]*models.Fund, error) {
	return []*models.Fund{testFund("fund-123")}, nil
}

type mockFundService struct {
	submitInvestmentFunc  func(ctx context.Context, fundID string, input *service.InvestmentRequestInput) error
	processInvestmentFunc func(ctx context.Context, fundID, caller, investor string) (*models.Investment, error)
	updateAUMFunc         func(ctx context.Context, fundID, caller, newAum, processInvestor string) (*models.NavMark, error)
	getLatestNavFunc      func(ctx context.Context, fundID string) (*models.NavMark, error)
	sweepFeesFunc         func(ctx context.Context, fundID, caller string, investmentIDs []uint64) ([]ledger.FeeSweepResult, error)
}

func testInvestment(fundID, investor string) *models.Investment {
	return &models.Investment{
		FundID:           fundID,
		InvestmentID:     1,
		Investor:         investor,
		Status:           types.StatusActive,
		InitialUsdAmount: "10000000000",
		InitialShares:    "1000000000000000000000000",
		Shares:           "1000000000000000000000000",
		HighWaterMark:    "10000000000000000000000",
		ManagementFees:   "0",
		PerformanceFees:  "0",
		CreatedAt:        time.Now(),
	}
}

func testNavMark(fundID string) *models.NavMark {
	return &models.NavMark{
		FundID:       fundID,
		Aum:          "11000000000",
		Supply:       "1000000000000000000000000",
		Price:        "11000000000000000",
		TotalCapital: "10000000000",
		MarkedAt:     time.Now().UTC(),
	}
}

func (m *mockFundService) Initialize(ctx context.Context, fundID, caller, initialAum string) error {
	return nil
}

func (m *mockFundService) Whitelist(ctx context.Context, fundID, caller string, addrs, names []string) error {
	return nil
}

func (m *mockFundService) RevokeWhitelist(ctx context.Context, fundID, caller string, addrs []string) error {
	return nil
}

func (m *mockFundService) UpdateAUM(ctx context.Context, fundID, caller, newAum string, processInvestor string) (*models.NavMark, error) {
	if m.updateAUMFunc != nil {
		return m.updateAUMFunc(ctx, fundID, caller, newAum, processInvestor)
	}
	return testNavMark(fundID), nil
}

func (m *mockFundService) SubmitInvestmentRequest(ctx context.Context, fundID string, input *service.InvestmentRequestInput) error {
	if m.submitInvestmentFunc != nil {
		return m.submitInvestmentFunc(ctx, fundID, input)
	}
	return nil
}

func (m *mockFundService) CancelInvestmentRequest(ctx context.Context, fundID, investor string) error {
	return nil
}

func (m *mockFundService) SubmitRedemptionRequest(ctx context.Context, fundID string, input *service.RedemptionRequestInput) error {
	return nil
}

func (m *mockFundService) CancelRedemptionRequest(ctx context.Context, fundID, investor string) error {
	return nil
}

func (m *mockFundService) ProcessInvestmentRequest(ctx context.Context, fundID, caller, investor string) (*models.Investment, error) {
	if m.processInvestmentFunc != nil {
		return m.processInvestmentFunc(ctx, fundID, caller, investor)
	}
	return testInvestment(fundID, investor), nil
}

func (m *mockFundService) ProcessRedemptionRequest(ctx context.Context, fundID, caller, investor string) (*ledger.RedemptionResult, error) {
	return &ledger.RedemptionResult{
		Investment:   &ledger.Investment{ID: 1},
		UsdOut:       big.NewInt(11_000_000000),
		SharesBurned: new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(1e18)),
	}, nil
}

func (m *mockFundService) AddManualInvestment(ctx context.Context, fundID, caller, investor, usdAmount, note string) (*models.Investment, error) {
	inv := testInvestment(fundID, investor)
	inv.Manual = true
	inv.Note = note
	return inv, nil
}

func (m *mockFundService) AddManualRedemption(ctx context.Context, fundID, caller string, investmentID uint64, minUsdOut string) (*ledger.RedemptionResult, error) {
	return &ledger.RedemptionResult{
		Investment:   &ledger.Investment{ID: investmentID},
		UsdOut:       big.NewInt(5_000_000000),
		SharesBurned: big.NewInt(1e18),
	}, nil
}

func (m *mockFundService) MarkTransferCompleted(ctx context.Context, fundID, caller string, investmentID uint64) error {
	return nil
}

func (m *mockFundService) SweepFees(ctx context.Context, fundID, caller string, investmentIDs []uint64) ([]ledger.FeeSweepResult, error) {
	if m.sweepFeesFunc != nil {
		return m.sweepFeesFunc(ctx, fundID, caller, investmentIDs)
	}
	return []ledger.FeeSweepResult{
		{
			InvestmentID:         1,
			ManagementFeeShares:  big.NewInt(1e15),
			PerformanceFeeShares: big.NewInt(2e15),
			HighWaterMark:        big.NewInt(1e18),
		},
	}, nil
}

func (m *mockFundService) WithdrawFees(ctx context.Context, fundID, caller, shareAmount string) (*ledger.WithdrawResult, error) {
	return &ledger.WithdrawResult{
		SharesBurned: big.NewInt(1e15),
		UsdOut:       big.NewInt(10_000000),
	}, nil
}

func (m *mockFundService) CloseFund(ctx context.Context, fundID, caller string) error {
	return nil
}

func (m *mockFundService) GetLatestNav(ctx context.Context, fundID string) (*models.NavMark, error) {
	if m.getLatestNavFunc != nil {
		return m.getLatestNavFunc(ctx, fundID)
	}
	return testNavMark(fundID), nil
}

func (m *mockFundService) GetNavHistory(ctx context.Context, fundID string, from, to time.Time, limit int) ([]*models.NavMark, error) {
	return []*models.NavMark{testNavMark(fundID)}, nil
}

func (m *mockFundService) ListInvestments(ctx context.Context, fundID string) ([]*models.Investment, error) {
	return []*models.Investment{testInvestment(fundID, "0x2222222222222222222222222222222222222222")}, nil
}

func (m *mockFundService) ListInvestorInvestments(ctx context.Context, fundID, investor string) ([]*models.Investment, error) {
	return []*models.Investment{testInvestment(fundID, investor)}, nil
}

func (m *mockFundService) GetInvestor(ctx context.Context, fundID, investor string) (*models.InvestorSummary, error) {
	return &models.InvestorSummary{
		FundID:      fundID,
		Address:     investor,
		Whitelisted: true,
		NextNonce:   1,
	}, nil
}

func createTestServer() *Server {
	config := &ServerConfig{
		Host:           "localhost",
		Port:           "8080",
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		IdleTimeout:    30 * time.Second,
		FreeTierRPS:    100,
		BasicTierRPS:   100,
		PremiumTierRPS: 100,
	}
	return NewServer(config, &mockRegistryService{}, &mockFundService{})
}

func doRequest(t *testing.T, server *Server, method, path string, body interface{}, caller string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if caller != "" {
		req.Header.Set("X-Caller-Address", caller)
	}

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	server := createTestServer()

	w := doRequest(t, server, "GET", "/health", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %q", resp["status"])
	}
}
