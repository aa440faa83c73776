package api

import (
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/fund-ledger/internal/service"
)

// decodeSignature parses a hex-encoded 65-byte permit signature.
func decodeSignature(raw string) ([]byte, bool) {
	sig, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil || len(sig) != 65 {
		return nil, false
	}
	return sig, true
}

// requireOwner responds 403 unless the caller is the investor named in the
// path. A pending request can only be cancelled by its owner; a third party
// cancelling it would trigger the refund and burn the outstanding signature.
func requireOwner(w http.ResponseWriter, r *http.Request, investor string) bool {
	caller, ok := requireCaller(w, r)
	if !ok {
		return false
	}
	if !common.IsHexAddress(caller) || common.HexToAddress(caller) != common.HexToAddress(investor) {
		respondError(w, http.StatusForbidden, ErrCodeForbidden, "caller is not the request owner", nil)
		return false
	}
	return true
}

// handleSubmitInvestmentRequest handles POST /api/funds/{id}/requests/investments
func (s *Server) handleSubmitInvestmentRequest(w http.ResponseWriter, r *http.Request) {
	fundID := mux.Vars(r)["id"]

	var body struct {
		Investor  string `json:"investor"`
		UsdAmount string `json:"usdAmount"`
		MinShares string `json:"minShares,omitempty"`
		MaxShares string `json:"maxShares,omitempty"`
		Deadline  int64  `json:"deadline"`
		Nonce     uint64 `json:"nonce"`
		Signature string `json:"signature"`
	}
	if err := parseJSONBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body: "+err.Error(), nil)
		return
	}

	sig, ok := decodeSignature(body.Signature)
	if !ok {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "signature must be 65 hex-encoded bytes", nil)
		return
	}

	input := &service.InvestmentRequestInput{
		Investor:  body.Investor,
		UsdAmount: body.UsdAmount,
		MinShares: body.MinShares,
		MaxShares: body.MaxShares,
		Deadline:  body.Deadline,
		Nonce:     body.Nonce,
		Signature: sig,
	}
	if err := s.fundService.SubmitInvestmentRequest(r.Context(), fundID, input); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
}

// handleCancelInvestmentRequest handles DELETE /api/funds/{id}/requests/investments/{investor}
func (s *Server) handleCancelInvestmentRequest(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if !requireOwner(w, r, vars["investor"]) {
		return
	}
	if err := s.fundService.CancelInvestmentRequest(r.Context(), vars["id"], vars["investor"]); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// handleProcessInvestmentRequest handles POST /api/funds/{id}/requests/investments/{investor}/process
func (s *Server) handleProcessInvestmentRequest(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)

	inv, err := s.fundService.ProcessInvestmentRequest(r.Context(), vars["id"], caller, vars["investor"])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, inv)
}

// handleSubmitRedemptionRequest handles POST /api/funds/{id}/requests/redemptions
func (s *Server) handleSubmitRedemptionRequest(w http.ResponseWriter, r *http.Request) {
	fundID := mux.Vars(r)["id"]

	var body struct {
		Investor     string `json:"investor"`
		InvestmentID uint64 `json:"investmentId"`
		MinUsdOut    string `json:"minUsdOut,omitempty"`
		Deadline     int64  `json:"deadline"`
		Nonce        uint64 `json:"nonce"`
		Signature    string `json:"signature"`
	}
	if err := parseJSONBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body: "+err.Error(), nil)
		return
	}

	sig, ok := decodeSignature(body.Signature)
	if !ok {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "signature must be 65 hex-encoded bytes", nil)
		return
	}

	input := &service.RedemptionRequestInput{
		Investor:     body.Investor,
		InvestmentID: body.InvestmentID,
		MinUsdOut:    body.MinUsdOut,
		Deadline:     body.Deadline,
		Nonce:        body.Nonce,
		Signature:    sig,
	}
	if err := s.fundService.SubmitRedemptionRequest(r.Context(), fundID, input); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
}

// handleCancelRedemptionRequest handles DELETE /api/funds/{id}/requests/redemptions/{investor}
func (s *Server) handleCancelRedemptionRequest(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if !requireOwner(w, r, vars["investor"]) {
		return
	}
	if err := s.fundService.CancelRedemptionRequest(r.Context(), vars["id"], vars["investor"]); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// handleProcessRedemptionRequest handles POST /api/funds/{id}/requests/redemptions/{investor}/process
func (s *Server) handleProcessRedemptionRequest(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)

	result, err := s.fundService.ProcessRedemptionRequest(r.Context(), vars["id"], caller, vars["investor"])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"investmentId": result.Investment.ID,
		"usdOut":       result.UsdOut.String(),
		"sharesBurned": result.SharesBurned.String(),
	})
}
