package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// handleInitialize handles POST /api/funds/{id}/initialize
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	fundID := mux.Vars(r)["id"]

	var body struct {
		InitialAum string `json:"initialAum"`
	}
	if err := parseJSONBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body: "+err.Error(), nil)
		return
	}

	if err := s.fundService.Initialize(r.Context(), fundID, caller, body.InitialAum); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "initialized"})
}

// handleWhitelist handles POST /api/funds/{id}/whitelist
func (s *Server) handleWhitelist(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	fundID := mux.Vars(r)["id"]

	var body struct {
		Addresses []string `json:"addresses"`
		Names     []string `json:"names,omitempty"`
	}
	if err := parseJSONBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body: "+err.Error(), nil)
		return
	}
	if len(body.Addresses) == 0 {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "addresses must not be empty", nil)
		return
	}

	if err := s.fundService.Whitelist(r.Context(), fundID, caller, body.Addresses, body.Names); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"whitelisted": len(body.Addresses)})
}

// handleRevokeWhitelist handles DELETE /api/funds/{id}/whitelist
func (s *Server) handleRevokeWhitelist(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	fundID := mux.Vars(r)["id"]

	var body struct {
		Addresses []string `json:"addresses"`
	}
	if err := parseJSONBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body: "+err.Error(), nil)
		return
	}

	if err := s.fundService.RevokeWhitelist(r.Context(), fundID, caller, body.Addresses); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"revoked": len(body.Addresses)})
}

// handleCloseFund handles POST /api/funds/{id}/close
func (s *Server) handleCloseFund(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	fundID := mux.Vars(r)["id"]

	if err := s.fundService.CloseFund(r.Context(), fundID, caller); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// handleGetInvestor handles GET /api/funds/{id}/investors/{investor}
func (s *Server) handleGetInvestor(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	summary, err := s.fundService.GetInvestor(r.Context(), vars["id"], vars["investor"])
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// handleListInvestments handles GET /api/funds/{id}/investments
func (s *Server) handleListInvestments(w http.ResponseWriter, r *http.Request) {
	fundID := mux.Vars(r)["id"]

	if investor := r.URL.Query().Get("investor"); investor != "" {
		rows, err := s.fundService.ListInvestorInvestments(r.Context(), fundID, investor)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, rows)
		return
	}

	rows, err := s.fundService.ListInvestments(r.Context(), fundID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rows)
}

// handleAddManualInvestment handles POST /api/funds/{id}/investments
func (s *Server) handleAddManualInvestment(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	fundID := mux.Vars(r)["id"]

	var body struct {
		Investor  string `json:"investor"`
		UsdAmount string `json:"usdAmount"`
		Note      string `json:"note,omitempty"`
	}
	if err := parseJSONBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body: "+err.Error(), nil)
		return
	}

	inv, err := s.fundService.AddManualInvestment(r.Context(), fundID, caller, body.Investor, body.UsdAmount, body.Note)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, inv)
}

// investmentID parses the {investmentId} path variable.
func investmentID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["investmentId"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid investment id", nil)
		return 0, false
	}
	return id, true
}

// handleAddManualRedemption handles POST /api/funds/{id}/investments/{investmentId}/redeem
func (s *Server) handleAddManualRedemption(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	fundID := mux.Vars(r)["id"]
	id, ok := investmentID(w, r)
	if !ok {
		return
	}

	var body struct {
		MinUsdOut string `json:"minUsdOut,omitempty"`
	}
	if err := parseJSONBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body: "+err.Error(), nil)
		return
	}

	result, err := s.fundService.AddManualRedemption(r.Context(), fundID, caller, id, body.MinUsdOut)
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

// handleMarkTransferCompleted handles POST /api/funds/{id}/investments/{investmentId}/transfer-completed
func (s *Server) handleMarkTransferCompleted(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	fundID := mux.Vars(r)["id"]
	id, ok := investmentID(w, r)
	if !ok {
		return
	}

	if err := s.fundService.MarkTransferCompleted(r.Context(), fundID, caller, id); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "transfer_completed"})
}

// handleSweepFees handles POST /api/funds/{id}/fees/sweep
func (s *Server) handleSweepFees(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	fundID := mux.Vars(r)["id"]

	var body struct {
		InvestmentIDs []uint64 `json:"investmentIds"`
	}
	if err := parseJSONBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body: "+err.Error(), nil)
		return
	}

	results, err := s.fundService.SweepFees(r.Context(), fundID, caller, body.InvestmentIDs)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	out := make([]map[string]interface{}, 0, len(results))
	for _, res := range results {
		out = append(out, map[string]interface{}{
			"investmentId":         res.InvestmentID,
			"managementFeeShares":  res.ManagementFeeShares.String(),
			"performanceFeeShares": res.PerformanceFeeShares.String(),
			"highWaterMark":        res.HighWaterMark.String(),
		})
	}
	respondJSON(w, http.StatusOK, out)
}

// handleWithdrawFees handles POST /api/funds/{id}/fees/withdraw
func (s *Server) handleWithdrawFees(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	fundID := mux.Vars(r)["id"]

	var body struct {
		ShareAmount string `json:"shareAmount"`
	}
	if err := parseJSONBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body: "+err.Error(), nil)
		return
	}

	result, err := s.fundService.WithdrawFees(r.Context(), fundID, caller, body.ShareAmount)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"sharesBurned": result.SharesBurned.String(),
		"usdOut":       result.UsdOut.String(),
	})
}
