package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/fund-ledger/internal/service"
)

// callerAddress extracts the authenticated caller from the request. The
// gateway in front of this service resolves authentication and forwards the
// verified address in X-Caller-Address.
func callerAddress(r *http.Request) string {
	return r.Header.Get("X-Caller-Address")
}

// requireCaller responds 401 when no caller address is present.
func requireCaller(w http.ResponseWriter, r *http.Request) (string, bool) {
	caller := callerAddress(r)
	if caller == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "X-Caller-Address header is required", nil)
		return "", false
	}
	return caller, true
}

// handleCreateFund handles POST /api/funds
func (s *Server) handleCreateFund(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}

	var input service.CreateFundInput
	if err := parseJSONBody(r, &input); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body: "+err.Error(), nil)
		return
	}
	if input.Manager == "" {
		input.Manager = caller
	}

	fund, err := s.registry.CreateFund(r.Context(), &input)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, fund)
}

// handleListFunds handles GET /api/funds
func (s *Server) handleListFunds(w http.ResponseWriter, r *http.Request) {
	if manager := r.URL.Query().Get("manager"); manager != "" {
		funds, err := s.registry.ListFundsByManager(r.Context(), manager)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, funds)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	funds, err := s.registry.ListFunds(r.Context(), limit, offset)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, funds)
}

// handleGetFund handles GET /api/funds/{id}
func (s *Server) handleGetFund(w http.ResponseWriter, r *http.Request) {
	fundID := mux.Vars(r)["id"]
	fund, err := s.registry.GetFund(r.Context(), fundID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, fund)
}
