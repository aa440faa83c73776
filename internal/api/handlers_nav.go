package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

// handleUpdateAUM handles POST /api/funds/{id}/nav
func (s *Server) handleUpdateAUM(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	fundID := mux.Vars(r)["id"]

	var body struct {
		NewAum string `json:"newAum"`
		// ProcessInvestor optionally processes that investor's pending
		// investment request at the freshly marked price.
		ProcessInvestor string `json:"processInvestor,omitempty"`
	}
	if err := parseJSONBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body: "+err.Error(), nil)
		return
	}

	mark, err := s.fundService.UpdateAUM(r.Context(), fundID, caller, body.NewAum, body.ProcessInvestor)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, mark)
}

// handleGetLatestNav handles GET /api/funds/{id}/nav
func (s *Server) handleGetLatestNav(w http.ResponseWriter, r *http.Request) {
	fundID := mux.Vars(r)["id"]

	mark, err := s.fundService.GetLatestNav(r.Context(), fundID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, mark)
}

// handleGetNavHistory handles GET /api/funds/{id}/nav/history
func (s *Server) handleGetNavHistory(w http.ResponseWriter, r *http.Request) {
	fundID := mux.Vars(r)["id"]
	query := r.URL.Query()

	var from, to time.Time
	if raw := query.Get("from"); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "from must be a unix timestamp", nil)
			return
		}
		from = time.Unix(ts, 0).UTC()
	}
	if raw := query.Get("to"); raw != "" {
		ts, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "to must be a unix timestamp", nil)
			return
		}
		to = time.Unix(ts, 0).UTC()
	}

	limit := 100
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "limit must be between 1 and 1000", nil)
			return
		}
		limit = parsed
	}

	marks, err := s.fundService.GetNavHistory(r.Context(), fundID, from, to, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, marks)
}
