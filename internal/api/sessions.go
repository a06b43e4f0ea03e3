package api

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/stlc/internal/db"
)

// CombinationResponse is a selectable session combination
type CombinationResponse struct {
	db.Combination
	Label string `json:"label"`
}

func (s *Server) listCombinations(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "session storage not available")
		return
	}

	combos, err := s.store.ListCombinations(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list combinations")
		writeError(w, http.StatusInternalServerError, "failed to list combinations")
		return
	}

	resp := make([]CombinationResponse, 0, len(combos))
	for _, c := range combos {
		resp = append(resp, CombinationResponse{Combination: c, Label: c.Label()})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getSessionTestCases(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "session storage not available")
		return
	}

	q := r.URL.Query()
	combo := db.Combination{
		ProcessTitle: q.Get("process_title"),
		Category:     q.Get("category"),
		TestType:     q.Get("test_type"),
	}
	if !combo.Valid() {
		writeError(w, http.StatusBadRequest, "process_title, category and test_type are required")
		return
	}

	cases, err := s.store.GetSessionTestCases(r.Context(), combo)
	if err != nil {
		log.Error().Err(err).Str("combination", combo.Label()).Msg("failed to load session test cases")
		writeError(w, http.StatusInternalServerError, "failed to load test cases")
		return
	}
	if cases == nil {
		writeError(w, http.StatusNotFound, "no session for "+combo.Label())
		return
	}

	writeJSON(w, http.StatusOK, cases)
}
