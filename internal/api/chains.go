package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/stlc/internal/chain"
)

// ChainRequest is the request body for running a prompt chain
type ChainRequest struct {
	Documents map[string]string `json:"documents"`
	Levels    []chain.Level     `json:"levels,omitempty"`
	// Suggest asks the suggestion model for the levels; Levels is ignored
	Suggest bool `json:"suggest,omitempty"`
}

// ChainResponse carries the session and, for suggested chains, the levels used
type ChainResponse struct {
	Session   *chain.Session `json:"session"`
	Suggested []chain.Level  `json:"suggested_levels,omitempty"`
}

// PhaseResponse describes a phase's inputs
type PhaseResponse struct {
	Name      string           `json:"name"`
	Title     string           `json:"title"`
	Documents []chain.Document `json:"documents"`
	Models    []string         `json:"models"`
}

func (s *Server) listPhases(w http.ResponseWriter, r *http.Request) {
	var phases []PhaseResponse
	for _, name := range chain.PhaseNames() {
		p, _ := chain.LookupPhase(name)
		phases = append(phases, PhaseResponse{
			Name:      p.Name,
			Title:     p.Title,
			Documents: p.Documents,
			Models:    p.Models(),
		})
	}
	writeJSON(w, http.StatusOK, phases)
}

func (s *Server) runChain(w http.ResponseWriter, r *http.Request) {
	phase, err := chain.LookupPhase(chi.URLParam(r, "phase"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var req ChainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := phase.Validate(req.Documents); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s.chains == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM not configured")
		return
	}

	var resp ChainResponse
	levels := req.Levels
	if req.Suggest {
		suggested, _, err := s.chains.Suggest(r.Context(), phase, req.Documents)
		if err != nil {
			log.Warn().Err(err).Str("phase", phase.Name).Msg("chain suggestion failed")
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		levels = suggested
		resp.Suggested = suggested
	}

	session, err := s.chains.Run(r.Context(), phase, req.Documents, levels)
	if err != nil {
		switch {
		case errors.Is(err, chain.ErrInvalidDocuments), errors.Is(err, chain.ErrNoPrompt):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Error().Err(err).Str("phase", phase.Name).Msg("chain run failed")
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	resp.Session = session
	writeJSON(w, http.StatusOK, resp)
}
