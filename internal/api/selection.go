package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/stlc/internal/db"
	"github.com/QTest-hq/stlc/internal/selection"
	"github.com/QTest-hq/stlc/pkg/model"
)

// SelectionResponse is the synchronous outcome of a selection pass
type SelectionResponse struct {
	*selection.Result
	Summary selection.Summary   `json:"summary"`
	Skipped []model.SkippedItem `json:"skipped,omitempty"`
}

// SelectionQueuedResponse is returned for asynchronous selection requests
type SelectionQueuedResponse struct {
	RunID  uuid.UUID    `json:"run_id"`
	Status db.RunStatus `json:"status"`
}

// runSelection deduplicates the posted test cases. With ?async=true the run
// is stored and queued for a worker instead.
func (s *Server) runSelection(w http.ResponseWriter, r *http.Request) {
	decoded, err := model.DecodeTestCases(r.Body)
	if err != nil {
		if errors.Is(err, model.ErrNoValidCases) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	modelName := r.URL.Query().Get("model")
	if modelName == "" && s.cfg != nil {
		modelName = s.cfg.Selection.Model
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		s.queueSelection(w, r, decoded.Cases, modelName)
		return
	}

	if s.llm == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM not configured")
		return
	}

	selector := selection.NewSelector(selection.NewLLMOracle(s.llm, modelName))
	result, err := selector.Select(r.Context(), decoded.Cases)
	if err != nil {
		log.Warn().Err(err).Int("comparisons", result.Comparisons()).Msg("selection interrupted")
		writeError(w, http.StatusGatewayTimeout, "selection interrupted: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, SelectionResponse{
		Result:  result,
		Summary: result.Summary(),
		Skipped: decoded.Skipped,
	})
}

func (s *Server) queueSelection(w http.ResponseWriter, r *http.Request, cases []model.TestCase, modelName string) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run storage not available")
		return
	}

	input, err := json.Marshal(cases)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode test cases")
		return
	}

	run := &db.SelectionRun{Model: modelName, Input: input}
	if err := s.store.CreateSelectionRun(r.Context(), run); err != nil {
		log.Error().Err(err).Msg("failed to create selection run")
		writeError(w, http.StatusInternalServerError, "failed to create selection run")
		return
	}

	// workers also poll pending runs, so a failed publish only delays the run
	if s.queue != nil {
		if err := s.queue.PublishSelection(r.Context(), run.ID); err != nil {
			log.Warn().Err(err).Str("run_id", run.ID.String()).Msg("failed to publish selection run")
		}
	}

	writeJSON(w, http.StatusAccepted, SelectionQueuedResponse{RunID: run.ID, Status: run.Status})
}

func (s *Server) getSelectionRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run storage not available")
		return
	}

	runID, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run ID")
		return
	}

	run, err := s.store.GetSelectionRun(r.Context(), runID)
	if err != nil {
		log.Error().Err(err).Str("run_id", runID.String()).Msg("failed to get selection run")
		writeError(w, http.StatusInternalServerError, "failed to get selection run")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "selection run not found")
		return
	}

	writeJSON(w, http.StatusOK, run)
}

func (s *Server) listSelectionRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run storage not available")
		return
	}

	limit := 20
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}
	offset := 0
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}

	runs, err := s.store.ListSelectionRuns(r.Context(), limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("failed to list selection runs")
		writeError(w, http.StatusInternalServerError, "failed to list selection runs")
		return
	}
	if runs == nil {
		runs = []db.SelectionRun{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":   runs,
		"limit":  limit,
		"offset": offset,
	})
}
