package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/stlc/internal/db"
	"github.com/QTest-hq/stlc/internal/scenario"
)

// ScenarioRequest is the request body for generating scenarios and test cases
type ScenarioRequest struct {
	scenario.Request
	ScenarioModel string `json:"scenario_model,omitempty"`
	CaseModel     string `json:"case_model,omitempty"`
	// Save stores the output as a session
	Save bool `json:"save,omitempty"`
}

// ScenarioResponse is the generated model output with its counts
type ScenarioResponse struct {
	SessionID       *uuid.UUID      `json:"session_id,omitempty"`
	Combination     db.Combination  `json:"combination"`
	ModelOutput     scenario.Output `json:"model_output"`
	TestCases       int             `json:"test_cases"`
	Skipped         int             `json:"skipped"`
	FailedScenarios int             `json:"failed_scenarios"`
}

// TestTypesResponse lists what a scenario request can choose from
type TestTypesResponse struct {
	TestTypes     []scenario.TestType `json:"test_types"`
	DocumentTypes []string            `json:"document_types"`
	Instructions  []scenario.Element  `json:"instructions"`
	Scoring       []scenario.Element  `json:"scoring"`
	CaseTypes     []scenario.Element  `json:"case_types"`
}

func (s *Server) listTestTypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TestTypesResponse{
		TestTypes:     scenario.TestTypes(),
		DocumentTypes: scenario.DocumentTypes,
		Instructions:  scenario.InstructionElements,
		Scoring:       scenario.ScoringElements,
		CaseTypes:     scenario.CaseTypes,
	})
}

func (s *Server) generateScenarios(w http.ResponseWriter, r *http.Request) {
	var req ScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.llm == nil {
		writeError(w, http.StatusServiceUnavailable, "LLM not configured")
		return
	}
	if req.Save && s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "database not configured")
		return
	}

	gen := scenario.NewGenerator(s.llm,
		scenario.WithScenarioModel(req.ScenarioModel),
		scenario.WithCaseModel(req.CaseModel),
	)
	result, err := gen.Generate(r.Context(), req.Request)
	if err != nil {
		log.Warn().Err(err).Str("process", req.ProcessTitle).Msg("scenario generation failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	cases, skipped, err := result.TestCases()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := ScenarioResponse{
		Combination:     result.Combination,
		ModelOutput:     result.Output,
		TestCases:       len(cases),
		Skipped:         skipped,
		FailedScenarios: result.Failed(),
	}

	if req.Save {
		session, err := result.Session()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if err := s.store.SaveSession(r.Context(), session); err != nil {
			log.Error().Err(err).Msg("failed to save session")
			writeError(w, http.StatusInternalServerError, "failed to save session")
			return
		}
		resp.SessionID = &session.ID
	}

	writeJSON(w, http.StatusOK, resp)
}
