package api

import (
	"encoding/json"
	"net/http"

	"github.com/QTest-hq/stlc/internal/extract"
)

// ExtractRequest is the request body for JSON extraction
type ExtractRequest struct {
	Text string `json:"text"`
	// StringAware ignores braces inside JSON string literals
	StringAware bool `json:"string_aware,omitempty"`
}

func (s *Server) extractJSON(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var opts []extract.Option
	if req.StringAware {
		opts = append(opts, extract.StringAware())
	}

	raw, ok := extract.ExtractRaw(req.Text, opts...)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "No valid JSON found in the input.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]json.RawMessage{"json": raw})
}
