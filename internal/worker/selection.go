package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/stlc/internal/db"
	"github.com/QTest-hq/stlc/internal/selection"
	"github.com/QTest-hq/stlc/pkg/model"
)

// OracleFactory returns the oracle used for runs against modelName
type OracleFactory func(modelName string) selection.Oracle

// SelectionWorker deduplicates the test cases of queued runs
type SelectionWorker struct {
	*BaseWorker
	oracleFor    OracleFactory
	defaultModel string
	opts         []selection.SelectorOption
}

// NewSelectionWorker wires the selection handler into base
func NewSelectionWorker(base *BaseWorker, oracleFor OracleFactory, defaultModel string, opts ...selection.SelectorOption) *SelectionWorker {
	w := &SelectionWorker{
		BaseWorker:   base,
		oracleFor:    oracleFor,
		defaultModel: defaultModel,
		opts:         opts,
	}
	base.handler = w.handleRun
	return w
}

func (w *SelectionWorker) Name() string { return "selection" }

func (w *SelectionWorker) handleRun(ctx context.Context, run *db.SelectionRun) (json.RawMessage, error) {
	decoded, err := model.DecodeTestCases(bytes.NewReader(run.Input))
	if err != nil {
		return nil, fmt.Errorf("invalid run input: %w", err)
	}
	if len(decoded.Skipped) > 0 {
		log.Warn().
			Str("run_id", run.ID.String()).
			Int("skipped", len(decoded.Skipped)).
			Msg("skipped invalid test cases in run input")
	}

	modelName := run.Model
	if modelName == "" {
		modelName = w.defaultModel
	}

	selector := selection.NewSelector(w.oracleFor(modelName), w.opts...)
	result, err := selector.Select(ctx, decoded.Cases)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := result.Encode(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode selection result: %w", err)
	}

	summary := result.Summary()
	log.Info().
		Str("run_id", run.ID.String()).
		Int("unique", summary.Unique).
		Int("duplicates", summary.Duplicates).
		Int("warnings", summary.Warnings).
		Msg("selection pass finished")

	return json.RawMessage(bytes.TrimSpace(buf.Bytes())), nil
}
