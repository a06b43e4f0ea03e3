// Package worker executes queued selection runs
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/stlc/internal/db"
	stlcnats "github.com/QTest-hq/stlc/internal/nats"
)

// RunStore is the persistence a worker needs
type RunStore interface {
	GetSelectionRun(ctx context.Context, id uuid.UUID) (*db.SelectionRun, error)
	ClaimSelectionRun(ctx context.Context, id uuid.UUID) error
	UpdateSelectionRun(ctx context.Context, id uuid.UUID, status db.RunStatus, result json.RawMessage, errMsg *string) error
	ListPendingSelectionRuns(ctx context.Context, limit int) ([]db.SelectionRun, error)
}

// RunHandler executes a claimed run and returns its result document
type RunHandler func(ctx context.Context, run *db.SelectionRun) (json.RawMessage, error)

// BaseWorker pulls runs from JetStream, or polls the store when no consumer
// is available, and records each run's outcome
type BaseWorker struct {
	workerID   string
	store      RunStore
	consumer   jetstream.Consumer
	handler    RunHandler
	pollPeriod time.Duration
	runTimeout time.Duration
}

// BaseWorkerConfig configures a base worker
type BaseWorkerConfig struct {
	WorkerID string
	Store    RunStore
	Consumer jetstream.Consumer
	Handler  RunHandler
}

// NewBaseWorker creates a new base worker
func NewBaseWorker(cfg BaseWorkerConfig) *BaseWorker {
	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = "selection-" + uuid.New().String()[:8]
	}

	return &BaseWorker{
		workerID:   workerID,
		store:      cfg.Store,
		consumer:   cfg.Consumer,
		handler:    cfg.Handler,
		pollPeriod: 5 * time.Second,
		runTimeout: 9 * time.Minute,
	}
}

// Run processes runs until ctx is cancelled
func (w *BaseWorker) Run(ctx context.Context) error {
	if w.store == nil || w.handler == nil {
		return fmt.Errorf("worker %s: store and handler are required", w.workerID)
	}

	logger := log.With().Str("worker_id", w.workerID).Logger()
	if w.consumer != nil {
		logger.Info().Msg("worker started on NATS consumer")
	} else {
		logger.Info().Msg("worker started, polling database")
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker stopping")
			return nil
		default:
			if err := w.processNext(ctx); err != nil {
				logger.Error().Err(err).Msg("error processing selection run")
			}
		}
	}
}

func (w *BaseWorker) processNext(ctx context.Context) error {
	if w.consumer != nil {
		return w.processFromNATS(ctx)
	}
	return w.processFromDB(ctx)
}

// processFromNATS handles one fetched batch. Runs that could not be claimed
// or whose outcome could not be stored are nacked for redelivery. An empty
// fetch sweeps the store, so runs whose publish was lost are still picked up.
func (w *BaseWorker) processFromNATS(ctx context.Context) error {
	msgs, err := w.consumer.Fetch(1, jetstream.FetchMaxWait(w.pollPeriod))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("failed to fetch from NATS: %w", err)
	}

	received := 0
	for msg := range msgs.Messages() {
		received++

		selMsg, err := stlcnats.DecodeSelectionMessage(msg.Data())
		if err != nil {
			log.Error().Err(err).Msg("dropping undecodable selection message")
			_ = msg.Term()
			continue
		}

		err = w.ProcessRun(ctx, selMsg.RunID)
		switch {
		case errors.Is(err, errRetry):
			log.Error().Err(err).Str("run_id", selMsg.RunID.String()).Msg("selection run not processed, requeueing")
			_ = msg.Nak()
			continue
		case err != nil && !errors.Is(err, errSkipped):
			log.Error().Err(err).Str("run_id", selMsg.RunID.String()).Msg("selection run failed")
		}
		_ = msg.Ack()
	}

	if err := msgs.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	if received == 0 && ctx.Err() == nil {
		if _, err := w.sweepPending(ctx); err != nil {
			return err
		}
	}
	return nil
}

// processFromDB handles the oldest pending run, or waits a poll period
func (w *BaseWorker) processFromDB(ctx context.Context) error {
	n, err := w.sweepPending(ctx)
	if err != nil {
		return err
	}

	if n == 0 {
		select {
		case <-ctx.Done():
		case <-time.After(w.pollPeriod):
		}
	}
	return nil
}

// sweepPending processes the oldest pending run, if any, and reports how
// many runs it found
func (w *BaseWorker) sweepPending(ctx context.Context) (int, error) {
	pending, err := w.store.ListPendingSelectionRuns(ctx, 1)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending runs: %w", err)
	}

	for _, run := range pending {
		if err := w.ProcessRun(ctx, run.ID); err != nil && !errors.Is(err, errSkipped) {
			log.Error().Err(err).Str("run_id", run.ID.String()).Msg("selection run failed")
		}
	}
	return len(pending), nil
}

var (
	// errSkipped marks runs another worker owns or that no longer exist
	errSkipped = errors.New("run skipped")

	// errRetry marks runs left pending because the store failed
	errRetry = errors.New("run not processed")
)

// ProcessRun claims a pending run, executes it and stores the outcome.
// The returned error is the handler's failure, which is also recorded on the
// run, or an errRetry error when the store failed and the run was released
// back to pending.
func (w *BaseWorker) ProcessRun(ctx context.Context, id uuid.UUID) error {
	logger := log.With().
		Str("worker_id", w.workerID).
		Str("run_id", id.String()).
		Logger()

	if err := w.store.ClaimSelectionRun(ctx, id); err != nil {
		if errors.Is(err, db.ErrRunNotClaimable) {
			logger.Debug().Msg("run already claimed")
			return errSkipped
		}
		return fmt.Errorf("%w: %w", errRetry, err)
	}

	// the outcome is recorded even when shutdown interrupted the run
	storeCtx := context.WithoutCancel(ctx)

	run, err := w.store.GetSelectionRun(ctx, id)
	if err != nil {
		w.release(storeCtx, id)
		return fmt.Errorf("%w: %w", errRetry, err)
	}
	if run == nil {
		logger.Warn().Msg("claimed run vanished")
		return errSkipped
	}

	logger.Info().Str("model", run.Model).Msg("processing selection run")

	runCtx, cancel := context.WithTimeout(ctx, w.runTimeout)
	result, handlerErr := w.handler(runCtx, run)
	cancel()

	if handlerErr != nil {
		msg := handlerErr.Error()
		if err := w.store.UpdateSelectionRun(storeCtx, id, db.RunFailed, nil, &msg); err != nil {
			logger.Error().Err(err).Msg("failed to mark run as failed")
			w.release(storeCtx, id)
			return fmt.Errorf("%w: %w", errRetry, err)
		}
		return handlerErr
	}

	if err := w.store.UpdateSelectionRun(storeCtx, id, db.RunCompleted, result, nil); err != nil {
		w.release(storeCtx, id)
		return fmt.Errorf("%w: failed to store run result: %w", errRetry, err)
	}

	logger.Info().Msg("selection run completed")
	return nil
}

// release puts a claimed run back to pending so it can be claimed again
func (w *BaseWorker) release(ctx context.Context, id uuid.UUID) {
	if err := w.store.UpdateSelectionRun(ctx, id, db.RunPending, nil, nil); err != nil {
		log.Error().Err(err).Str("run_id", id.String()).Msg("failed to release run")
	}
}

// WorkerID returns the worker's unique ID
func (w *BaseWorker) WorkerID() string {
	return w.workerID
}

// SetPollPeriod sets the polling interval
func (w *BaseWorker) SetPollPeriod(d time.Duration) {
	w.pollPeriod = d
}

// SetRunTimeout bounds the time a single run may take
func (w *BaseWorker) SetRunTimeout(d time.Duration) {
	w.runTimeout = d
}
