package worker

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/QTest-hq/stlc/internal/selection"
)

// Worker is the interface all workers must implement
type Worker interface {
	Name() string
	WorkerID() string
	Run(ctx context.Context) error
}

// PoolConfig configures the worker pool
type PoolConfig struct {
	// Concurrency is the number of selection workers; 0 means 1
	Concurrency  int
	Store        RunStore
	Consumer     jetstream.Consumer // nil polls the store
	OracleFor    OracleFactory
	DefaultModel string
	SelectorOpts []selection.SelectorOption
}

// Pool runs a set of selection workers sharing one store and consumer
type Pool struct {
	workers []Worker
}

// NewPool creates a new worker pool
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("worker pool requires a store")
	}
	if cfg.OracleFor == nil {
		return nil, fmt.Errorf("worker pool requires an oracle factory")
	}

	n := cfg.Concurrency
	if n <= 0 {
		n = 1
	}

	p := &Pool{workers: make([]Worker, 0, n)}
	for i := 0; i < n; i++ {
		base := NewBaseWorker(BaseWorkerConfig{
			Store:    cfg.Store,
			Consumer: cfg.Consumer,
		})
		p.workers = append(p.workers, NewSelectionWorker(base, cfg.OracleFor, cfg.DefaultModel, cfg.SelectorOpts...))
	}
	return p, nil
}

// Workers returns the pool's workers
func (p *Pool) Workers() []Worker {
	return p.workers
}

// Run starts all workers and blocks until ctx is cancelled or a worker fails
func (p *Pool) Run(ctx context.Context) error {
	if len(p.workers) == 0 {
		return fmt.Errorf("no workers configured")
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		w := w
		g.Go(func() error {
			log.Info().Str("worker", w.Name()).Str("worker_id", w.WorkerID()).Msg("starting worker")
			if err := w.Run(ctx); err != nil {
				return fmt.Errorf("worker %s failed: %w", w.WorkerID(), err)
			}
			return nil
		})
	}

	err := g.Wait()
	log.Info().Msg("workers stopped")
	return err
}
