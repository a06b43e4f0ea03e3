package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/QTest-hq/stlc/internal/db"
)

// memStore is an in-memory RunStore
type memStore struct {
	mu      sync.Mutex
	runs    map[uuid.UUID]*db.SelectionRun
	order   []uuid.UUID
	listErr error

	// claimErr fails claims; updateErr fails every update except a release
	// back to pending
	claimErr  error
	updateErr error
}

func newMemStore() *memStore {
	return &memStore{runs: make(map[uuid.UUID]*db.SelectionRun)}
}

func (s *memStore) add(modelName, input string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.New()
	s.runs[id] = &db.SelectionRun{
		ID:        id,
		Status:    db.RunPending,
		Model:     modelName,
		Input:     json.RawMessage(input),
		CreatedAt: time.Now(),
	}
	s.order = append(s.order, id)
	return id
}

func (s *memStore) get(id uuid.UUID) db.SelectionRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.runs[id]
}

func (s *memStore) GetSelectionRun(ctx context.Context, id uuid.UUID) (*db.SelectionRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *run
	return &cp, nil
}

func (s *memStore) ClaimSelectionRun(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return s.claimErr
	}
	run, ok := s.runs[id]
	if !ok || run.Status != db.RunPending {
		return db.ErrRunNotClaimable
	}
	now := time.Now()
	run.Status = db.RunRunning
	run.StartedAt = &now
	return nil
}

func (s *memStore) UpdateSelectionRun(ctx context.Context, id uuid.UUID, status db.RunStatus, result json.RawMessage, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil && status != db.RunPending {
		return s.updateErr
	}
	run := s.runs[id]
	run.Status = status
	if len(result) > 0 {
		r := result
		run.Result = &r
	}
	run.Error = errMsg
	if status.Terminal() {
		now := time.Now()
		run.CompletedAt = &now
	}
	return nil
}

func (s *memStore) ListPendingSelectionRuns(ctx context.Context, limit int) ([]db.SelectionRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []db.SelectionRun
	for _, id := range s.order {
		if run := s.runs[id]; run.Status == db.RunPending {
			out = append(out, *run)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *memStore) setClaimErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimErr = err
}

func (s *memStore) countStatus(status db.RunStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, run := range s.runs {
		if run.Status == status {
			n++
		}
	}
	return n
}
