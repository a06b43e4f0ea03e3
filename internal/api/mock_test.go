package api

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/QTest-hq/stlc/internal/config"
	"github.com/QTest-hq/stlc/internal/db"
	"github.com/QTest-hq/stlc/internal/llm"
	"github.com/QTest-hq/stlc/pkg/model"
)

// mockStore is an in-memory Store
type mockStore struct {
	mu       sync.Mutex
	runs     map[uuid.UUID]*db.SelectionRun
	combos   []db.Combination
	cases    map[db.Combination][]model.TestCase
	sessions []db.Session
	pingErr  error
	storeErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		runs:  make(map[uuid.UUID]*db.SelectionRun),
		cases: make(map[db.Combination][]model.TestCase),
	}
}

func (m *mockStore) Ping(ctx context.Context) error { return m.pingErr }

func (m *mockStore) CreateSelectionRun(ctx context.Context, run *db.SelectionRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return m.storeErr
	}
	run.ID = uuid.New()
	run.Status = db.RunPending
	run.CreatedAt = time.Now()
	cp := *run
	m.runs[run.ID] = &cp
	return nil
}

func (m *mockStore) GetSelectionRun(ctx context.Context, id uuid.UUID) (*db.SelectionRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return nil, m.storeErr
	}
	run, ok := m.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *run
	return &cp, nil
}

func (m *mockStore) ListSelectionRuns(ctx context.Context, limit, offset int) ([]db.SelectionRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return nil, m.storeErr
	}
	var out []db.SelectionRun
	for _, run := range m.runs {
		out = append(out, *run)
	}
	return out, nil
}

func (m *mockStore) ListCombinations(ctx context.Context) ([]db.Combination, error) {
	if m.storeErr != nil {
		return nil, m.storeErr
	}
	return m.combos, nil
}

func (m *mockStore) GetSessionTestCases(ctx context.Context, c db.Combination) ([]model.TestCase, error) {
	if m.storeErr != nil {
		return nil, m.storeErr
	}
	return m.cases[c], nil
}

func (m *mockStore) SaveSession(ctx context.Context, session *db.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.storeErr != nil {
		return m.storeErr
	}
	session.ID = uuid.New()
	session.CreatedAt = time.Now()
	m.sessions = append(m.sessions, *session)
	return nil
}

// mockQueue records published runs
type mockQueue struct {
	mu        sync.Mutex
	published []uuid.UUID
	err       error
}

func (q *mockQueue) PublishSelection(ctx context.Context, runID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.published = append(q.published, runID)
	return nil
}

func (q *mockQueue) HealthCheck() error { return q.err }

// mockLLM answers with a function of the request
type mockLLM struct {
	mu       sync.Mutex
	answer   func(req *llm.Request) (string, error)
	requests []llm.Request
}

func (m *mockLLM) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, *req)
	m.mu.Unlock()

	content, err := m.answer(req)
	if err != nil {
		return nil, err
	}
	return &llm.Response{Content: content, Model: req.Model}, nil
}

// sameWhenPromptContains answers is_same=true when the prompt holds marker
func sameWhenPromptContains(marker string) *mockLLM {
	return &mockLLM{answer: func(req *llm.Request) (string, error) {
		if strings.Contains(req.Messages[0].Content, marker) {
			return `{"is_same": true}`, nil
		}
		return `{"is_same": false}`, nil
	}}
}

func reviewBy(req *llm.Request) (string, error) {
	return "review by " + req.Model, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Port: 8080,
		LLM:  config.LLMConfig{FinalModel: "llama3.1"},
		Selection: config.SelectionConfig{
			Model: "llama3.2",
		},
	}
}

func newTestServer(deps Deps) *Server {
	s, err := NewServer(testConfig(), deps)
	if err != nil {
		panic(err)
	}
	return s
}

var errBackend = errors.New("backend down")
