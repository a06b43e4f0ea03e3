package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/stlc/internal/chain"
	"github.com/QTest-hq/stlc/internal/config"
	"github.com/QTest-hq/stlc/internal/db"
	"github.com/QTest-hq/stlc/internal/llm"
	"github.com/QTest-hq/stlc/pkg/model"
)

// Store is the persistence used by the API. *db.Store implements it.
type Store interface {
	Ping(ctx context.Context) error
	CreateSelectionRun(ctx context.Context, run *db.SelectionRun) error
	GetSelectionRun(ctx context.Context, id uuid.UUID) (*db.SelectionRun, error)
	ListSelectionRuns(ctx context.Context, limit, offset int) ([]db.SelectionRun, error)
	ListCombinations(ctx context.Context) ([]db.Combination, error)
	GetSessionTestCases(ctx context.Context, c db.Combination) ([]model.TestCase, error)
	SaveSession(ctx context.Context, session *db.Session) error
}

// Queue hands selection runs to workers. *nats.Client implements it.
type Queue interface {
	PublishSelection(ctx context.Context, runID uuid.UUID) error
	HealthCheck() error
}

// Deps are the optional backends of the server. A nil Store or Queue
// disables the routes that need them.
type Deps struct {
	LLM   llm.Completer
	Store Store
	Queue Queue
}

// Server represents the API server
type Server struct {
	cfg    *config.Config
	router *chi.Mux
	llm    llm.Completer
	store  Store
	queue  Queue
	chains *chain.Runner
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		router: chi.NewRouter(),
		llm:    deps.LLM,
		store:  deps.Store,
		queue:  deps.Queue,
	}
	if deps.LLM != nil {
		s.chains = chain.NewRunner(deps.LLM, chain.WithFinalModel(cfg.LLM.FinalModel))
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	// chains run several sequential model calls
	s.router.Use(middleware.Timeout(10 * time.Minute))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.healthCheck)
	s.router.Get("/ready", s.readyCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/extract", s.extractJSON)

		r.Route("/selection", func(r chi.Router) {
			r.Post("/", s.runSelection)
			r.Get("/", s.listSelectionRuns)
			r.Get("/{runID}", s.getSelectionRun)
		})

		r.Route("/chains", func(r chi.Router) {
			r.Get("/", s.listPhases)
			r.Post("/{phase}", s.runChain)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/types", s.listTestTypes)
			r.Post("/", s.generateScenarios)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/combinations", s.listCombinations)
			r.Get("/testcases", s.getSessionTestCases)
		})
	})
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyCheck reports each configured backend; any failure makes the
// service not ready
func (s *Server) readyCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{}
	ready := true
	record := func(name string, err error) {
		if err != nil {
			checks[name] = err.Error()
			ready = false
			return
		}
		checks[name] = "ok"
	}

	if s.store != nil {
		record("database", s.store.Ping(ctx))
	}
	if s.queue != nil {
		record("nats", s.queue.HealthCheck())
	}
	if hc, ok := s.llm.(interface{ HealthCheck() error }); ok {
		record("llm", hc.HealthCheck())
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{"status": status, "checks": checks})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
