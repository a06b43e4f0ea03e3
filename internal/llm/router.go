package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/QTest-hq/stlc/internal/config"
)

// Retry configuration
const (
	defaultMaxRetries = 3
	initialBackoff    = 2 * time.Second
	maxBackoff        = 30 * time.Second
	backoffMultiplier = 2.0
)

// RetryPolicy controls how transient failures are retried
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy returns the policy used for Ollama calls
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     defaultMaxRetries,
		InitialBackoff: initialBackoff,
		MaxBackoff:     maxBackoff,
	}
}

// Router sends requests to the first available server, retrying transient
// failures with exponential backoff before moving to the next one.
type Router struct {
	clients []Client
	retry   RetryPolicy
}

// NewRouter creates a router from config: the primary Ollama server and an
// optional fallback server sharing the same tier models.
func NewRouter(cfg *config.Config) (*Router, error) {
	models := map[Tier]string{
		Tier1: cfg.LLM.OllamaTier1,
		Tier2: cfg.LLM.OllamaTier2,
	}

	var clients []Client
	for _, url := range []string{cfg.LLM.OllamaURL, cfg.LLM.OllamaFallbackURL} {
		if url == "" {
			continue
		}
		clients = append(clients, NewOllamaClient(url, models, cfg.LLM.Timeout))
	}

	if len(clients) == 0 {
		return nil, fmt.Errorf("no LLM servers configured")
	}

	return NewRouterWithClients(DefaultRetryPolicy(), clients...), nil
}

// NewRouterWithClients creates a router over explicit clients, in priority order
func NewRouterWithClients(policy RetryPolicy, clients ...Client) *Router {
	return &Router{clients: clients, retry: policy}
}

// Primary returns the first configured client
func (r *Router) Primary() Client {
	if len(r.clients) == 0 {
		return nil
	}
	return r.clients[0]
}

// Complete sends a completion request with retry and server fallback
func (r *Router) Complete(ctx context.Context, req *Request) (*Response, error) {
	var lastErr error
	for i, client := range r.clients {
		if !client.Available() {
			log.Debug().Int("server", i).Msg("LLM server not available, trying next")
			continue
		}

		resp, err := r.completeWithRetry(ctx, client, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}

		log.Warn().Err(err).Int("server", i).Msg("LLM server failed after retries, trying next")
		lastErr = err
	}

	if lastErr != nil {
		return nil, fmt.Errorf("all LLM servers failed, last error: %w", lastErr)
	}
	return nil, fmt.Errorf("no LLM server available")
}

func (r *Router) completeWithRetry(ctx context.Context, client Client, req *Request) (*Response, error) {
	var lastErr error
	backoff := r.retry.InitialBackoff

	for attempt := 0; attempt <= r.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Debug().
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("retrying after backoff")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}

			backoff = time.Duration(float64(backoff) * backoffMultiplier)
			if backoff > r.retry.MaxBackoff {
				backoff = r.retry.MaxBackoff
			}
		}

		resp, err := client.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if !isRetryableError(err) {
			log.Debug().Err(err).Msg("non-retryable error, stopping retries")
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// isRetryableError determines if an error warrants a retry
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := err.Error()
	for _, s := range []string{"timeout", "deadline exceeded", "connection refused", "connection reset", "EOF"} {
		if strings.Contains(msg, s) {
			return true
		}
	}

	// Missing model configuration and similar local errors
	return false
}

// HealthCheck verifies at least one server is available
func (r *Router) HealthCheck() error {
	for i, client := range r.clients {
		if client.Available() {
			log.Debug().Int("server", i).Msg("LLM server available")
			return nil
		}
	}
	return fmt.Errorf("no LLM server available")
}

// NewFromConfig builds the completer used by the application: the router,
// wrapped in the configured response cache.
func NewFromConfig(cfg *config.Config) (Completer, *Router, error) {
	router, err := NewRouter(cfg)
	if err != nil {
		return nil, nil, err
	}

	cache := CreateCache(cfg.LLM.Cache, 10000, cfg.LLM.CacheTTL)
	if _, ok := cache.(NullCache); ok {
		return router, router, nil
	}
	return NewCachedCompleter(router, cache, cfg.LLM.CacheTTL), router, nil
}
