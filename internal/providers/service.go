package providers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackzampolin/longform/internal/attempt"
)

// Retry defaults for backend calls.
const (
	DefaultAttempts = 8
	DefaultMinWait  = time.Second
	DefaultMaxWait  = 60 * time.Second
)

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Registry *Registry

	// Attempts is the retry ceiling per call (default 8).
	Attempts int
	// MinWait and MaxWait bound the exponential backoff (default 1s, 60s).
	MinWait time.Duration
	MaxWait time.Duration
	// CallTimeout bounds a single backend attempt. Zero leaves it to the
	// backend's HTTP client.
	CallTimeout time.Duration

	Observer CallObserver
	Logger   *slog.Logger
}

// Service is the completion adapter. It resolves models through the
// registry, honours per-backend rate limits, retries transient failures,
// and turns every failure into an empty completion.
type Service struct {
	registry    *Registry
	policy      attempt.Policy
	callTimeout time.Duration
	observer    CallObserver
	logger      *slog.Logger
}

// NewService creates a completion service.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.MinWait <= 0 {
		cfg.MinWait = DefaultMinWait
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultMaxWait
	}
	if cfg.MaxWait < cfg.MinWait {
		cfg.MaxWait = cfg.MinWait
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		registry: cfg.Registry,
		policy: attempt.Policy{
			Attempts: cfg.Attempts,
			Delay:    cfg.MinWait,
			MaxDelay: cfg.MaxWait,
			Backoff:  attempt.Exponential,
			Jitter:   cfg.MinWait,
			RetryIf:  IsTransient,
		},
		callTimeout: cfg.CallTimeout,
		observer:    cfg.Observer,
		logger:      logger,
	}
}

// Registry returns the registry the service routes through.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Complete returns the completion text, or "" when the call could not be
// completed.
func (s *Service) Complete(ctx context.Context, model, prompt string) string {
	return s.CompleteResult(ctx, model, prompt).Text
}

// CompleteResult is Complete with the full outcome.
func (s *Service) CompleteResult(ctx context.Context, model, prompt string) CallResult {
	start := time.Now()
	res := CallResult{Model: model}

	route, err := s.registry.Resolve(model)
	if err != nil {
		res.Err = err
		s.finish(ctx, &res, start, prompt)
		return res
	}
	res.Backend = route.Backend.Name()
	res.Upstream = route.Upstream

	labels := LabelsFrom(ctx)
	policy := s.policy
	policy.OnRetry = func(n int, err error) {
		s.logger.Debug("retrying backend call",
			"model", model, "site", labels.Site, "document", labels.Document,
			"unit", labels.Unit, "attempt", n, "error", err)
	}

	out := attempt.Do(ctx, policy, func(ctx context.Context) (string, error) {
		return s.call(ctx, route, prompt)
	})
	res.Attempts = out.Attempts
	if out.OK() {
		res.Text = out.Value
	} else {
		res.Err = out.Err
	}
	s.finish(ctx, &res, start, prompt)
	return res
}

func (s *Service) call(ctx context.Context, route Route, prompt string) (string, error) {
	if err := route.Limiter.Wait(ctx); err != nil {
		return "", err
	}
	callCtx := ctx
	if s.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.callTimeout)
		defer cancel()
	}
	text, err := route.Backend.Generate(callCtx, route.Upstream, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", ErrCallTimeout, err)
		}
		var rl *RateLimitError
		if errors.As(err, &rl) {
			route.Limiter.Record429(rl.RetryAfter)
		}
		return "", err
	}
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

func (s *Service) finish(ctx context.Context, res *CallResult, start time.Time, prompt string) {
	res.Latency = time.Since(start)
	labels := LabelsFrom(ctx)
	if res.Err != nil {
		s.logger.Warn("backend call failed",
			"model", res.Model, "site", labels.Site, "document", labels.Document,
			"unit", labels.Unit, "attempts", res.Attempts, "error", res.Err)
	}
	if s.observer == nil {
		return
	}
	s.observer.ObserveCall(ctx, CallEvent{
		Time:       start,
		Labels:     labels,
		Model:      res.Model,
		Backend:    res.Backend,
		Attempts:   res.Attempts,
		Latency:    res.Latency,
		PromptHash: hashPrompt(prompt),
		Response:   len(res.Text),
		Err:        res.Err,
	})
}

func hashPrompt(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}
