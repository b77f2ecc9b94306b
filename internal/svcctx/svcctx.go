// Package svcctx provides service context for dependency injection via context.
// Commands build one Services value at startup and extract what they need.
package svcctx

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/longform/internal/config"
	"github.com/jackzampolin/longform/internal/home"
	"github.com/jackzampolin/longform/internal/llmcall"
	"github.com/jackzampolin/longform/internal/providers"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Config   *config.Manager
	Home     *home.Dir
	Registry *providers.Registry
	Ledger   *llmcall.Store
	Logger   *slog.Logger
}

// Open builds Services from a loaded config. The backend registry follows
// config hot reloads once the manager is watching.
func Open(cfgMgr *config.Manager, h *home.Dir, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := cfgMgr.Get()

	if err := h.EnsureExists(); err != nil {
		return nil, err
	}

	reg := providers.NewRegistry()
	reg.SetLogger(logger)
	reg.Reload(cfg.ToProviderRegistryConfig())
	cfgMgr.OnChange(func(c *config.Config) {
		reg.Reload(c.ToProviderRegistryConfig())
	})

	ledger, err := llmcall.Open(home.Resolve(cfg.Paths.Ledger, h.LedgerPath()))
	if err != nil {
		return nil, fmt.Errorf("failed to open call ledger: %w", err)
	}

	return &Services{
		Config:   cfgMgr,
		Home:     h,
		Registry: reg,
		Ledger:   ledger,
		Logger:   logger,
	}, nil
}

// Close releases the ledger.
func (s *Services) Close() error {
	if s == nil || s.Ledger == nil {
		return nil
	}
	return s.Ledger.Close()
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// RegistryFrom extracts the provider registry from context.
func RegistryFrom(ctx context.Context) *providers.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Registry
	}
	return nil
}

// LoggerFrom extracts the logger from context, falling back to slog.Default.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// ConfigFrom extracts the current configuration from context.
func ConfigFrom(ctx context.Context) *config.Config {
	if s := ServicesFrom(ctx); s != nil && s.Config != nil {
		return s.Config.Get()
	}
	return nil
}

// LedgerFrom extracts the call ledger from context.
func LedgerFrom(ctx context.Context) *llmcall.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Ledger
	}
	return nil
}
