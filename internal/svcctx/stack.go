package svcctx

import (
	"fmt"

	"github.com/jackzampolin/longform/internal/config"
	"github.com/jackzampolin/longform/internal/coordinator"
	"github.com/jackzampolin/longform/internal/home"
	"github.com/jackzampolin/longform/internal/llmcall"
	"github.com/jackzampolin/longform/internal/pipeline"
	"github.com/jackzampolin/longform/internal/planner"
	"github.com/jackzampolin/longform/internal/prompts"
	"github.com/jackzampolin/longform/internal/providers"
	"github.com/jackzampolin/longform/internal/recovery"
	"github.com/jackzampolin/longform/internal/refiner"
)

// Stack is the per-run generation wiring: one completion service observed
// by the ledger, one coordinator, and every generator.
type Stack struct {
	RunID       string
	Generation  config.GenerationCfg
	Service     *providers.Service
	Coordinator *coordinator.Coordinator
	Recorder    *llmcall.Recorder
	Generators  *pipeline.Registry
}

// NewStack wires generators for one run against the current config.
// Generation settings are captured once; a config reload only affects the
// backend registry.
func (s *Services) NewStack(runID string, gen config.GenerationCfg) (*Stack, error) {
	cfg := s.Config.Get()
	logger := s.Logger.With("run", runID)

	rec := llmcall.NewRecorder(s.Ledger, runID, logger)

	svcCfg := cfg.ToServiceConfig(s.Registry)
	svcCfg.Observer = rec
	svcCfg.Logger = logger
	svc := providers.NewService(svcCfg)

	coord := coordinator.New(gen.Concurrency)
	completer := coordinator.Guard(coord, svc)

	resolver, err := prompts.NewDefaultResolver(home.Resolve(cfg.Paths.PromptOverrides, s.Home.PromptsPath()), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}
	rc := recovery.Recoverer{Mode: recovery.ParseMode(gen.Extraction)}

	plans := planner.New(planner.Config{
		Completer:  completer,
		Model:      gen.Model,
		Prompts:    resolver,
		Recoverer:  rc,
		Attempts:   gen.PlanAttempts,
		RetryDelay: gen.PlanRetryDelay(),
		Logger:     logger,
	})
	units := refiner.New(refiner.Config{
		Completer:     completer,
		Model:         gen.Model,
		Prompts:       resolver,
		Recoverer:     rc,
		DraftAttempts: gen.DraftAttempts,
		MaxIterations: gen.MaxRefineIterations,
		Tolerance:     gen.Tolerance,
		Logger:        logger,
	})

	gens := pipeline.NewRegistry(
		pipeline.NewCogWriter(pipeline.CogWriterConfig{
			Planner: plans,
			Refiner: units,
			Model:   gen.Model,
			Logger:  logger,
		}),
		pipeline.NewBaseline(pipeline.BaselineConfig{
			Completer: completer,
			Model:     gen.Model,
			Logger:    logger,
		}),
	)

	return &Stack{
		RunID:       runID,
		Generation:  gen,
		Service:     svc,
		Coordinator: coord,
		Recorder:    rec,
		Generators:  gens,
	}, nil
}
