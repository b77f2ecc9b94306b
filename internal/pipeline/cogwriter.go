package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/longform/internal/document"
	"github.com/jackzampolin/longform/internal/planner"
	"github.com/jackzampolin/longform/internal/refiner"
)

// CogWriterConfig configures the plan-then-refine generator.
type CogWriterConfig struct {
	Planner *planner.Builder
	Refiner *refiner.Refiner
	Model   string
	Logger  *slog.Logger
}

// CogWriter builds a plan, then refines every unit concurrently and
// assembles them in plan order.
type CogWriter struct {
	planner *planner.Builder
	refiner *refiner.Refiner
	model   string
	logger  *slog.Logger
}

// NewCogWriter creates the plan-then-refine generator.
func NewCogWriter(cfg CogWriterConfig) *CogWriter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CogWriter{
		planner: cfg.Planner,
		refiner: cfg.Refiner,
		model:   cfg.Model,
		logger:  logger,
	}
}

func (c *CogWriter) Name() string { return CogWriterName }

// Generate runs the plan stage to completion before any unit starts. A unit
// that fails outright cancels its siblings; a unit that only misses the
// length tolerance does not.
func (c *CogWriter) Generate(ctx context.Context, req document.Request) (*document.Result, error) {
	start := time.Now()
	res := newResult(req, CogWriterName, c.model)
	logger := c.logger.With("document", req.Label())

	plan, err := c.planner.Build(ctx, req)
	if err != nil {
		return degrade(res, start, fmt.Errorf("plan: %w", err))
	}

	spec := req.Kind.Spec()
	planText := planner.PlanJSON(spec, plan.Units)
	units := make([]document.Unit, len(plan.Units))

	g, gctx := errgroup.WithContext(ctx)
	for i, pu := range plan.Units {
		g.Go(func() error {
			u, err := c.refiner.Refine(gctx, req, planText, pu)
			units[i] = u
			if err != nil && !errors.Is(err, refiner.ErrNotConverged) {
				return fmt.Errorf("unit %s: %w", pu.ID, err)
			}
			return nil
		})
	}
	err = g.Wait()
	res.Plan = units
	if err != nil {
		return degrade(res, start, err)
	}

	res.FinalText = document.Assemble(spec, units)
	res.Status = document.StatusOf(units)
	res.Elapsed = time.Since(start).Seconds()
	logger.Info("document generated",
		"status", res.Status, "units", len(units), "elapsed", time.Since(start).Round(time.Millisecond))
	return res, nil
}
