// Package planner builds the structural plan of a document: a draft from
// the requirement, then a mandatory revision pass over that draft.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackzampolin/longform/internal/attempt"
	"github.com/jackzampolin/longform/internal/document"
	"github.com/jackzampolin/longform/internal/prompts"
	"github.com/jackzampolin/longform/internal/providers"
	"github.com/jackzampolin/longform/internal/recovery"
)

// Defaults for Config.
const (
	DefaultAttempts   = 3
	DefaultRetryDelay = time.Second
)

var (
	// ErrPlanExhausted means a plan stage ran out of attempts.
	ErrPlanExhausted = errors.New("plan attempts exhausted")
	// ErrEmptyPlan means a response recovered but held no usable units.
	ErrEmptyPlan = errors.New("plan has no units")
	errNoResponse = errors.New("empty completion")
)

// State is a plan builder state.
type State string

const (
	StateDrafting State = "DRAFTING"
	StateDrafted  State = "DRAFTED"
	StateRevising State = "REVISING"
	StateFinal    State = "FINAL"
	StateFailed   State = "FAILED"
)

// Transition records one state change.
type Transition struct {
	From     State     `json:"from"`
	To       State     `json:"to"`
	Attempts int       `json:"attempts,omitempty"`
	At       time.Time `json:"at"`
	Err      string    `json:"error,omitempty"`
}

// Plan is the ordered unit list for one document.
type Plan struct {
	Kind    document.Kind
	Units   []document.PlanUnit
	State   State
	History []Transition
}

func (p *Plan) moveTo(s State, attempts int, err error) {
	t := Transition{From: p.State, To: s, Attempts: attempts, At: time.Now()}
	if err != nil {
		t.Err = err.Error()
	}
	p.History = append(p.History, t)
	p.State = s
}

// Config configures a Builder.
type Config struct {
	Completer providers.Completer
	Model     string
	Prompts   *prompts.Resolver
	Recoverer recovery.Recoverer

	// Attempts per stage (default 3). RetryDelay grows linearly between
	// attempts: 1x, 2x, ...
	Attempts   int
	RetryDelay time.Duration

	Logger *slog.Logger
}

// Builder produces plans.
type Builder struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a plan builder.
func New(cfg Config) *Builder {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{cfg: cfg, logger: logger}
}

// Build drafts and revises the plan for req. On failure the returned plan
// is in StateFailed and carries its history; the error wraps
// ErrPlanExhausted unless ctx was cancelled.
func (b *Builder) Build(ctx context.Context, req document.Request) (*Plan, error) {
	plan := &Plan{Kind: req.Kind, State: StateDrafting}
	if req.Kind == document.KindUnknown {
		err := fmt.Errorf("%w: %q", document.ErrUnknownKind, req.Type)
		plan.moveTo(StateFailed, 0, err)
		return plan, err
	}
	spec := req.Kind.Spec()
	logger := b.logger.With("document", req.Label(), "kind", spec.Name)

	draftPrompt, err := b.cfg.Prompts.Render(prompts.PlanDraftKey(req.Kind), prompts.PlanData{
		Requirement: req.Prompt,
	})
	if err != nil {
		plan.moveTo(StateFailed, 0, err)
		return plan, err
	}

	logger.Info("creating initial plan")
	draft := b.stage(ctx, req, "plan_draft", draftPrompt, spec, spec.PlanField, logger)
	if !draft.OK() {
		plan.moveTo(StateFailed, draft.Attempts, draft.Err)
		return plan, b.stageErr(ctx, "draft", draft.Err)
	}
	plan.Units = draft.Value
	plan.moveTo(StateDrafted, draft.Attempts, nil)
	b.checkCount(logger, spec, plan.Units)

	revisePrompt, err := b.cfg.Prompts.Render(prompts.PlanReviseKey(req.Kind), prompts.PlanData{
		Requirement: req.Prompt,
		Plan:        PlanJSON(spec, plan.Units),
	})
	if err != nil {
		plan.moveTo(StateFailed, 0, err)
		return plan, err
	}

	plan.moveTo(StateRevising, 0, nil)
	logger.Info("revising plan", "units", len(plan.Units))
	revised := b.stage(ctx, req, "plan_revise", revisePrompt, spec, spec.RevisedPlanField(), logger)
	if !revised.OK() {
		plan.moveTo(StateFailed, revised.Attempts, revised.Err)
		return plan, b.stageErr(ctx, "revise", revised.Err)
	}
	plan.Units = revised.Value
	plan.moveTo(StateFinal, revised.Attempts, nil)
	b.checkCount(logger, spec, plan.Units)
	logger.Info("plan final", "units", len(plan.Units))
	return plan, nil
}

func (b *Builder) stageErr(ctx context.Context, stage string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("plan %s: %w", stage, ctx.Err())
	}
	return fmt.Errorf("%w: %s: %w", ErrPlanExhausted, stage, err)
}

func (b *Builder) stage(ctx context.Context, req document.Request, site, prompt string,
	spec document.KindSpec, field string, logger *slog.Logger) attempt.Outcome[[]document.PlanUnit] {

	ctx = providers.WithCallLabels(ctx, providers.CallLabels{Document: req.Label(), Site: site})
	policy := attempt.Policy{
		Attempts: b.cfg.Attempts,
		Delay:    b.cfg.RetryDelay,
		Backoff:  attempt.Linear,
		OnRetry: func(n int, err error) {
			logger.Warn("plan attempt failed, trying again", "stage", site, "attempt", n, "error", err)
		},
	}
	rec := b.cfg.Recoverer
	if rec.Schema == nil {
		schema, err := planSchema(spec, field)
		if err != nil {
			return attempt.Outcome[[]document.PlanUnit]{Err: err}
		}
		rec.Schema = schema
	}
	return attempt.Do(ctx, policy, func(ctx context.Context) ([]document.PlanUnit, error) {
		text := b.cfg.Completer.Complete(ctx, b.cfg.Model, prompt)
		if text == "" {
			return nil, errNoResponse
		}
		obj, err := rec.Recover(text, field)
		if err != nil {
			return nil, err
		}
		return ParseUnits(obj, field, spec)
	})
}

func (b *Builder) checkCount(logger *slog.Logger, spec document.KindSpec, units []document.PlanUnit) {
	if len(units) != spec.Units {
		logger.Warn("plan unit count differs from kind", "units", len(units), "expected", spec.Units)
	}
}

// ParseUnits reads the unit array in field. Elements without an id are
// rejected so that the caller retries.
func ParseUnits(obj *recovery.Object, field string, spec document.KindSpec) ([]document.PlanUnit, error) {
	elems := obj.Array(field)
	if len(elems) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyPlan, field)
	}
	units := make([]document.PlanUnit, 0, len(elems))
	for i, el := range elems {
		id := strings.TrimSpace(el.String(spec.IDField))
		if id == "" {
			return nil, fmt.Errorf("%w: %s[%d] has no %s", ErrEmptyPlan, field, i, spec.IDField)
		}
		units = append(units, document.PlanUnit{ID: id, Brief: el.String(spec.BriefField)})
	}
	return units, nil
}
