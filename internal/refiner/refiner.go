// Package refiner drafts one plan unit and edits it until its length sits
// inside the tolerance band around the kind's target.
package refiner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/jackzampolin/longform/internal/attempt"
	"github.com/jackzampolin/longform/internal/document"
	"github.com/jackzampolin/longform/internal/prompts"
	"github.com/jackzampolin/longform/internal/providers"
	"github.com/jackzampolin/longform/internal/recovery"
	"github.com/jackzampolin/longform/internal/wordcount"
)

// Defaults for Config.
const (
	DefaultDraftAttempts = 5
	DefaultMaxIterations = 5
	DefaultTolerance     = 0.1
)

var (
	// ErrDraftExhausted means no usable draft was recovered.
	ErrDraftExhausted = errors.New("unit draft attempts exhausted")
	// ErrNotConverged means the edit cap was reached outside tolerance.
	// The unit is still usable.
	ErrNotConverged = errors.New("unit length did not converge")

	errNoResponse = errors.New("empty completion")
	errEmptyBody  = errors.New("empty body")
)

// DraftResponse is the structured reply to a unit draft prompt.
type DraftResponse struct {
	UnitID string
	Check  string
	Body   string
}

// EditResponse is the raw reply to an edit prompt. Edits are free text,
// never JSON.
type EditResponse struct {
	Text string
}

// Config configures a Refiner.
type Config struct {
	Completer providers.Completer
	Model     string
	Prompts   *prompts.Resolver
	Recoverer recovery.Recoverer

	DraftAttempts int
	MaxIterations int
	// Tolerance is the accepted deviation as a fraction of the target.
	Tolerance float64

	Logger *slog.Logger
}

// Refiner produces finished units.
type Refiner struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a refiner.
func New(cfg Config) *Refiner {
	if cfg.DraftAttempts <= 0 {
		cfg.DraftAttempts = DefaultDraftAttempts
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Refiner{cfg: cfg, logger: logger}
}

// Refine drafts unit and corrects its length. planText is the whole plan
// as shown to the model.
//
// A unit that never reaches tolerance is returned complete with
// Converged=false together with ErrNotConverged. Any other error means the
// unit has no body.
func (r *Refiner) Refine(ctx context.Context, req document.Request, planText string, unit document.PlanUnit) (document.Unit, error) {
	spec := req.Kind.Spec()
	out := document.Unit{PlanUnit: unit, TargetWords: spec.TargetWords}
	if req.Kind == document.KindUnknown {
		err := fmt.Errorf("%w: %q", document.ErrUnknownKind, req.Type)
		out.Failure = err.Error()
		return out, err
	}
	logger := r.logger.With("document", req.Label(), "unit", unit.ID)

	draft, err := r.draft(ctx, req, spec, planText, unit, logger)
	if err != nil {
		out.Failure = err.Error()
		return out, err
	}
	out.Body = draft.Body
	logger.Debug("unit drafted", "words", wordcount.Count(out.Body))

	err = r.fitLength(ctx, req, &out, logger)
	if err != nil {
		out.Failure = err.Error()
	}
	return out, err
}

func (r *Refiner) draft(ctx context.Context, req document.Request, spec document.KindSpec,
	planText string, unit document.PlanUnit, logger *slog.Logger) (DraftResponse, error) {

	prompt, err := r.cfg.Prompts.Render(prompts.UnitDraftKey(req.Kind), prompts.UnitData{
		UnitID:      unit.ID,
		Brief:       unit.Brief,
		Plan:        planText,
		Requirement: req.Prompt,
		TargetWords: spec.TargetWords,
	})
	if err != nil {
		return DraftResponse{}, err
	}

	ctx = providers.WithCallLabels(ctx, providers.CallLabels{Document: req.Label(), Unit: unit.ID, Site: "unit_draft"})
	policy := attempt.Policy{
		Attempts: r.cfg.DraftAttempts,
		OnRetry: func(n int, err error) {
			logger.Warn("failed to parse unit draft, trying again", "attempt", n, "error", err)
		},
	}
	outcome := attempt.Do(ctx, policy, func(ctx context.Context) (DraftResponse, error) {
		text := r.cfg.Completer.Complete(ctx, r.cfg.Model, prompt)
		if text == "" {
			return DraftResponse{}, errNoResponse
		}
		obj, err := r.cfg.Recoverer.Recover(text, spec.BodyField)
		if err != nil {
			return DraftResponse{}, err
		}
		body := strings.TrimSpace(obj.String(spec.BodyField))
		if body == "" {
			return DraftResponse{}, fmt.Errorf("%w: %s", errEmptyBody, spec.BodyField)
		}
		return DraftResponse{
			UnitID: obj.String(spec.IDField),
			Check:  obj.String("check"),
			Body:   body,
		}, nil
	})
	switch {
	case outcome.OK():
		return outcome.Value, nil
	case ctx.Err() != nil:
		return DraftResponse{}, fmt.Errorf("unit draft: %w", ctx.Err())
	default:
		return DraftResponse{}, fmt.Errorf("%w: %w", ErrDraftExhausted, outcome.Err)
	}
}

// fitLength runs the edit loop on u in place.
func (r *Refiner) fitLength(ctx context.Context, req document.Request, u *document.Unit, logger *slog.Logger) error {
	target := u.TargetWords
	limit := r.cfg.Tolerance * float64(target)
	ctx = providers.WithCallLabels(ctx, providers.CallLabels{Document: req.Label(), Unit: u.ID, Site: "unit_edit"})

	for {
		u.WordCount = wordcount.Count(u.Body)
		diff := abs(target - u.WordCount)
		if float64(diff) <= limit {
			u.WithinTolerance = true
			u.Converged = true
			return nil
		}
		if u.Iterations >= r.cfg.MaxIterations {
			logger.Warn("unit length did not converge",
				"words", u.WordCount, "target", target, "iterations", u.Iterations)
			return fmt.Errorf("%w: %d words after %d edits, target %d±%d",
				ErrNotConverged, u.WordCount, u.Iterations, target, int(math.Floor(limit)))
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("unit edit: %w", err)
		}

		direction := "lengthen"
		if u.WordCount > target {
			direction = "shorten"
		}
		prompt, err := r.cfg.Prompts.Render(prompts.EditKey, prompts.EditData{
			Direction: direction,
			Diff:      diff,
			Text:      u.Body,
		})
		if err != nil {
			return err
		}

		u.Iterations++
		edit := EditResponse{Text: strings.TrimSpace(r.cfg.Completer.Complete(ctx, r.cfg.Model, prompt))}
		if edit.Text == "" {
			logger.Warn("empty edit response, keeping previous body", "iteration", u.Iterations)
			continue
		}
		u.Body = edit.Text
		logger.Debug("unit edited", "iteration", u.Iterations, "direction", direction, "diff", diff)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
