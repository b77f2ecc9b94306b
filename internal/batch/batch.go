// Package batch drives a whole dataset through a generator with
// checkpoint resume, per-document retries and ordered output.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/longform/internal/attempt"
	"github.com/jackzampolin/longform/internal/checkpoint"
	"github.com/jackzampolin/longform/internal/document"
	"github.com/jackzampolin/longform/internal/pipeline"
)

// Defaults for Config.
const (
	DefaultDocumentAttempts = 3
	DefaultRetryDelay       = time.Second
	DefaultProgressEvery    = 10
)

// ErrFatal marks local I/O failures that abort the run.
var ErrFatal = errors.New("fatal")

// Outcome is the final disposition of one document.
type Outcome struct {
	RunID          string
	Key            string
	RequestID      string
	Kind           document.Kind
	Status         document.Status
	Failure        string
	Attempts       int
	Elapsed        float64
	FromCheckpoint bool
	Time           time.Time
}

// OutcomeRecorder receives one Outcome per distinct document.
type OutcomeRecorder interface {
	RecordOutcome(ctx context.Context, o Outcome) error
}

// Config configures an Orchestrator.
type Config struct {
	Generator pipeline.Generator
	// Checkpoints may be nil to disable resume.
	Checkpoints *checkpoint.Store
	Recorder    OutcomeRecorder

	DocumentAttempts int
	RetryDelay       time.Duration
	ProgressEvery    int

	// RunID tags ledger rows; a random one is generated when empty.
	RunID  string
	Logger *slog.Logger
}

// Summary counts a run's documents by disposition.
type Summary struct {
	RunID        string        `json:"run_id" yaml:"run_id"`
	Total        int           `json:"total" yaml:"total"`
	Distinct     int           `json:"distinct" yaml:"distinct"`
	Resumed      int           `json:"resumed" yaml:"resumed"`
	Completed    int           `json:"completed" yaml:"completed"`
	NonConverged int           `json:"nonconverged" yaml:"nonconverged"`
	Degraded     int           `json:"degraded" yaml:"degraded"`
	Elapsed      time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Orchestrator runs batches.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.DocumentAttempts <= 0 {
		cfg.DocumentAttempts = DefaultDocumentAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = DefaultProgressEvery
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{cfg: cfg, logger: logger.With("run", cfg.RunID)}
}

// RunID returns the run identifier.
func (o *Orchestrator) RunID() string {
	return o.cfg.RunID
}

type progress struct {
	done, resumed, completed, nonconverged, degraded atomic.Int64
}

// Run processes reqs and returns one result per request in input order.
// Requests sharing a key are generated once. A non-nil error is either a
// cancellation or wraps ErrFatal; completed checkpoints survive it.
func (o *Orchestrator) Run(ctx context.Context, reqs []document.Request) ([]*document.Result, Summary, error) {
	start := time.Now()
	keys := make([]string, len(reqs))
	first := make(map[string]int, len(reqs))
	var order []int
	for i, req := range reqs {
		keys[i] = req.Key()
		if _, seen := first[keys[i]]; !seen {
			first[keys[i]] = i
			order = append(order, i)
		}
	}
	if dup := len(reqs) - len(order); dup > 0 {
		o.logger.Warn("dataset has duplicate documents, generating each once", "duplicates", dup)
	}
	o.logger.Info("starting batch", "documents", len(reqs), "distinct", len(order),
		"generator", o.cfg.Generator.Name())

	var (
		mu     sync.Mutex
		byKey  = make(map[string]*document.Result, len(order))
		counts progress
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, i := range order {
		req, key := reqs[i], keys[i]
		g.Go(func() error {
			res, err := o.process(gctx, req, key, &counts, len(order))
			if err != nil {
				return err
			}
			mu.Lock()
			byKey[key] = res
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	summary := Summary{
		RunID:        o.cfg.RunID,
		Total:        len(reqs),
		Distinct:     len(order),
		Resumed:      int(counts.resumed.Load()),
		Completed:    int(counts.completed.Load()),
		NonConverged: int(counts.nonconverged.Load()),
		Degraded:     int(counts.degraded.Load()),
		Elapsed:      time.Since(start),
	}
	if err != nil {
		return nil, summary, err
	}

	results := make([]*document.Result, len(reqs))
	for i, req := range reqs {
		res := byKey[keys[i]]
		if first[keys[i]] != i {
			dup := *res
			dup.Request = req
			res = &dup
		}
		results[i] = res
	}
	o.logger.Info("batch finished",
		"completed", summary.Completed, "nonconverged", summary.NonConverged,
		"degraded", summary.Degraded, "resumed", summary.Resumed,
		"elapsed", summary.Elapsed.Round(time.Millisecond))
	return results, summary, nil
}

func (o *Orchestrator) process(ctx context.Context, req document.Request, key string, counts *progress, total int) (*document.Result, error) {
	logger := o.logger.With("document", req.Label())

	if res, ok := o.resume(key, logger); ok {
		counts.resumed.Add(1)
		o.record(ctx, Outcome{Key: key, RequestID: req.ID, Kind: req.Kind, Status: res.Status,
			Elapsed: res.Elapsed, FromCheckpoint: true}, logger)
		o.tick(counts, total)
		return res, nil
	}

	var last *document.Result
	policy := attempt.Policy{
		Attempts: o.cfg.DocumentAttempts,
		Delay:    o.cfg.RetryDelay,
		Backoff:  attempt.Linear,
		RetryIf: func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) &&
				!errors.Is(err, document.ErrUnknownKind)
		},
		OnRetry: func(n int, err error) {
			logger.Warn("document failed, retrying", "attempt", n, "error", err)
		},
	}
	out := attempt.Do(ctx, policy, func(ctx context.Context) (*document.Result, error) {
		res, err := o.cfg.Generator.Generate(ctx, req)
		if err != nil {
			if res != nil {
				last = res
			}
			return nil, err
		}
		return res, nil
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := out.Value
	if !out.OK() {
		res = last
		if res == nil {
			res = &document.Result{Request: req, Kind: req.Kind, Generator: o.cfg.Generator.Name()}
		}
		res.Status = document.StatusDegraded
		res.Failure = out.Err.Error()
		logger.Error("document degraded", "attempts", out.Attempts, "error", out.Err)
	}

	if res.Status.Checkpointable() && o.cfg.Checkpoints != nil {
		if err := o.cfg.Checkpoints.Save(key, res); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFatal, err)
		}
	}

	switch res.Status {
	case document.StatusCompleted:
		counts.completed.Add(1)
	case document.StatusNonConverged:
		counts.nonconverged.Add(1)
	default:
		counts.degraded.Add(1)
	}
	o.record(ctx, Outcome{Key: key, RequestID: req.ID, Kind: req.Kind, Status: res.Status,
		Failure: res.Failure, Attempts: out.Attempts, Elapsed: res.Elapsed}, logger)
	o.tick(counts, total)
	return res, nil
}

// resume returns the checkpointed result for key, if a readable one exists.
func (o *Orchestrator) resume(key string, logger *slog.Logger) (*document.Result, bool) {
	if o.cfg.Checkpoints == nil || !o.cfg.Checkpoints.Has(key) {
		return nil, false
	}
	res, err := o.cfg.Checkpoints.Load(key)
	if err != nil {
		return nil, false
	}
	logger.Debug("loaded from checkpoint", "status", res.Status)
	return res, true
}

func (o *Orchestrator) record(ctx context.Context, out Outcome, logger *slog.Logger) {
	if o.cfg.Recorder == nil {
		return
	}
	out.RunID = o.cfg.RunID
	out.Time = time.Now()
	if err := o.cfg.Recorder.RecordOutcome(context.WithoutCancel(ctx), out); err != nil {
		logger.Warn("failed to record outcome", "error", err)
	}
}

func (o *Orchestrator) tick(counts *progress, total int) {
	done := counts.done.Add(1)
	if done%int64(o.cfg.ProgressEvery) == 0 || done == int64(total) {
		o.logger.Info("progress",
			"done", done, "total", total,
			"completed", counts.completed.Load(), "nonconverged", counts.nonconverged.Load(),
			"degraded", counts.degraded.Load(), "resumed", counts.resumed.Load())
	}
}
