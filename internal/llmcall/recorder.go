package llmcall

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/longform/internal/batch"
	"github.com/jackzampolin/longform/internal/providers"
)

// Recorder writes calls and outcomes to a Store. It implements
// providers.CallObserver and batch.OutcomeRecorder.
type Recorder struct {
	store  *Store
	runID  string
	logger *slog.Logger
}

var (
	_ providers.CallObserver = (*Recorder)(nil)
	_ batch.OutcomeRecorder  = (*Recorder)(nil)
)

// NewRecorder creates a recorder tagging rows with runID. A nil store
// records nothing.
func NewRecorder(store *Store, runID string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, runID: runID, logger: logger}
}

// ObserveCall records one backend call. Failures are logged, never
// returned: the ledger must not break generation.
func (r *Recorder) ObserveCall(ctx context.Context, ev providers.CallEvent) {
	if r == nil || r.store == nil {
		return
	}
	if err := r.store.InsertCall(context.WithoutCancel(ctx), FromEvent(r.runID, ev)); err != nil {
		r.logger.Warn("failed to record backend call", "site", ev.Labels.Site, "error", err)
	}
}

// RecordOutcome records one document outcome.
func (r *Recorder) RecordOutcome(ctx context.Context, o batch.Outcome) error {
	if r == nil || r.store == nil {
		return nil
	}
	if o.RunID == "" {
		o.RunID = r.runID
	}
	return r.store.InsertOutcome(ctx, FromBatchOutcome(o))
}
