package providers

import (
	"context"
	"time"
)

// CallLabels tie a backend call to the document and unit it serves.
type CallLabels struct {
	Document string
	Unit     string
	Site     string // "plan_draft", "plan_revise", "unit_draft", "unit_edit", "baseline"
}

type labelsKey struct{}

// WithCallLabels attaches labels to ctx for the observer.
func WithCallLabels(ctx context.Context, l CallLabels) context.Context {
	return context.WithValue(ctx, labelsKey{}, l)
}

// LabelsFrom returns labels attached to ctx, if any.
func LabelsFrom(ctx context.Context) CallLabels {
	l, _ := ctx.Value(labelsKey{}).(CallLabels)
	return l
}

// CallEvent describes one Complete call after retries are done.
type CallEvent struct {
	Time       time.Time
	Labels     CallLabels
	Model      string
	Backend    string
	Attempts   int
	Latency    time.Duration
	PromptHash string
	Response   int // characters returned
	Err        error
}

// CallObserver receives an event for every Complete call.
type CallObserver interface {
	ObserveCall(ctx context.Context, ev CallEvent)
}
