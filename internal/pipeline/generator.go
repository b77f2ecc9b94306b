// Package pipeline turns one document request into a document result.
//
// Two variants exist: CogWriter plans the document, then drafts and
// length-corrects every unit in parallel; Baseline asks for the whole
// document in a single call.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/jackzampolin/longform/internal/document"
)

// Generator names.
const (
	CogWriterName = "cogwriter"
	BaselineName  = "baseline"
)

// ErrEmptyResponse means the single-shot call produced no text.
var ErrEmptyResponse = errors.New("empty response")

// Generator produces a result for one request.
//
// A nil error means the result is final (completed or nonconverged). On
// error the returned result, when non-nil, is degraded and carries the
// failure and whatever was produced.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req document.Request) (*document.Result, error)
}

func newResult(req document.Request, generator, model string) *document.Result {
	return &document.Result{
		Request:   req,
		Kind:      req.Kind,
		Generator: generator,
		Model:     model,
	}
}

func degrade(res *document.Result, start time.Time, err error) (*document.Result, error) {
	res.Status = document.StatusDegraded
	res.Failure = err.Error()
	res.Elapsed = time.Since(start).Seconds()
	return res, err
}
