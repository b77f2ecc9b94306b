package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackzampolin/longform/internal/document"
	"github.com/jackzampolin/longform/internal/providers"
)

// BaselineConfig configures the single-shot generator.
type BaselineConfig struct {
	Completer providers.Completer
	Model     string
	Logger    *slog.Logger
}

// Baseline sends the raw requirement as one prompt.
type Baseline struct {
	completer providers.Completer
	model     string
	logger    *slog.Logger
}

// NewBaseline creates the single-shot generator.
func NewBaseline(cfg BaselineConfig) *Baseline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Baseline{completer: cfg.Completer, model: cfg.Model, logger: logger}
}

func (b *Baseline) Name() string { return BaselineName }

// Generate makes one call. The response is split into output blocks on the
// unit marker and counted by whitespace.
func (b *Baseline) Generate(ctx context.Context, req document.Request) (*document.Result, error) {
	start := time.Now()
	res := newResult(req, BaselineName, b.model)

	callCtx := providers.WithCallLabels(ctx, providers.CallLabels{Document: req.Label(), Site: "baseline"})
	text := b.completer.Complete(callCtx, b.model, req.Prompt)
	if text == "" {
		if err := ctx.Err(); err != nil {
			return degrade(res, start, fmt.Errorf("baseline: %w", err))
		}
		return degrade(res, start, ErrEmptyResponse)
	}

	res.Response = text
	res.OutputBlocks = document.SplitBlocks(text)
	res.WordCount = len(strings.Fields(text))
	res.FinalText = text
	res.Status = document.StatusCompleted
	res.Elapsed = time.Since(start).Seconds()
	b.logger.Info("document generated", "document", req.Label(), "words", res.WordCount)
	return res, nil
}
