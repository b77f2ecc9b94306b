// Package testutil provides test doubles shared across packages.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackzampolin/longform/internal/document"
	"github.com/jackzampolin/longform/internal/providers"
)

// FakeWriter answers every prompt of the generation engine with a
// well-formed reply for one document kind. Plug Respond into a
// providers.MockBackend or wrap it with providers.CompleterFunc.
type FakeWriter struct {
	Kind document.Kind
	// Units is the plan length (default: the kind's unit count).
	Units int
	// DraftWords is the draft body length (default: the kind's target).
	DraftWords int
	// MaxLatency adds a random delay in [0, MaxLatency) to each call.
	MaxLatency time.Duration

	calls atomic.Int64
}

var editDiff = regexp.MustCompile(`need to be (shorten|lengthen) by (\d+) words`)

// Calls returns how many prompts were answered.
func (f *FakeWriter) Calls() int64 {
	return f.calls.Load()
}

// Complete implements providers.Completer.
func (f *FakeWriter) Complete(ctx context.Context, model, prompt string) string {
	text, _ := f.Respond(ctx, model, prompt)
	return text
}

// Respond matches MockBackend.Respond.
func (f *FakeWriter) Respond(ctx context.Context, model, prompt string) (string, error) {
	f.calls.Add(1)
	if f.MaxLatency > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(rand.N(f.MaxLatency)):
		}
	}

	spec := f.Kind.Spec()
	labels := providers.LabelsFrom(ctx)
	switch labels.Site {
	case "plan_draft":
		return f.plan(spec, spec.PlanField), nil
	case "plan_revise":
		return f.plan(spec, spec.RevisedPlanField()), nil
	case "unit_draft":
		n := f.DraftWords
		if n == 0 {
			n = spec.TargetWords
		}
		body, _ := json.Marshal(Words(n))
		return fmt.Sprintf("```json\n{\"%s\": %q, \"check\": \"ok\", \"%s\": %s}\n```",
			spec.IDField, labels.Unit, spec.BodyField, body), nil
	case "unit_edit":
		if !editDiff.MatchString(prompt) {
			return "", fmt.Errorf("unexpected edit prompt")
		}
		return Words(spec.TargetWords), nil
	default:
		return f.baseline(spec), nil
	}
}

// UnitID is the id FakeWriter gives the i-th unit (1-based).
func UnitID(i int) string {
	return fmt.Sprintf("Unit %d", i)
}

func (f *FakeWriter) units(spec document.KindSpec) int {
	if f.Units > 0 {
		return f.Units
	}
	return spec.Units
}

func (f *FakeWriter) plan(spec document.KindSpec, field string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "{\"analysis\": \"\", \"%s\": [", field)
	for i := 1; i <= f.units(spec); i++ {
		if i > 1 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, `{"%s": %q, "%s": "brief %d"}`, spec.IDField, UnitID(i), spec.BriefField, i)
	}
	b.WriteString("]}")
	return b.String()
}

func (f *FakeWriter) baseline(spec document.KindSpec) string {
	var b strings.Builder
	for i := 1; i <= f.units(spec); i++ {
		fmt.Fprintf(&b, "%s %s: %s\n", document.UnitMarker, UnitID(i), Words(10))
	}
	return b.String()
}

// Words returns n space-separated words.
func Words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}
