package refiner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/jackzampolin/longform/internal/document"
	"github.com/jackzampolin/longform/internal/prompts"
	"github.com/jackzampolin/longform/internal/providers"
)

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func diaryDraft(n int) string {
	return fmt.Sprintf(`{"week_id": "Week 1", "check": "ok", "diary_entry": %q}`, words(n))
}

// scripted answers drafts and edits from separate queues. The last reply
// of a queue repeats.
type scripted struct {
	mu          sync.Mutex
	drafts      []string
	edits       []string
	editPrompts []string
	draftCalls  int
}

func (s *scripted) Complete(ctx context.Context, model, prompt string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := func(q *[]string) string {
		if len(*q) == 0 {
			return ""
		}
		r := (*q)[0]
		if len(*q) > 1 {
			*q = (*q)[1:]
		}
		return r
	}
	if providers.LabelsFrom(ctx).Site == "unit_edit" {
		s.editPrompts = append(s.editPrompts, prompt)
		return next(&s.edits)
	}
	s.draftCalls++
	return next(&s.drafts)
}

func newRefiner(t *testing.T, c providers.Completer) *Refiner {
	t.Helper()
	resolver, err := prompts.NewDefaultResolver("", nil)
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	return New(Config{Completer: c, Model: "m", Prompts: resolver})
}

var (
	diaryReq = document.Request{ID: "d", Prompt: "A diary.", Type: "Week", Kind: document.KindDiary}
	week1    = document.PlanUnit{ID: "Week 1", Brief: "New year"}
	planText = `[{"week_id": "Week 1", "events": "New year"}]`
)

func TestRefineWithinToleranceNeedsNoEdits(t *testing.T) {
	s := &scripted{drafts: []string{diaryDraft(190)}}
	r := newRefiner(t, s)

	u, err := r.Refine(context.Background(), diaryReq, planText, week1)
	if err != nil {
		t.Fatalf("Refine() error = %v", err)
	}
	if !u.Converged || !u.WithinTolerance {
		t.Errorf("unit not converged: %+v", u)
	}
	if u.Iterations != 0 || len(s.editPrompts) != 0 {
		t.Errorf("iterations = %d, edits = %d, want 0", u.Iterations, len(s.editPrompts))
	}
	if u.WordCount != 190 || u.TargetWords != 200 {
		t.Errorf("words = %d target = %d", u.WordCount, u.TargetWords)
	}
	if u.ID != "Week 1" || u.Brief != "New year" {
		t.Errorf("plan unit not carried: %+v", u.PlanUnit)
	}
}

func TestRefineShortensUntilWithinTolerance(t *testing.T) {
	s := &scripted{
		drafts: []string{diaryDraft(300)},
		edits:  []string{words(250), "  " + words(205) + "\n"},
	}
	r := newRefiner(t, s)

	u, err := r.Refine(context.Background(), diaryReq, planText, week1)
	if err != nil {
		t.Fatalf("Refine() error = %v", err)
	}
	if u.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", u.Iterations)
	}
	if u.Body != words(205) {
		t.Error("body should be the trimmed last edit")
	}
	if !strings.Contains(s.editPrompts[0], "need to be shorten by 100 words") {
		t.Errorf("first edit prompt = %q", s.editPrompts[0])
	}
	if !strings.Contains(s.editPrompts[1], "need to be shorten by 50 words") {
		t.Errorf("second edit prompt = %q", s.editPrompts[1])
	}
}

func TestRefineLengthens(t *testing.T) {
	s := &scripted{
		drafts: []string{`{"floor_id": "Floor 1", "check": "", "plan": "` + words(50) + `"}`},
		edits:  []string{words(150)},
	}
	r := newRefiner(t, s)
	req := document.Request{ID: "a", Prompt: "A tower.", Type: "Floor", Kind: document.KindArchitecture}

	u, err := r.Refine(context.Background(), req, "[]", document.PlanUnit{ID: "Floor 1", Brief: "Lobby"})
	if err != nil {
		t.Fatalf("Refine() error = %v", err)
	}
	if u.TargetWords != 150 || !u.Converged {
		t.Errorf("unit = %+v", u)
	}
	if !strings.Contains(s.editPrompts[0], "lengthen by 100 words") {
		t.Errorf("edit prompt = %q", s.editPrompts[0])
	}
}

func TestRefineOscillationHitsCap(t *testing.T) {
	var mu sync.Mutex
	flip := false
	c := providers.CompleterFunc(func(ctx context.Context, model, prompt string) string {
		if providers.LabelsFrom(ctx).Site == "unit_draft" {
			return diaryDraft(400)
		}
		mu.Lock()
		defer mu.Unlock()
		flip = !flip
		if flip {
			return words(50)
		}
		return words(400)
	})
	r := newRefiner(t, c)

	u, err := r.Refine(context.Background(), diaryReq, planText, week1)
	if !errors.Is(err, ErrNotConverged) {
		t.Fatalf("Refine() error = %v, want ErrNotConverged", err)
	}
	if u.Converged || u.WithinTolerance {
		t.Error("unit marked converged")
	}
	if u.Iterations != DefaultMaxIterations {
		t.Errorf("iterations = %d, want %d", u.Iterations, DefaultMaxIterations)
	}
	if u.Body == "" || u.Failure == "" {
		t.Errorf("non-converged unit should keep its body and failure: %+v", u)
	}
}

func TestRefineEmptyEditKeepsBody(t *testing.T) {
	s := &scripted{
		drafts: []string{diaryDraft(300)},
		edits:  []string{"", words(200)},
	}
	r := newRefiner(t, s)

	u, err := r.Refine(context.Background(), diaryReq, planText, week1)
	if err != nil {
		t.Fatalf("Refine() error = %v", err)
	}
	if u.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", u.Iterations)
	}
	// The second edit saw the original body.
	if !strings.Contains(s.editPrompts[1], "by 100 words") {
		t.Errorf("second edit prompt = %q", s.editPrompts[1])
	}
}

func TestRefineDraftRetries(t *testing.T) {
	s := &scripted{drafts: []string{
		"Sorry, here you go: week 1 was great",
		`{"week_id": "Week 1", "check": "missing body"}`,
		`{"week_id": "Week 1", "diary_entry": "   "}`,
		diaryDraft(200),
	}}
	r := newRefiner(t, s)

	u, err := r.Refine(context.Background(), diaryReq, planText, week1)
	if err != nil {
		t.Fatalf("Refine() error = %v", err)
	}
	if s.draftCalls != 4 {
		t.Errorf("draft calls = %d, want 4", s.draftCalls)
	}
	if !u.Converged {
		t.Errorf("unit = %+v", u)
	}
}

func TestRefineDraftExhausted(t *testing.T) {
	s := &scripted{drafts: []string{"not json"}}
	r := newRefiner(t, s)

	u, err := r.Refine(context.Background(), diaryReq, planText, week1)
	if !errors.Is(err, ErrDraftExhausted) {
		t.Fatalf("Refine() error = %v, want ErrDraftExhausted", err)
	}
	if s.draftCalls != DefaultDraftAttempts {
		t.Errorf("draft calls = %d, want %d", s.draftCalls, DefaultDraftAttempts)
	}
	if u.Body != "" || u.Failure == "" {
		t.Errorf("unit = %+v", u)
	}
}

func TestRefineDraftPromptCarriesContext(t *testing.T) {
	s := &scripted{drafts: []string{diaryDraft(200)}}
	var draftPrompt string
	c := providers.CompleterFunc(func(ctx context.Context, model, prompt string) string {
		if providers.LabelsFrom(ctx).Site == "unit_draft" {
			draftPrompt = prompt
		}
		return s.Complete(ctx, model, prompt)
	})
	r := newRefiner(t, c)

	if _, err := r.Refine(context.Background(), diaryReq, planText, week1); err != nil {
		t.Fatalf("Refine() error = %v", err)
	}
	for _, want := range []string{"200-word", "week of Week 1", "New year", planText, "A diary."} {
		if !strings.Contains(draftPrompt, want) {
			t.Errorf("draft prompt missing %q", want)
		}
	}
}

func TestRefineCancelledDuringEdits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c := providers.CompleterFunc(func(ctx context.Context, model, prompt string) string {
		if providers.LabelsFrom(ctx).Site == "unit_draft" {
			return diaryDraft(400)
		}
		cancel()
		return ""
	})
	r := newRefiner(t, c)

	_, err := r.Refine(ctx, diaryReq, planText, week1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Refine() error = %v, want context.Canceled", err)
	}
}
