package llmcall

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/longform/internal/batch"
	"github.com/jackzampolin/longform/internal/document"
	"github.com/jackzampolin/longform/internal/providers"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func event(site string, err error, latency time.Duration) providers.CallEvent {
	return providers.CallEvent{
		Time:       time.Now(),
		Labels:     providers.CallLabels{Document: "doc-1", Unit: "Week 1", Site: site},
		Model:      "gpt-test",
		Backend:    "openai",
		Attempts:   2,
		Latency:    latency,
		PromptHash: "abc",
		Response:   120,
		Err:        err,
	}
}

func TestFromEvent(t *testing.T) {
	c := FromEvent("run-1", event("unit_edit", errors.New("timeout"), 1500*time.Millisecond))
	if c.ID == "" || c.RunID != "run-1" || c.Site != "unit_edit" || c.Unit != "Week 1" {
		t.Errorf("call = %+v", c)
	}
	if c.Success || c.Error != "timeout" || c.LatencyMs != 1500 {
		t.Errorf("status fields = %+v", c)
	}
}

func TestRecorderAndSummary(t *testing.T) {
	s := openTestStore(t)
	rec := NewRecorder(s, "run-1", nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%4 == 0 {
				err = errors.New("empty completion")
			}
			site := "unit_draft"
			if i%2 == 1 {
				site = "unit_edit"
			}
			rec.ObserveCall(ctx, event(site, err, 10*time.Millisecond))
		}(i)
	}
	wg.Wait()

	outcomes := []batch.Outcome{
		{Key: "k1", Kind: document.KindDiary, Status: document.StatusCompleted, Attempts: 1},
		{Key: "k2", Kind: document.KindDiary, Status: document.StatusNonConverged, Attempts: 1},
		{Key: "k3", Kind: document.KindMenu, Status: document.StatusDegraded, Failure: "plan", Attempts: 3},
		{Key: "k4", Kind: document.KindMenu, Status: document.StatusCompleted, FromCheckpoint: true},
	}
	for _, o := range outcomes {
		if err := rec.RecordOutcome(ctx, o); err != nil {
			t.Fatalf("RecordOutcome() error = %v", err)
		}
	}

	sum, err := s.Summary(ctx, "run-1")
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if len(sum.Sites) != 2 {
		t.Fatalf("sites = %+v", sum.Sites)
	}
	draft, edit := sum.Sites[0], sum.Sites[1]
	if draft.Site != "unit_draft" || draft.Calls != 10 || draft.Failures != 5 || draft.Attempts != 20 {
		t.Errorf("draft stats = %+v", draft)
	}
	if edit.Site != "unit_edit" || edit.Calls != 10 || edit.Failures != 0 || edit.SuccessRate() != 1 {
		t.Errorf("edit stats = %+v", edit)
	}
	want := map[string]int{"completed": 2, "nonconverged": 1, "degraded": 1}
	for status, n := range want {
		if sum.Documents[status] != n {
			t.Errorf("documents[%s] = %d, want %d", status, sum.Documents[status], n)
		}
	}

	latest, err := s.LatestRun(ctx)
	if err != nil || latest != "run-1" {
		t.Errorf("LatestRun() = %q, %v", latest, err)
	}
	other, err := s.Summary(ctx, "run-2")
	if err != nil || len(other.Sites) != 0 || len(other.Documents) != 0 {
		t.Errorf("other run summary = %+v, %v", other, err)
	}
}

func TestListCalls(t *testing.T) {
	s := openTestStore(t)
	rec := NewRecorder(s, "run-1", nil)
	ctx := context.Background()

	rec.ObserveCall(ctx, event("plan_draft", nil, time.Millisecond))
	rec.ObserveCall(ctx, event("plan_revise", errors.New("x"), time.Millisecond))

	failed := false
	calls, err := s.ListCalls(ctx, QueryFilter{RunID: "run-1", Success: &failed})
	if err != nil {
		t.Fatalf("ListCalls() error = %v", err)
	}
	if len(calls) != 1 || calls[0].Site != "plan_revise" || calls[0].Error != "x" {
		t.Errorf("calls = %+v", calls)
	}
	if calls[0].Timestamp.IsZero() {
		t.Error("timestamp not parsed")
	}

	all, _ := s.ListCalls(ctx, QueryFilter{Limit: 10})
	if len(all) != 2 {
		t.Errorf("len(all) = %d, want 2", len(all))
	}
}

func TestEmptyLedger(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Close()

	latest, err := s.LatestRun(context.Background())
	if err != nil || latest != "" {
		t.Errorf("LatestRun() = %q, %v", latest, err)
	}
	var nilRecorder *Recorder
	nilRecorder.ObserveCall(context.Background(), event("x", nil, 0))
}
