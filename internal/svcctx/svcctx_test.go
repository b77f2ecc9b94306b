package svcctx

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jackzampolin/longform/internal/config"
	"github.com/jackzampolin/longform/internal/document"
	"github.com/jackzampolin/longform/internal/home"
	"github.com/jackzampolin/longform/internal/llmcall"
	"github.com/jackzampolin/longform/internal/testutil"
)

const mockConfig = `
backends:
  mock:
    type: mock
    models: [mock-model]
    enabled: true
generation:
  model: mock-model
  concurrency: 2
`

func openServices(t *testing.T) *Services {
	t.Helper()
	root := t.TempDir()
	cfgFile := filepath.Join(root, "config.yaml")
	if err := os.WriteFile(cfgFile, []byte(mockConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	logger := testutil.Logger(t)
	mgr, err := config.NewManager(cfgFile, logger)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	h, err := home.New(filepath.Join(root, "home"))
	if err != nil {
		t.Fatal(err)
	}
	s, err := Open(mgr, h, logger)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen(t *testing.T) {
	s := openServices(t)

	if !s.Registry.HasModel("mock-model") {
		t.Errorf("registry models = %v, want mock-model", s.Registry.Models())
	}
	if _, err := os.Stat(s.Home.LedgerPath()); err != nil {
		t.Errorf("ledger not created: %v", err)
	}
	if _, err := os.Stat(s.Home.PromptsPath()); err != nil {
		t.Errorf("prompts dir not created: %v", err)
	}
}

func TestContextExtractors(t *testing.T) {
	s := openServices(t)
	ctx := WithServices(context.Background(), s)

	if ServicesFrom(ctx) != s {
		t.Error("ServicesFrom returned a different value")
	}
	if RegistryFrom(ctx) != s.Registry || LedgerFrom(ctx) != s.Ledger || HomeFrom(ctx) != s.Home {
		t.Error("extractors did not return attached services")
	}
	if got := ConfigFrom(ctx).Generation.Model; got != "mock-model" {
		t.Errorf("ConfigFrom model = %q", got)
	}

	empty := context.Background()
	if ServicesFrom(empty) != nil || RegistryFrom(empty) != nil || ConfigFrom(empty) != nil {
		t.Error("extractors on bare context should return nil")
	}
	if LoggerFrom(empty) == nil {
		t.Error("LoggerFrom should fall back to the default logger")
	}
}

func TestNewStack(t *testing.T) {
	s := openServices(t)
	ctx := context.Background()

	stack, err := s.NewStack("run-1", s.Config.Get().Generation)
	if err != nil {
		t.Fatalf("NewStack() error = %v", err)
	}
	if diff := cmp.Diff([]string{"cogwriter", "baseline"}, stack.Generators.Names()); diff != "" {
		t.Errorf("generators (-want +got):\n%s", diff)
	}
	if got := stack.Coordinator.Stats().Capacity; got != 2 {
		t.Errorf("coordinator capacity = %d, want 2", got)
	}

	gen, err := stack.Generators.Lookup("baseline")
	if err != nil {
		t.Fatal(err)
	}
	res, err := gen.Generate(ctx, document.Request{ID: "doc-1", Prompt: "write", Type: "Week"})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if res.FinalText != "mock response" {
		t.Errorf("final text = %q", res.FinalText)
	}

	calls, err := s.Ledger.ListCalls(ctx, llmcall.QueryFilter{RunID: "run-1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(calls) != 1 || calls[0].Site != "baseline" || !calls[0].Success {
		t.Errorf("ledger calls = %+v, want one successful baseline call", calls)
	}
}
