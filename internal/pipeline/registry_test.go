package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/jackzampolin/longform/internal/document"
)

// mockGenerator implements Generator for testing.
type mockGenerator struct {
	name string
}

func (m *mockGenerator) Name() string { return m.name }

func (m *mockGenerator) Generate(ctx context.Context, req document.Request) (*document.Result, error) {
	return &document.Result{Request: req, Status: document.StatusCompleted}, nil
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	gen := &mockGenerator{name: "test-generator"}
	if err := r.Register(gen); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Duplicate registration should fail
	if err := r.Register(gen); !errors.Is(err, ErrGeneratorAlreadyRegistered) {
		t.Fatalf("expected ErrGeneratorAlreadyRegistered, got %v", err)
	}
}

func TestRegistry_Get(t *testing.T) {
	r := NewRegistry(&mockGenerator{name: "test-generator"})

	got, ok := r.Get("test-generator")
	if !ok {
		t.Fatal("Get returned false for registered generator")
	}
	if got.Name() != "test-generator" {
		t.Errorf("got name %q, want %q", got.Name(), "test-generator")
	}

	if _, ok := r.Get("nonexistent"); ok {
		t.Error("Get returned true for nonexistent generator")
	}
	if _, err := r.Lookup("nonexistent"); !errors.Is(err, ErrGeneratorNotFound) {
		t.Errorf("Lookup error = %v, want ErrGeneratorNotFound", err)
	}
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry(
		&mockGenerator{name: "b"},
		&mockGenerator{name: "a"},
		&mockGenerator{name: "b"},
	)
	names := r.Names()
	if len(names) != 2 || names[0] != "b" || names[1] != "a" {
		t.Errorf("Names() = %v, want registration order [b a]", names)
	}
}
