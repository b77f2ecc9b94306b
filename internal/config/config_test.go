package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configFile
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Backends["openai"].APIKey != "${OPENAI_API_KEY}" {
		t.Error("expected openai API key placeholder")
	}
	if cfg.Generation.Concurrency != 100 {
		t.Errorf("concurrency = %d, want 100", cfg.Generation.Concurrency)
	}
	if cfg.Generation.PlanRetryDelay() != time.Second {
		t.Errorf("plan retry delay = %v", cfg.Generation.PlanRetryDelay())
	}
	if got := len(cfg.EnabledBackends()); got != 1 {
		t.Errorf("enabled backends = %d, want 1", got)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_API_KEY", "secret123")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestToProviderRegistryConfig(t *testing.T) {
	t.Setenv("TEST_LOCAL_KEY", "local-key")

	cfg := &Config{Backends: map[string]BackendCfg{
		"local": {
			Type:         "openai",
			BaseURL:      "http://localhost:8000/v1",
			APIKey:       "${TEST_LOCAL_KEY}",
			Models:       []string{"qwen"},
			ModelAliases: map[string]string{"qwen": "Qwen/Qwen2.5-7B-Instruct"},
			RateLimit:    2,
			Enabled:      true,
		},
	}}

	got := cfg.ToProviderRegistryConfig().Backends["local"]
	if got.APIKey != "local-key" {
		t.Errorf("api key = %q", got.APIKey)
	}
	if got.Timeout != DefaultTimeoutSeconds*time.Second {
		t.Errorf("timeout = %v, want default", got.Timeout)
	}
	if diff := cmp.Diff([]string{"qwen"}, got.Models); diff != "" {
		t.Errorf("models (-want +got):\n%s", diff)
	}
	if got.ModelAliases["qwen"] != "Qwen/Qwen2.5-7B-Instruct" {
		t.Errorf("aliases = %v", got.ModelAliases)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Generation.Concurrency = 0 }},
		{"tolerance too large", func(c *Config) { c.Generation.Tolerance = 1 }},
		{"no refine iterations", func(c *Config) { c.Generation.MaxRefineIterations = 0 }},
		{"no draft attempts", func(c *Config) { c.Generation.DraftAttempts = 0 }},
		{"unknown extraction", func(c *Config) { c.Generation.Extraction = "lazy" }},
		{"no retry attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		configFile := writeConfig(t, `
generation:
  model: test-model
  concurrency: 4
backends:
  local:
    type: openai
    base_url: http://localhost:9000/v1
    models: [test-model]
    enabled: true
`)

		mgr, err := NewManager(configFile, nil)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Generation.Model != "test-model" {
			t.Errorf("model = %q, want test-model", cfg.Generation.Model)
		}
		if cfg.Generation.Concurrency != 4 {
			t.Errorf("concurrency = %d, want 4", cfg.Generation.Concurrency)
		}
		// Keys absent from the file keep their defaults.
		if cfg.Generation.Tolerance != 0.1 {
			t.Errorf("tolerance = %g, want 0.1", cfg.Generation.Tolerance)
		}
		if b, ok := cfg.GetBackend("local"); !ok || b.BaseURL != "http://localhost:9000/v1" {
			t.Errorf("local backend = %+v, %v", b, ok)
		}
		if mgr.File() != configFile {
			t.Errorf("File() = %q", mgr.File())
		}
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("LONGFORM_GENERATION_MODEL", "env-model")
		configFile := writeConfig(t, "generation:\n  model: file-model\n")

		mgr, err := NewManager(configFile, nil)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if got := mgr.Get().Generation.Model; got != "env-model" {
			t.Errorf("model = %q, want env-model", got)
		}
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		configFile := writeConfig(t, "generation:\n  extraction: lazy\n")
		if _, err := NewManager(configFile, nil); !errors.Is(err, ErrInvalid) {
			t.Errorf("NewManager() = %v, want ErrInvalid", err)
		}
	})
}

func TestManager_OnChange_Multiple(t *testing.T) {
	configFile := writeConfig(t, "generation:\n  model: m\n")

	mgr, err := NewManager(configFile, nil)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	configFile := writeConfig(t, "generation:\n  model: m\n")

	mgr, err := NewManager(configFile, nil)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				_ = mgr.Get().Generation.Model
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	configFile := writeConfig(t, "generation:\n  model: initial-model\n")

	mgr, err := NewManager(configFile, nil)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	var callbackCount atomic.Int32
	var lastValue atomic.Value

	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastValue.Store(cfg.Generation.Model)
	})

	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configFile, []byte("generation:\n  model: updated-model\n"), 0644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if callbackCount.Load() > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Fatal("callback was not invoked after config file change")
	}
	if got := mgr.Get().Generation.Model; got != "updated-model" {
		t.Errorf("config not updated: got %s", got)
	}
	if v := lastValue.Load(); v != "updated-model" {
		t.Errorf("callback received wrong value: %v", v)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	mgr, err := NewManager(path, nil)
	if err != nil {
		t.Fatalf("written defaults do not load: %v", err)
	}
	want := DefaultConfig()
	if diff := cmp.Diff(want.Generation, mgr.Get().Generation); diff != "" {
		t.Errorf("generation round trip (-want +got):\n%s", diff)
	}
	if got := mgr.Get().Backends["openai"].APIKey; got != "${OPENAI_API_KEY}" {
		t.Errorf("api key placeholder = %q", got)
	}
}
