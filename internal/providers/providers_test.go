package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"
)

func TestMockBackend(t *testing.T) {
	t.Run("script then fallback", func(t *testing.T) {
		m := NewMockBackend()
		m.ResponseText = "fallback"
		m.Script(MockReply{Text: "first"}, MockReply{Err: errors.New("boom")})

		ctx := context.Background()
		if got, _ := m.Generate(ctx, "m", "p1"); got != "first" {
			t.Errorf("first reply = %q", got)
		}
		if _, err := m.Generate(ctx, "m", "p2"); err == nil {
			t.Error("second reply should fail")
		}
		if got, _ := m.Generate(ctx, "m", "p3"); got != "fallback" {
			t.Errorf("third reply = %q", got)
		}
		if m.RequestCount() != 3 {
			t.Errorf("RequestCount = %d, want 3", m.RequestCount())
		}
		if got := m.Prompts(); len(got) != 3 || got[2] != "p3" {
			t.Errorf("Prompts = %v", got)
		}
	})

	t.Run("tracks peak in flight", func(t *testing.T) {
		m := NewMockBackend()
		m.Latency = 20 * time.Millisecond

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m.Generate(context.Background(), "m", "p")
			}()
		}
		wg.Wait()
		if m.PeakInFlight() < 2 {
			t.Errorf("PeakInFlight = %d, want >= 2", m.PeakInFlight())
		}
	})

	t.Run("latency respects cancellation", func(t *testing.T) {
		m := NewMockBackend()
		m.Latency = time.Hour
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := m.Generate(ctx, "m", "p"); !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	})
}

func TestRateLimiter(t *testing.T) {
	t.Run("nil limiter never blocks", func(t *testing.T) {
		r := NewRateLimiter(0)
		if r != nil {
			t.Fatal("NewRateLimiter(0) should be nil")
		}
		if err := r.Wait(context.Background()); err != nil {
			t.Errorf("Wait() error = %v", err)
		}
		if !r.TryConsume() {
			t.Error("nil TryConsume should succeed")
		}
	})

	t.Run("bucket drains", func(t *testing.T) {
		r := NewRateLimiter(1)
		if !r.TryConsume() {
			t.Fatal("first token should be available")
		}
		if r.TryConsume() {
			t.Error("second token should not be available yet")
		}
		if r.Status().TimeUntilToken <= 0 {
			t.Error("TimeUntilToken should be positive when drained")
		}
	})

	t.Run("wait honours context", func(t *testing.T) {
		r := NewRateLimiter(0.01)
		r.TryConsume()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		if err := r.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Wait() err = %v, want DeadlineExceeded", err)
		}
	})

	t.Run("fast limiter", func(t *testing.T) {
		r := NewRateLimiter(1000)
		for i := 0; i < 20; i++ {
			if err := r.Wait(context.Background()); err != nil {
				t.Fatalf("Wait() error = %v", err)
			}
		}
		if got := r.Status().TotalConsumed; got != 20 {
			t.Errorf("TotalConsumed = %d, want 20", got)
		}
	})
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limit", &RateLimitError{Message: "slow down", StatusCode: 429}, true},
		{"server error", &StatusError{Backend: "openai", StatusCode: 503}, true},
		{"request timeout", &StatusError{StatusCode: 408}, true},
		{"conflict", &StatusError{StatusCode: 409}, true},
		{"bad request", &StatusError{StatusCode: 400}, false},
		{"unauthorized", &StatusError{StatusCode: 401}, false},
		{"wrapped server error", fmt.Errorf("call: %w", &StatusError{StatusCode: 502}), true},
		{"call timeout", fmt.Errorf("%w: %w", ErrCallTimeout, context.DeadlineExceeded), true},
		{"caller cancelled", context.Canceled, false},
		{"net timeout", timeoutErr{}, true},
		{"connection refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, true},
		{"connection reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"empty completion", ErrEmptyCompletion, true},
		{"unknown model", ErrUnknownModel, false},
		{"plain", errors.New("invalid prompt"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("3"); got != 3*time.Second {
		t.Errorf("parseRetryAfter(3) = %v", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("parseRetryAfter(empty) = %v", got)
	}
	if got := parseRetryAfter("soon"); got != 0 {
		t.Errorf("parseRetryAfter(soon) = %v", got)
	}
}

func TestOpenAIClient(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		switch {
		case strings.Contains(string(body), "fail-500"):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
			return
		case strings.Contains(string(body), "fail-400"):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"error":{"message":"bad prompt","type":"invalid_request_error"}}`)
			return
		}
		var req struct {
			Model string `json:"model"`
		}
		json.Unmarshal(body, &req)
		gotModel = req.Model
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"c1","object":"chat.completion","created":1,"model":"m",`+
			`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"  hello there  "}}]}`)
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{BaseURL: srv.URL + "/v1", Timeout: 5 * time.Second})
	ctx := context.Background()

	text, err := c.Generate(ctx, "meta-llama/Llama-3.3-70B-Instruct", "write")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if text != "hello there" {
		t.Errorf("text = %q", text)
	}
	if gotModel != "meta-llama/Llama-3.3-70B-Instruct" {
		t.Errorf("model sent = %q", gotModel)
	}

	_, err = c.Generate(ctx, "m", "fail-500")
	if err == nil || !IsTransient(err) {
		t.Errorf("500 should be transient, got %v", err)
	}
	_, err = c.Generate(ctx, "m", "fail-400")
	if err == nil || IsTransient(err) {
		t.Errorf("400 should not be transient, got %v", err)
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Errorf("err = %v, want StatusError 400", err)
	}
}

type recordingObserver struct {
	mu     sync.Mutex
	events []CallEvent
}

func (o *recordingObserver) ObserveCall(_ context.Context, ev CallEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func newTestService(m *MockBackend, attempts int, obs CallObserver) *Service {
	reg := NewRegistry()
	reg.Register("local", m, []string{"test-model"}, nil, 0)
	return NewService(ServiceConfig{
		Registry: reg,
		Attempts: attempts,
		MinWait:  time.Millisecond,
		MaxWait:  5 * time.Millisecond,
		Observer: obs,
	})
}

func TestService(t *testing.T) {
	ctx := context.Background()

	t.Run("retries transient failures", func(t *testing.T) {
		m := NewMockBackend()
		m.Script(
			MockReply{Err: &StatusError{StatusCode: 503}},
			MockReply{Err: &RateLimitError{Message: "slow", StatusCode: 429}},
			MockReply{Text: "done"},
		)
		s := newTestService(m, 8, nil)
		res := s.CompleteResult(ctx, "test-model", "prompt")
		if res.Text != "done" || res.Attempts != 3 || res.Err != nil {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("non-transient failure collapses to empty", func(t *testing.T) {
		m := NewMockBackend()
		m.Script(MockReply{Err: &StatusError{StatusCode: 400}})
		s := newTestService(m, 8, nil)
		if got := s.Complete(ctx, "test-model", "prompt"); got != "" {
			t.Errorf("Complete() = %q, want empty", got)
		}
		if m.RequestCount() != 1 {
			t.Errorf("RequestCount = %d, want 1", m.RequestCount())
		}
	})

	t.Run("ceiling exhausted", func(t *testing.T) {
		m := NewMockBackend()
		m.Respond = func(context.Context, string, string) (string, error) {
			return "", &StatusError{StatusCode: 500}
		}
		s := newTestService(m, 3, nil)
		res := s.CompleteResult(ctx, "test-model", "prompt")
		if res.Text != "" || res.Attempts != 3 {
			t.Errorf("result = %+v", res)
		}
		if m.RequestCount() != 3 {
			t.Errorf("RequestCount = %d, want 3", m.RequestCount())
		}
	})

	t.Run("unknown model", func(t *testing.T) {
		s := newTestService(NewMockBackend(), 8, nil)
		res := s.CompleteResult(ctx, "nope", "prompt")
		if res.Text != "" || !errors.Is(res.Err, ErrUnknownModel) {
			t.Errorf("result = %+v", res)
		}
	})

	t.Run("empty backend reply is retried", func(t *testing.T) {
		m := NewMockBackend()
		m.Script(MockReply{Text: ""}, MockReply{Text: "second"})
		s := newTestService(m, 8, nil)
		if got := s.Complete(ctx, "test-model", "prompt"); got != "second" {
			t.Errorf("Complete() = %q", got)
		}
	})

	t.Run("observer receives labels", func(t *testing.T) {
		obs := &recordingObserver{}
		s := newTestService(NewMockBackend(), 8, obs)
		lctx := WithCallLabels(ctx, CallLabels{Document: "doc-1", Unit: "Week 3", Site: "unit_edit"})
		s.Complete(lctx, "test-model", "prompt")

		if len(obs.events) != 1 {
			t.Fatalf("events = %d, want 1", len(obs.events))
		}
		ev := obs.events[0]
		if ev.Labels.Document != "doc-1" || ev.Labels.Unit != "Week 3" || ev.Labels.Site != "unit_edit" {
			t.Errorf("labels = %+v", ev.Labels)
		}
		if ev.Backend != MockName || ev.Attempts != 1 || ev.PromptHash == "" || ev.Response == 0 {
			t.Errorf("event = %+v", ev)
		}
	})
}
