package providers

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const MockName = "mock"

// MockReply is one scripted response.
type MockReply struct {
	Text string
	Err  error
}

// MockBackend is a Backend for testing. Replies come from Respond when set,
// then from the script queue, then from ResponseText.
type MockBackend struct {
	// Configurable behavior
	Latency      time.Duration
	ResponseText string
	Respond      func(ctx context.Context, model, prompt string) (string, error)

	mu      sync.Mutex
	script  []MockReply
	prompts []string

	// State
	requestCount atomic.Int64
	inFlight     atomic.Int64
	peak         atomic.Int64
}

// NewMockBackend creates a new mock backend with sensible defaults.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		ResponseText: "mock response",
	}
}

// Name returns the client identifier.
func (m *MockBackend) Name() string {
	return MockName
}

// Script queues replies returned in order before falling back.
func (m *MockBackend) Script(replies ...MockReply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, replies...)
}

// RequestCount returns how many Generate calls were made.
func (m *MockBackend) RequestCount() int64 {
	return m.requestCount.Load()
}

// PeakInFlight returns the highest number of concurrent Generate calls.
func (m *MockBackend) PeakInFlight() int64 {
	return m.peak.Load()
}

// Prompts returns every prompt received, in arrival order.
func (m *MockBackend) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.prompts))
	copy(out, m.prompts)
	return out
}

// Generate returns the next reply.
func (m *MockBackend) Generate(ctx context.Context, model, prompt string) (string, error) {
	m.requestCount.Add(1)
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}

	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	var scripted *MockReply
	if m.Respond == nil && len(m.script) > 0 {
		r := m.script[0]
		m.script = m.script[1:]
		scripted = &r
	}
	m.mu.Unlock()

	if m.Latency > 0 {
		timer := time.NewTimer(m.Latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	switch {
	case m.Respond != nil:
		return m.Respond(ctx, model, prompt)
	case scripted != nil:
		return scripted.Text, scripted.Err
	default:
		return m.ResponseText, nil
	}
}
