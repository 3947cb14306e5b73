package recognition

import (
	"context"
	"sync"
	"time"
)

// Mock is an in-memory backend for tests.
type Mock struct {
	// SubmitFunc is called when Submit is invoked.
	SubmitFunc func(ctx context.Context, endpoint string, r Request) (*Response, error)

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a Submit invocation.
type MockCall struct {
	Endpoint string
	Request  Request
	Time     time.Time
}

// NewMock creates a mock that accepts every submission.
func NewMock() *Mock {
	return &Mock{
		SubmitFunc: func(ctx context.Context, endpoint string, r Request) (*Response, error) {
			return &Response{Success: true, Message: "ok"}, nil
		},
	}
}

// Submit records the call and delegates to SubmitFunc.
func (m *Mock) Submit(ctx context.Context, endpoint string, r Request) (*Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Endpoint: endpoint, Request: r, Time: time.Now()})
	fn := m.SubmitFunc
	m.mu.Unlock()

	if fn == nil {
		return nil, &NetworkError{Endpoint: endpoint, Err: context.Canceled}
	}
	return fn(ctx, endpoint, r)
}

// Calls returns the recorded submissions.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount returns how many submissions were made.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
