package engine

import (
	"context"
	"sync"

	"github.com/warehaul/warehaul"
	"github.com/warehaul/warehaul/task"
)

// MockEngine is a mock implementation of Engine for testing.
type MockEngine struct {
	mu sync.Mutex

	// ExecuteFunc is called by Execute if set. The default succeeds.
	ExecuteFunc func(ctx context.Context, action warehaul.Action, t *task.Task) error

	// CountRowsFunc is called by CountRows if set. The default returns an
	// empty mapping.
	CountRowsFunc func(ctx context.Context, t *task.Task) (map[string]int64, error)

	// ExecuteCalls records the parameters of every Execute call.
	ExecuteCalls []ExecuteCall

	// CountRowsCalls records the task name of every CountRows call.
	CountRowsCalls []string
}

// ExecuteCall records the parameters of a single Execute call.
type ExecuteCall struct {
	Action warehaul.Action
	Task   string
}

// NewMockEngine creates a new MockEngine with an empty call history.
func NewMockEngine() *MockEngine {
	return &MockEngine{}
}

// Compile-time check that MockEngine implements Engine.
var _ Engine = (*MockEngine)(nil)

// Execute records the call and delegates to ExecuteFunc if set.
func (m *MockEngine) Execute(ctx context.Context, action warehaul.Action, t *task.Task) error {
	m.mu.Lock()
	m.ExecuteCalls = append(m.ExecuteCalls, ExecuteCall{Action: action, Task: t.Name()})
	m.mu.Unlock()

	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, action, t)
	}
	return nil
}

// CountRows records the call and delegates to CountRowsFunc if set.
func (m *MockEngine) CountRows(ctx context.Context, t *task.Task) (map[string]int64, error) {
	m.mu.Lock()
	m.CountRowsCalls = append(m.CountRowsCalls, t.Name())
	m.mu.Unlock()

	if m.CountRowsFunc != nil {
		return m.CountRowsFunc(ctx, t)
	}
	return map[string]int64{}, nil
}

// Calls returns a snapshot of the recorded Execute calls.
func (m *MockEngine) Calls() []ExecuteCall {
	m.mu.Lock()
	defer m.mu.Unlock()

	calls := make([]ExecuteCall, len(m.ExecuteCalls))
	copy(calls, m.ExecuteCalls)
	return calls
}

// Reset clears the call history.
func (m *MockEngine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ExecuteCalls = nil
	m.CountRowsCalls = nil
}
