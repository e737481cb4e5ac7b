package store

import (
	"context"
	"sync"

	"github.com/warehaul/warehaul"
)

// MockMetaStore is a configurable mock implementation of MetaStore for use
// in tests. It allows setting up expected return values, tracking method
// calls, and injecting errors for testing error paths. Methods without a
// configured func return zero values.
type MockMetaStore struct {
	mu sync.RWMutex

	// RegisterTableFunc is called by RegisterTable if set.
	RegisterTableFunc func(ctx context.Context, meta warehaul.TableMeta, cfg TableConfig) error

	// GetTableConfigFunc is called by GetTableConfig if set.
	GetTableConfigFunc func(ctx context.Context, database, table string) (TableConfig, error)

	// GetTableStateFunc is called by GetTableState if set.
	GetTableStateFunc func(ctx context.Context, database, table string) (TableState, error)

	// UpdateTableStatusFunc is called by UpdateTableStatus if set.
	UpdateTableStatusFunc func(ctx context.Context, database, table string, status warehaul.MigrationStatus) error

	// MarkTableFailedFunc is called by MarkTableFailed if set.
	MarkTableFailedFunc func(ctx context.Context, database, table string) error

	// UpdatePartitionStatusFunc is called by UpdatePartitionStatus if set.
	UpdatePartitionStatusFunc func(ctx context.Context, database, table string, partitions [][]string, status warehaul.MigrationStatus) error

	// ListPartitionStatesFunc is called by ListPartitionStates if set.
	ListPartitionStatesFunc func(ctx context.Context, database, table string) ([]PartitionState, error)

	// ListFailedPartitionsFunc is called by ListFailedPartitions if set.
	ListFailedPartitionsFunc func(ctx context.Context, database, table string) ([][]string, error)

	// RegisterRunFunc is called by RegisterRun if set.
	RegisterRunFunc func(ctx context.Context) (Run, error)

	// HeartbeatFunc is called by Heartbeat if set.
	HeartbeatFunc func(ctx context.Context, runID string) error

	// FinishRunFunc is called by FinishRun if set.
	FinishRunFunc func(ctx context.Context, runID string) error

	// GetRunFunc is called by GetRun if set.
	GetRunFunc func(ctx context.Context, runID string) (Run, error)

	// Call tracking
	GetTableConfigCalls        []TableCall
	UpdateTableStatusCalls     []UpdateTableStatusCall
	MarkTableFailedCalls       []TableCall
	UpdatePartitionStatusCalls []UpdatePartitionStatusCall
	HeartbeatCalls             []string
	FinishRunCalls             []string
}

// TableCall records the identity arguments of a table-scoped call.
type TableCall struct {
	Database string
	Table    string
}

// UpdateTableStatusCall records the arguments of an UpdateTableStatus call.
type UpdateTableStatusCall struct {
	Database string
	Table    string
	Status   warehaul.MigrationStatus
}

// UpdatePartitionStatusCall records the arguments of an
// UpdatePartitionStatus call.
type UpdatePartitionStatusCall struct {
	Database   string
	Table      string
	Partitions [][]string
	Status     warehaul.MigrationStatus
}

// NewMockMetaStore creates a new mock with empty call tracking.
func NewMockMetaStore() *MockMetaStore {
	return &MockMetaStore{}
}

// Compile-time check that MockMetaStore implements MetaStore.
var _ MetaStore = (*MockMetaStore)(nil)

// Reset clears all tracked calls.
func (m *MockMetaStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetTableConfigCalls = nil
	m.UpdateTableStatusCalls = nil
	m.MarkTableFailedCalls = nil
	m.UpdatePartitionStatusCalls = nil
	m.HeartbeatCalls = nil
	m.FinishRunCalls = nil
}

// RegisterTable calls RegisterTableFunc if set.
func (m *MockMetaStore) RegisterTable(ctx context.Context, meta warehaul.TableMeta, cfg TableConfig) error {
	if m.RegisterTableFunc != nil {
		return m.RegisterTableFunc(ctx, meta, cfg)
	}
	return nil
}

// GetTableConfig records the call and delegates to GetTableConfigFunc if set.
func (m *MockMetaStore) GetTableConfig(ctx context.Context, database, table string) (TableConfig, error) {
	m.mu.Lock()
	m.GetTableConfigCalls = append(m.GetTableConfigCalls, TableCall{Database: database, Table: table})
	m.mu.Unlock()

	if m.GetTableConfigFunc != nil {
		return m.GetTableConfigFunc(ctx, database, table)
	}
	return TableConfig{}, nil
}

// GetTableState calls GetTableStateFunc if set.
func (m *MockMetaStore) GetTableState(ctx context.Context, database, table string) (TableState, error) {
	if m.GetTableStateFunc != nil {
		return m.GetTableStateFunc(ctx, database, table)
	}
	return TableState{}, warehaul.ErrTableNotFound
}

// UpdateTableStatus records the call and delegates to UpdateTableStatusFunc if set.
func (m *MockMetaStore) UpdateTableStatus(ctx context.Context, database, table string, status warehaul.MigrationStatus) error {
	m.mu.Lock()
	m.UpdateTableStatusCalls = append(m.UpdateTableStatusCalls, UpdateTableStatusCall{
		Database: database,
		Table:    table,
		Status:   status,
	})
	m.mu.Unlock()

	if m.UpdateTableStatusFunc != nil {
		return m.UpdateTableStatusFunc(ctx, database, table, status)
	}
	return nil
}

// MarkTableFailed records the call and delegates to MarkTableFailedFunc if set.
func (m *MockMetaStore) MarkTableFailed(ctx context.Context, database, table string) error {
	m.mu.Lock()
	m.MarkTableFailedCalls = append(m.MarkTableFailedCalls, TableCall{Database: database, Table: table})
	m.mu.Unlock()

	if m.MarkTableFailedFunc != nil {
		return m.MarkTableFailedFunc(ctx, database, table)
	}
	return nil
}

// UpdatePartitionStatus records the call and delegates to
// UpdatePartitionStatusFunc if set.
func (m *MockMetaStore) UpdatePartitionStatus(ctx context.Context, database, table string, partitions [][]string, status warehaul.MigrationStatus) error {
	m.mu.Lock()
	m.UpdatePartitionStatusCalls = append(m.UpdatePartitionStatusCalls, UpdatePartitionStatusCall{
		Database:   database,
		Table:      table,
		Partitions: partitions,
		Status:     status,
	})
	m.mu.Unlock()

	if m.UpdatePartitionStatusFunc != nil {
		return m.UpdatePartitionStatusFunc(ctx, database, table, partitions, status)
	}
	return nil
}

// ListPartitionStates calls ListPartitionStatesFunc if set.
func (m *MockMetaStore) ListPartitionStates(ctx context.Context, database, table string) ([]PartitionState, error) {
	if m.ListPartitionStatesFunc != nil {
		return m.ListPartitionStatesFunc(ctx, database, table)
	}
	return nil, nil
}

// ListFailedPartitions calls ListFailedPartitionsFunc if set.
func (m *MockMetaStore) ListFailedPartitions(ctx context.Context, database, table string) ([][]string, error) {
	if m.ListFailedPartitionsFunc != nil {
		return m.ListFailedPartitionsFunc(ctx, database, table)
	}
	return nil, nil
}

// RegisterRun calls RegisterRunFunc if set.
func (m *MockMetaStore) RegisterRun(ctx context.Context) (Run, error) {
	if m.RegisterRunFunc != nil {
		return m.RegisterRunFunc(ctx)
	}
	return Run{}, nil
}

// Heartbeat records the call and delegates to HeartbeatFunc if set.
func (m *MockMetaStore) Heartbeat(ctx context.Context, runID string) error {
	m.mu.Lock()
	m.HeartbeatCalls = append(m.HeartbeatCalls, runID)
	m.mu.Unlock()

	if m.HeartbeatFunc != nil {
		return m.HeartbeatFunc(ctx, runID)
	}
	return nil
}

// FinishRun records the call and delegates to FinishRunFunc if set.
func (m *MockMetaStore) FinishRun(ctx context.Context, runID string) error {
	m.mu.Lock()
	m.FinishRunCalls = append(m.FinishRunCalls, runID)
	m.mu.Unlock()

	if m.FinishRunFunc != nil {
		return m.FinishRunFunc(ctx, runID)
	}
	return nil
}

// GetRun calls GetRunFunc if set.
func (m *MockMetaStore) GetRun(ctx context.Context, runID string) (Run, error) {
	if m.GetRunFunc != nil {
		return m.GetRunFunc(ctx, runID)
	}
	return Run{}, warehaul.ErrRunNotFound
}
