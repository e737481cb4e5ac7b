package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warehaul/warehaul"
	"github.com/warehaul/warehaul/store"
)

type tableKey struct {
	database string
	table    string
}

type tableEntry struct {
	state      store.TableState
	config     store.TableConfig
	partitions []*store.PartitionState
	index      map[string]*store.PartitionState // joined partition values -> state
}

// Store is an in-memory implementation of MetaStore for testing and dry
// runs. It provides thread-safe access to table, partition and run state
// using a sync.RWMutex.
type Store struct {
	mu     sync.RWMutex
	tables map[tableKey]*tableEntry
	runs   map[string]store.Run
}

// New creates a new in-memory store with initialized maps.
func New() *Store {
	return &Store{
		tables: make(map[tableKey]*tableEntry),
		runs:   make(map[string]store.Run),
	}
}

// Compile-time check that Store implements MetaStore.
var _ store.MetaStore = (*Store)(nil)

func partitionIndexKey(values []string) string {
	return strings.Join(values, warehaul.PartitionKeySeparator)
}

// RegisterTable records a table in the catalog with its configuration,
// setting it to pending. Registering an already-known table replaces its
// configuration but keeps its accumulated state.
func (s *Store) RegisterTable(ctx context.Context, meta warehaul.TableMeta, cfg store.TableConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := tableKey{database: meta.Database, table: meta.Table}
	entry, ok := s.tables[key]
	if !ok {
		entry = &tableEntry{
			state: store.TableState{
				Database:      meta.Database,
				Table:         meta.Table,
				IsPartitioned: meta.IsPartitioned(),
				Status:        warehaul.StatusPending,
			},
			index: make(map[string]*store.PartitionState),
		}
		s.tables[key] = entry
	}
	entry.config = cfg

	for _, p := range meta.Partitions {
		ik := partitionIndexKey(p.Values)
		if _, exists := entry.index[ik]; exists {
			continue
		}
		clone := p.Clone()
		state := &store.PartitionState{
			Values: clone.Values,
			Status: warehaul.StatusPending,
		}
		entry.partitions = append(entry.partitions, state)
		entry.index[ik] = state
	}

	return nil
}

// GetTableConfig returns the additional configuration for a table.
// An unregistered table yields the zero config.
func (s *Store) GetTableConfig(ctx context.Context, database, table string) (store.TableConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.tables[tableKey{database: database, table: table}]
	if !ok {
		return store.TableConfig{}, nil
	}
	return entry.config, nil
}

// GetTableState returns the persisted state of a table.
// Returns warehaul.ErrTableNotFound if the table was never registered.
func (s *Store) GetTableState(ctx context.Context, database, table string) (store.TableState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.tables[tableKey{database: database, table: table}]
	if !ok {
		return store.TableState{}, warehaul.ErrTableNotFound
	}
	return entry.state, nil
}

// UpdateTableStatus sets the table-level status. A succeeded status stamps
// the last-success time.
func (s *Store) UpdateTableStatus(ctx context.Context, database, table string, status warehaul.MigrationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tables[tableKey{database: database, table: table}]
	if !ok {
		return warehaul.ErrTableNotFound
	}

	entry.state.Status = status
	if status == warehaul.StatusSucceeded {
		entry.state.LastSuccess = time.Now()
	}
	return nil
}

// MarkTableFailed marks the table failed and increments its attempt counter.
func (s *Store) MarkTableFailed(ctx context.Context, database, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tables[tableKey{database: database, table: table}]
	if !ok {
		return warehaul.ErrTableNotFound
	}

	entry.state.Status = warehaul.StatusFailed
	entry.state.AttemptTimes++
	return nil
}

// UpdatePartitionStatus checkpoints a batch of partitions under the given
// status. Partitions not yet known to the store are created on the fly so
// checkpoints never silently drop state.
func (s *Store) UpdatePartitionStatus(ctx context.Context, database, table string, partitions [][]string, status warehaul.MigrationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.tables[tableKey{database: database, table: table}]
	if !ok {
		return warehaul.ErrTableNotFound
	}

	now := time.Now()
	for _, values := range partitions {
		ik := partitionIndexKey(values)
		state, exists := entry.index[ik]
		if !exists {
			copied := make([]string, len(values))
			copy(copied, values)
			state = &store.PartitionState{Values: copied, Status: warehaul.StatusPending}
			entry.partitions = append(entry.partitions, state)
			entry.index[ik] = state
		}

		state.Status = status
		switch status {
		case warehaul.StatusSucceeded:
			state.LastSuccess = now
		case warehaul.StatusFailed:
			state.AttemptTimes++
		}
	}

	return nil
}

// ListPartitionStates returns the persisted state of every known partition
// of a table, in registration order.
func (s *Store) ListPartitionStates(ctx context.Context, database, table string) ([]store.PartitionState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.tables[tableKey{database: database, table: table}]
	if !ok {
		return nil, warehaul.ErrTableNotFound
	}

	states := make([]store.PartitionState, 0, len(entry.partitions))
	for _, p := range entry.partitions {
		states = append(states, *p)
	}
	return states, nil
}

// ListFailedPartitions returns the value lists of partitions whose last
// attempt failed, in registration order.
func (s *Store) ListFailedPartitions(ctx context.Context, database, table string) ([][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.tables[tableKey{database: database, table: table}]
	if !ok {
		return nil, warehaul.ErrTableNotFound
	}

	var failed [][]string
	for _, p := range entry.partitions {
		if p.Status == warehaul.StatusFailed {
			values := make([]string, len(p.Values))
			copy(values, p.Values)
			failed = append(failed, values)
		}
	}
	return failed, nil
}

// RegisterRun records a new scheduler run and returns it.
func (s *Store) RegisterRun(ctx context.Context) (store.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	run := store.Run{
		ID:            uuid.New().String(),
		StartedAt:     now,
		LastHeartbeat: now,
	}
	s.runs[run.ID] = run

	return run, nil
}

// Heartbeat updates the last heartbeat time for a run.
// Returns warehaul.ErrRunNotFound if the run does not exist.
func (s *Store) Heartbeat(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return warehaul.ErrRunNotFound
	}

	run.LastHeartbeat = time.Now()
	s.runs[runID] = run
	return nil
}

// FinishRun marks a run as completed.
// Returns warehaul.ErrRunNotFound if the run does not exist.
func (s *Store) FinishRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return warehaul.ErrRunNotFound
	}

	run.FinishedAt = time.Now()
	s.runs[runID] = run
	return nil
}

// GetRun returns a run by ID.
// Returns warehaul.ErrRunNotFound if the run does not exist.
func (s *Store) GetRun(ctx context.Context, runID string) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return store.Run{}, warehaul.ErrRunNotFound
	}
	return run, nil
}
