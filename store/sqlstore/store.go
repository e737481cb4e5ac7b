// Package sqlstore is a MetaStore implementation for databases using ?
// placeholders. It backs the default embedded SQLite metadata file and also
// works against MySQL, so single-host runs and shared MySQL deployments use
// the same code path.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/warehaul/warehaul"
	"github.com/warehaul/warehaul/store"
)

// Store is a SQL implementation of MetaStore for SQLite and MySQL. It
// avoids vendor-specific upserts; writes are plain selects and updates, so
// callers needing cross-process exclusion must serialize externally.
type Store struct {
	db              *sql.DB
	tablesTable     string
	partitionsTable string
	runsTable       string
}

// New creates a new store with default table names.
func New(db *sql.DB) *Store {
	return NewWithConfig(db, DefaultTableConfig())
}

// NewWithConfig creates a new store with custom table names.
func NewWithConfig(db *sql.DB, config TableConfig) *Store {
	return &Store{
		db:              db,
		tablesTable:     config.TablesTable,
		partitionsTable: config.PartitionsTable,
		runsTable:       config.RunsTable,
	}
}

// Compile-time check that Store implements MetaStore.
var _ store.MetaStore = (*Store)(nil)

// Migrate creates the metadata tables if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range Schema(TableConfig{
		TablesTable:     s.tablesTable,
		PartitionsTable: s.partitionsTable,
		RunsTable:       s.runsTable,
	}) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// RegisterTable records the table with its configuration and seeds its
// partitions as pending. Re-registering replaces the configuration but
// keeps accumulated state; known partitions are left untouched.
func (s *Store) RegisterTable(ctx context.Context, meta warehaul.TableMeta, cfg store.TableConfig) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE db_name = ? AND table_name = ?", s.tablesTable),
		meta.Database, meta.Table).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check table: %w", err)
	}

	if exists == 0 {
		_, err = s.db.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO %s (db_name, table_name, is_partitioned, group_size, status) VALUES (?, ?, ?, ?, 'pending')", s.tablesTable),
			meta.Database, meta.Table, meta.IsPartitioned(), cfg.PartitionGroupSize)
	} else {
		_, err = s.db.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET is_partitioned = ?, group_size = ? WHERE db_name = ? AND table_name = ?", s.tablesTable),
			meta.IsPartitioned(), cfg.PartitionGroupSize, meta.Database, meta.Table)
	}
	if err != nil {
		return fmt.Errorf("failed to register table: %w", err)
	}

	for _, p := range meta.Partitions {
		if err := s.ensurePartition(ctx, meta.Database, meta.Table, p.Key()); err != nil {
			return err
		}
	}

	return nil
}

// ensurePartition inserts a pending partition row if the key is unknown,
// assigning the next sequence number to keep registration order.
func (s *Store) ensurePartition(ctx context.Context, database, table, key string) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE db_name = ? AND table_name = ? AND pt_vals = ?", s.partitionsTable),
		database, table, key).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check partition %s: %w", key, err)
	}
	if exists > 0 {
		return nil
	}

	var seq int64
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COALESCE(MAX(seq), 0) + 1 FROM %s WHERE db_name = ? AND table_name = ?", s.partitionsTable),
		database, table).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed to compute partition sequence: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (db_name, table_name, pt_vals, seq, status) VALUES (?, ?, ?, ?, 'pending')", s.partitionsTable),
		database, table, key, seq)
	if err != nil {
		return fmt.Errorf("failed to register partition %s: %w", key, err)
	}
	return nil
}

// GetTableConfig returns the additional configuration for a table.
// An unregistered table yields the zero config.
func (s *Store) GetTableConfig(ctx context.Context, database, table string) (store.TableConfig, error) {
	var cfg store.TableConfig
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT group_size FROM %s WHERE db_name = ? AND table_name = ?", s.tablesTable),
		database, table).Scan(&cfg.PartitionGroupSize)
	if err == sql.ErrNoRows {
		return store.TableConfig{}, nil
	}
	if err != nil {
		return store.TableConfig{}, fmt.Errorf("failed to get table config: %w", err)
	}
	return cfg, nil
}

// GetTableState returns the persisted state of a table.
// Returns warehaul.ErrTableNotFound if the table was never registered.
func (s *Store) GetTableState(ctx context.Context, database, table string) (store.TableState, error) {
	var state store.TableState
	var lastSuccess sql.NullTime
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT db_name, table_name, is_partitioned, status, attempt_times, last_success FROM %s WHERE db_name = ? AND table_name = ?", s.tablesTable),
		database, table).Scan(
		&state.Database, &state.Table, &state.IsPartitioned, &state.Status, &state.AttemptTimes, &lastSuccess)
	if err == sql.ErrNoRows {
		return store.TableState{}, warehaul.ErrTableNotFound
	}
	if err != nil {
		return store.TableState{}, fmt.Errorf("failed to get table state: %w", err)
	}

	if lastSuccess.Valid {
		state.LastSuccess = lastSuccess.Time
	}
	return state, nil
}

// UpdateTableStatus sets the table-level status. A succeeded status stamps
// the last-success time.
// Returns warehaul.ErrTableNotFound if the table does not exist.
func (s *Store) UpdateTableStatus(ctx context.Context, database, table string, status warehaul.MigrationStatus) error {
	var result sql.Result
	var err error
	if status == warehaul.StatusSucceeded {
		result, err = s.db.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET status = ?, last_success = ? WHERE db_name = ? AND table_name = ?", s.tablesTable),
			string(status), time.Now(), database, table)
	} else {
		result, err = s.db.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET status = ? WHERE db_name = ? AND table_name = ?", s.tablesTable),
			string(status), database, table)
	}
	if err != nil {
		return fmt.Errorf("failed to update table status: %w", err)
	}

	return checkFound(result, warehaul.ErrTableNotFound)
}

// MarkTableFailed marks the table failed and increments its attempt counter.
// Returns warehaul.ErrTableNotFound if the table does not exist.
func (s *Store) MarkTableFailed(ctx context.Context, database, table string) error {
	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET status = 'failed', attempt_times = attempt_times + 1 WHERE db_name = ? AND table_name = ?", s.tablesTable),
		database, table)
	if err != nil {
		return fmt.Errorf("failed to mark table failed: %w", err)
	}

	return checkFound(result, warehaul.ErrTableNotFound)
}

// UpdatePartitionStatus checkpoints a batch of partitions under the given
// status. Partitions not yet known to the store are created on the fly.
func (s *Store) UpdatePartitionStatus(ctx context.Context, database, table string, partitions [][]string, status warehaul.MigrationStatus) error {
	for _, values := range partitions {
		key := strings.Join(values, warehaul.PartitionKeySeparator)
		if err := s.ensurePartition(ctx, database, table, key); err != nil {
			return err
		}

		var err error
		switch status {
		case warehaul.StatusSucceeded:
			_, err = s.db.ExecContext(ctx,
				fmt.Sprintf("UPDATE %s SET status = ?, last_success = ? WHERE db_name = ? AND table_name = ? AND pt_vals = ?", s.partitionsTable),
				string(status), time.Now(), database, table, key)
		case warehaul.StatusFailed:
			_, err = s.db.ExecContext(ctx,
				fmt.Sprintf("UPDATE %s SET status = ?, attempt_times = attempt_times + 1 WHERE db_name = ? AND table_name = ? AND pt_vals = ?", s.partitionsTable),
				string(status), database, table, key)
		default:
			_, err = s.db.ExecContext(ctx,
				fmt.Sprintf("UPDATE %s SET status = ? WHERE db_name = ? AND table_name = ? AND pt_vals = ?", s.partitionsTable),
				string(status), database, table, key)
		}
		if err != nil {
			return fmt.Errorf("failed to update partition %s: %w", key, err)
		}
	}

	return nil
}

// ListPartitionStates returns the persisted state of every known partition
// of a table, in registration order.
func (s *Store) ListPartitionStates(ctx context.Context, database, table string) ([]store.PartitionState, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT pt_vals, status, attempt_times, last_success FROM %s WHERE db_name = ? AND table_name = ? ORDER BY seq", s.partitionsTable),
		database, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list partition states: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var states []store.PartitionState
	for rows.Next() {
		var key string
		var state store.PartitionState
		var lastSuccess sql.NullTime
		if err := rows.Scan(&key, &state.Status, &state.AttemptTimes, &lastSuccess); err != nil {
			return nil, fmt.Errorf("failed to scan partition state: %w", err)
		}
		state.Values = strings.Split(key, warehaul.PartitionKeySeparator)
		if lastSuccess.Valid {
			state.LastSuccess = lastSuccess.Time
		}
		states = append(states, state)
	}

	return states, rows.Err()
}

// ListFailedPartitions returns the value lists of partitions whose last
// attempt failed, in registration order.
func (s *Store) ListFailedPartitions(ctx context.Context, database, table string) ([][]string, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT pt_vals FROM %s WHERE db_name = ? AND table_name = ? AND status = 'failed' ORDER BY seq", s.partitionsTable),
		database, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed partitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var failed [][]string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan partition: %w", err)
		}
		failed = append(failed, strings.Split(key, warehaul.PartitionKeySeparator))
	}

	return failed, rows.Err()
}

// RegisterRun records a new scheduler run and returns it.
func (s *Store) RegisterRun(ctx context.Context) (store.Run, error) {
	run := store.Run{
		ID:            uuid.New().String(),
		StartedAt:     time.Now(),
		LastHeartbeat: time.Now(),
	}

	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (id, started_at, last_heartbeat) VALUES (?, ?, ?)", s.runsTable),
		run.ID, run.StartedAt, run.LastHeartbeat)
	if err != nil {
		return store.Run{}, fmt.Errorf("failed to register run: %w", err)
	}

	return run, nil
}

// Heartbeat updates the last heartbeat time for a run.
// Returns warehaul.ErrRunNotFound if the run does not exist.
func (s *Store) Heartbeat(ctx context.Context, runID string) error {
	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET last_heartbeat = ? WHERE id = ?", s.runsTable),
		time.Now(), runID)
	if err != nil {
		return fmt.Errorf("failed to heartbeat: %w", err)
	}

	return checkFound(result, warehaul.ErrRunNotFound)
}

// FinishRun marks a run as completed.
// Returns warehaul.ErrRunNotFound if the run does not exist.
func (s *Store) FinishRun(ctx context.Context, runID string) error {
	result, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET finished_at = ? WHERE id = ?", s.runsTable),
		time.Now(), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	return checkFound(result, warehaul.ErrRunNotFound)
}

// GetRun returns a run by ID.
// Returns warehaul.ErrRunNotFound if the run does not exist.
func (s *Store) GetRun(ctx context.Context, runID string) (store.Run, error) {
	var run store.Run
	var finishedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT id, started_at, last_heartbeat, finished_at FROM %s WHERE id = ?", s.runsTable),
		runID).Scan(&run.ID, &run.StartedAt, &run.LastHeartbeat, &finishedAt)
	if err == sql.ErrNoRows {
		return store.Run{}, warehaul.ErrRunNotFound
	}
	if err != nil {
		return store.Run{}, fmt.Errorf("failed to get run: %w", err)
	}

	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	return run, nil
}

// checkFound maps a zero-row update to the given not-found error.
func checkFound(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
