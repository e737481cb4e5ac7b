// Package postgres is a PostgreSQL implementation of the metadata store,
// for deployments where several migration runs share durable state.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/warehaul/warehaul"
	"github.com/warehaul/warehaul/store"
)

// Store is a PostgreSQL implementation of MetaStore.
type Store struct {
	db              *sql.DB
	tablesTable     string
	partitionsTable string
	runsTable       string
}

// New creates a new PostgreSQL store with default table names.
func New(db *sql.DB) *Store {
	return NewWithConfig(db, DefaultTableConfig())
}

// NewWithConfig creates a new PostgreSQL store with custom table names.
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

// RegisterTable upserts the table row and seeds its partitions as pending.
// Re-registering replaces the configuration but keeps accumulated state;
// already-known partitions are left untouched.
func (s *Store) RegisterTable(ctx context.Context, meta warehaul.TableMeta, cfg store.TableConfig) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (db_name, table_name, is_partitioned, group_size)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (db_name, table_name)
		DO UPDATE SET is_partitioned = $3, group_size = $4
	`, s.tablesTable)

	if _, err := s.db.ExecContext(ctx, query, meta.Database, meta.Table, meta.IsPartitioned(), cfg.PartitionGroupSize); err != nil {
		return fmt.Errorf("failed to register table: %w", err)
	}

	partitionQuery := fmt.Sprintf(`
		INSERT INTO %s (db_name, table_name, pt_vals)
		VALUES ($1, $2, $3)
		ON CONFLICT (db_name, table_name, pt_vals) DO NOTHING
	`, s.partitionsTable)

	for _, p := range meta.Partitions {
		if _, err := s.db.ExecContext(ctx, partitionQuery, meta.Database, meta.Table, p.Key()); err != nil {
			return fmt.Errorf("failed to register partition %s: %w", p.Key(), err)
		}
	}

	return nil
}

// GetTableConfig returns the additional configuration for a table.
// An unregistered table yields the zero config.
func (s *Store) GetTableConfig(ctx context.Context, database, table string) (store.TableConfig, error) {
	query := fmt.Sprintf(`
		SELECT group_size
		FROM %s
		WHERE db_name = $1 AND table_name = $2
	`, s.tablesTable)

	var cfg store.TableConfig
	err := s.db.QueryRowContext(ctx, query, database, table).Scan(&cfg.PartitionGroupSize)
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
	query := fmt.Sprintf(`
		SELECT db_name, table_name, is_partitioned, status, attempt_times, last_success
		FROM %s
		WHERE db_name = $1 AND table_name = $2
	`, s.tablesTable)

	var state store.TableState
	var lastSuccess sql.NullTime
	err := s.db.QueryRowContext(ctx, query, database, table).Scan(
		&state.Database,
		&state.Table,
		&state.IsPartitioned,
		&state.Status,
		&state.AttemptTimes,
		&lastSuccess,
	)
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
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $3,
		    last_success = CASE WHEN $3 = 'succeeded' THEN NOW() ELSE last_success END
		WHERE db_name = $1 AND table_name = $2
	`, s.tablesTable)

	result, err := s.db.ExecContext(ctx, query, database, table, string(status))
	if err != nil {
		return fmt.Errorf("failed to update table status: %w", err)
	}

	return checkFound(result, warehaul.ErrTableNotFound)
}

// MarkTableFailed marks the table failed and increments its attempt counter.
// Returns warehaul.ErrTableNotFound if the table does not exist.
func (s *Store) MarkTableFailed(ctx context.Context, database, table string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = 'failed', attempt_times = attempt_times + 1
		WHERE db_name = $1 AND table_name = $2
	`, s.tablesTable)

	result, err := s.db.ExecContext(ctx, query, database, table)
	if err != nil {
		return fmt.Errorf("failed to mark table failed: %w", err)
	}

	return checkFound(result, warehaul.ErrTableNotFound)
}

// UpdatePartitionStatus checkpoints a batch of partitions under the given
// status. Partitions not yet known to the store are created on the fly.
func (s *Store) UpdatePartitionStatus(ctx context.Context, database, table string, partitions [][]string, status warehaul.MigrationStatus) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (db_name, table_name, pt_vals, status, attempt_times, last_success)
		VALUES ($1, $2, $3, $4,
		        CASE WHEN $4 = 'failed' THEN 1 ELSE 0 END,
		        CASE WHEN $4 = 'succeeded' THEN NOW() END)
		ON CONFLICT (db_name, table_name, pt_vals)
		DO UPDATE SET
		    status = $4,
		    attempt_times = %s.attempt_times + CASE WHEN $4 = 'failed' THEN 1 ELSE 0 END,
		    last_success = CASE WHEN $4 = 'succeeded' THEN NOW() ELSE %s.last_success END
	`, s.partitionsTable, s.partitionsTable, s.partitionsTable)

	for _, values := range partitions {
		key := strings.Join(values, warehaul.PartitionKeySeparator)
		if _, err := s.db.ExecContext(ctx, query, database, table, key, string(status)); err != nil {
			return fmt.Errorf("failed to update partition %s: %w", key, err)
		}
	}

	return nil
}

// ListPartitionStates returns the persisted state of every known partition
// of a table, in registration order.
func (s *Store) ListPartitionStates(ctx context.Context, database, table string) ([]store.PartitionState, error) {
	query := fmt.Sprintf(`
		SELECT pt_vals, status, attempt_times, last_success
		FROM %s
		WHERE db_name = $1 AND table_name = $2
		ORDER BY seq
	`, s.partitionsTable)

	rows, err := s.db.QueryContext(ctx, query, database, table)
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
	query := fmt.Sprintf(`
		SELECT pt_vals
		FROM %s
		WHERE db_name = $1 AND table_name = $2 AND status = 'failed'
		ORDER BY seq
	`, s.partitionsTable)

	rows, err := s.db.QueryContext(ctx, query, database, table)
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
	runID := uuid.New().String()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, started_at, last_heartbeat)
		VALUES ($1, NOW(), NOW())
		RETURNING started_at, last_heartbeat
	`, s.runsTable)

	run := store.Run{ID: runID}
	if err := s.db.QueryRowContext(ctx, query, runID).Scan(&run.StartedAt, &run.LastHeartbeat); err != nil {
		return store.Run{}, fmt.Errorf("failed to register run: %w", err)
	}

	return run, nil
}

// Heartbeat updates the last heartbeat time for a run.
// Returns warehaul.ErrRunNotFound if the run does not exist.
func (s *Store) Heartbeat(ctx context.Context, runID string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET last_heartbeat = NOW()
		WHERE id = $1
	`, s.runsTable)

	result, err := s.db.ExecContext(ctx, query, runID)
	if err != nil {
		return fmt.Errorf("failed to heartbeat: %w", err)
	}

	return checkFound(result, warehaul.ErrRunNotFound)
}

// FinishRun marks a run as completed.
// Returns warehaul.ErrRunNotFound if the run does not exist.
func (s *Store) FinishRun(ctx context.Context, runID string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET finished_at = NOW()
		WHERE id = $1
	`, s.runsTable)

	result, err := s.db.ExecContext(ctx, query, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	return checkFound(result, warehaul.ErrRunNotFound)
}

// GetRun returns a run by ID.
// Returns warehaul.ErrRunNotFound if the run does not exist.
func (s *Store) GetRun(ctx context.Context, runID string) (store.Run, error) {
	query := fmt.Sprintf(`
		SELECT id, started_at, last_heartbeat, finished_at
		FROM %s
		WHERE id = $1
	`, s.runsTable)

	var run store.Run
	var finishedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, runID).Scan(&run.ID, &run.StartedAt, &run.LastHeartbeat, &finishedAt)
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
