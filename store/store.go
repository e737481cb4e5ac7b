package store

import (
	"context"
	"time"

	"github.com/warehaul/warehaul"
)

// TableConfig holds per-table migration configuration.
type TableConfig struct {
	// PartitionGroupSize is the number of partitions migrated per task.
	// Zero means no splitting: all partitions go into one task.
	PartitionGroupSize int
}

// TableState is the persisted migration state of one table.
type TableState struct {
	// Database is the source database name.
	Database string

	// Table is the source table name.
	Table string

	// IsPartitioned records whether the table declares partition columns.
	IsPartitioned bool

	// Status is the table-level migration status.
	Status warehaul.MigrationStatus

	// AttemptTimes counts failed migration attempts.
	AttemptTimes int

	// LastSuccess is when the table last migrated successfully.
	// Zero if it never has.
	LastSuccess time.Time
}

// PartitionState is the persisted migration state of one partition.
type PartitionState struct {
	// Values are the partition's ordered column values.
	Values []string

	// Status is the partition-level migration status.
	Status warehaul.MigrationStatus

	// AttemptTimes counts failed migration attempts.
	AttemptTimes int

	// LastSuccess is when the partition last migrated successfully.
	// Zero if it never has.
	LastSuccess time.Time
}

// Run identifies one scheduler process working through a plan. An outer
// retry driver uses the heartbeat to detect runs that died mid-migration.
type Run struct {
	// ID is the unique identifier for this run (UUID).
	ID string

	// StartedAt is when the run registered.
	StartedAt time.Time

	// LastHeartbeat is the last time the run reported health.
	LastHeartbeat time.Time

	// FinishedAt is when the run completed. Zero while the run is live.
	FinishedAt time.Time
}

// MetaStore provides persistence for migration checkpoint state.
// Implementations must be safe for concurrent access: tasks executing in
// parallel checkpoint through the same store.
type MetaStore interface {
	// RegisterTable records a table in the catalog with its configuration,
	// setting it to pending. Registering an already-known table replaces
	// its configuration but keeps its accumulated state.
	RegisterTable(ctx context.Context, meta warehaul.TableMeta, cfg TableConfig) error

	// GetTableConfig returns the additional configuration for a table.
	// An unregistered table yields the zero config, not an error: absent
	// configuration is a normal planning input.
	GetTableConfig(ctx context.Context, database, table string) (TableConfig, error)

	// GetTableState returns the persisted state of a table.
	// Returns warehaul.ErrTableNotFound if the table was never registered.
	GetTableState(ctx context.Context, database, table string) (TableState, error)

	// UpdateTableStatus sets the table-level status. A succeeded status
	// stamps the last-success time.
	UpdateTableStatus(ctx context.Context, database, table string, status warehaul.MigrationStatus) error

	// MarkTableFailed marks the table failed and increments its attempt
	// counter. Called when any task of the table fails, regardless of which
	// partition group the task covered.
	MarkTableFailed(ctx context.Context, database, table string) error

	// UpdatePartitionStatus checkpoints a batch of partitions under the
	// given status. A succeeded status stamps the last-success time; a
	// failed status increments each partition's attempt counter.
	UpdatePartitionStatus(ctx context.Context, database, table string, partitions [][]string, status warehaul.MigrationStatus) error

	// ListPartitionStates returns the persisted state of every known
	// partition of a table, in registration order.
	ListPartitionStates(ctx context.Context, database, table string) ([]PartitionState, error)

	// ListFailedPartitions returns the value lists of partitions whose last
	// attempt failed, in registration order. This is the input for
	// selective re-migration.
	ListFailedPartitions(ctx context.Context, database, table string) ([][]string, error)

	// RegisterRun records a new scheduler run and returns it.
	RegisterRun(ctx context.Context) (Run, error)

	// Heartbeat updates the last heartbeat time for a run.
	// Returns warehaul.ErrRunNotFound if the run does not exist.
	Heartbeat(ctx context.Context, runID string) error

	// FinishRun marks a run as completed.
	// Returns warehaul.ErrRunNotFound if the run does not exist.
	FinishRun(ctx context.Context, runID string) error

	// GetRun returns a run by ID.
	// Returns warehaul.ErrRunNotFound if the run does not exist.
	GetRun(ctx context.Context, runID string) (Run, error)
}
