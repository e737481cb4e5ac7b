package warehaul

import "strings"

// Progress represents the lifecycle state of a single action or of an
// aggregated migration task.
type Progress string

const (
	// ProgressNew indicates the action has been created but not dispatched.
	ProgressNew Progress = "new"

	// ProgressRunning indicates the action is currently executing on an engine.
	ProgressRunning Progress = "running"

	// ProgressSucceeded indicates the action finished successfully. Terminal.
	ProgressSucceeded Progress = "succeeded"

	// ProgressFailed indicates the action finished with an error. Terminal.
	ProgressFailed Progress = "failed"
)

// IsTerminal reports whether the progress is a terminal state.
// Terminal states never transition to any other state.
func (p Progress) IsTerminal() bool {
	return p == ProgressSucceeded || p == ProgressFailed
}

// EngineKind identifies which execution engine an action is dispatched to.
type EngineKind string

const (
	// EngineSource runs work against the source warehouse.
	EngineSource EngineKind = "source"

	// EngineDestination runs work against the destination warehouse.
	EngineDestination EngineKind = "destination"

	// EngineValidation compares results recorded by the other two engines.
	EngineValidation EngineKind = "validation"
)

// Action is a single migration step. Every action has a fixed priority and
// a fixed engine affinity. Priorities form a total order across all actions:
// an action becomes eligible only once every action of strictly lower
// priority in the same task has succeeded. Equal priorities are intentionally
// schedulable concurrently.
type Action string

const (
	// ActionCreateTable creates the table on the destination warehouse.
	ActionCreateTable Action = "create_table"

	// ActionAddPartitions adds the task's partitions on the destination.
	ActionAddPartitions Action = "add_partitions"

	// ActionExtract exports the task's data from the source warehouse.
	ActionExtract Action = "extract"

	// ActionLoad loads the extracted data into the destination warehouse.
	ActionLoad Action = "load"

	// ActionValidateSource records per-partition row counts on the source.
	ActionValidateSource Action = "validate_source"

	// ActionValidateDest records per-partition row counts on the destination.
	ActionValidateDest Action = "validate_dest"

	// ActionVerify compares the recorded row counts of both sides.
	ActionVerify Action = "verify"
)

// actionPriorities encodes the scheduling order. This is deliberately a
// total priority order rather than a dependency graph: lower priorities
// gate higher ones regardless of whether a real data dependency exists.
var actionPriorities = map[Action]int{
	ActionCreateTable:    10,
	ActionAddPartitions:  20,
	ActionExtract:        30,
	ActionLoad:           40,
	ActionValidateSource: 50,
	ActionValidateDest:   50,
	ActionVerify:         60,
}

var actionEngines = map[Action]EngineKind{
	ActionCreateTable:    EngineDestination,
	ActionAddPartitions:  EngineDestination,
	ActionExtract:        EngineSource,
	ActionLoad:           EngineDestination,
	ActionValidateSource: EngineSource,
	ActionValidateDest:   EngineDestination,
	ActionVerify:         EngineValidation,
}

// AllActions lists every action in priority order. Callers that want a full
// migration pass this to the planner.
var AllActions = []Action{
	ActionCreateTable,
	ActionAddPartitions,
	ActionExtract,
	ActionLoad,
	ActionValidateSource,
	ActionValidateDest,
	ActionVerify,
}

// Priority returns the action's scheduling priority. Lower runs first.
// Unknown actions sort last.
func (a Action) Priority() int {
	if p, ok := actionPriorities[a]; ok {
		return p
	}
	return int(^uint(0) >> 1)
}

// Engine returns the execution engine the action is dispatched to.
func (a Action) Engine() EngineKind {
	return actionEngines[a]
}

// IsValidation reports whether the action records row counts for the
// reconciler (validate_source and validate_dest).
func (a Action) IsValidation() bool {
	return a == ActionValidateSource || a == ActionValidateDest
}

// PartitionKeySeparator joins a partition's ordered column values into its
// canonical key, used to correlate row counts across source and destination.
const PartitionKeySeparator = "/"

// PartitionMeta identifies one partition by its ordered column values.
// Value order matches the owning table's partition column order; equality
// is positional.
type PartitionMeta struct {
	Values []string
}

// Key returns the canonical string form of the partition, joining the
// ordered values with PartitionKeySeparator.
func (p PartitionMeta) Key() string {
	return strings.Join(p.Values, PartitionKeySeparator)
}

// Clone returns a deep copy of the partition.
func (p PartitionMeta) Clone() PartitionMeta {
	values := make([]string, len(p.Values))
	copy(values, p.Values)
	return PartitionMeta{Values: values}
}

// TableMeta describes one table to migrate: its identity, partition column
// names, and the partitions currently present on the source. The planner
// clones it per partition group so tasks never alias partition slices.
type TableMeta struct {
	// Database is the source database name.
	Database string

	// Table is the source table name.
	Table string

	// PartitionColumns lists the partition column names in declaration order.
	// Empty for non-partitioned tables.
	PartitionColumns []string

	// Partitions lists the partitions currently present on the source, in
	// the order the catalog supplied them.
	Partitions []PartitionMeta
}

// Name returns the qualified "database.table" identifier.
func (t TableMeta) Name() string {
	return t.Database + "." + t.Table
}

// IsPartitioned reports whether the table declares partition columns.
func (t TableMeta) IsPartitioned() bool {
	return len(t.PartitionColumns) > 0
}

// Clone returns a deep copy of the table metadata. Partition slices are
// copied so the clone can be re-partitioned without touching the original.
func (t TableMeta) Clone() TableMeta {
	clone := TableMeta{
		Database:         t.Database,
		Table:            t.Table,
		PartitionColumns: make([]string, len(t.PartitionColumns)),
		Partitions:       make([]PartitionMeta, 0, len(t.Partitions)),
	}
	copy(clone.PartitionColumns, t.PartitionColumns)
	for _, p := range t.Partitions {
		clone.Partitions = append(clone.Partitions, p.Clone())
	}
	return clone
}

// PartitionValues returns the raw value lists of every partition, in order.
// This is the shape the metadata store's checkpoint API accepts.
func (t TableMeta) PartitionValues() [][]string {
	values := make([][]string, 0, len(t.Partitions))
	for _, p := range t.Partitions {
		values = append(values, p.Clone().Values)
	}
	return values
}

// MigrationStatus is the persisted status of a table or partition in the
// metadata store.
type MigrationStatus string

const (
	// StatusPending indicates the table or partition has not migrated yet.
	StatusPending MigrationStatus = "pending"

	// StatusRunning indicates a migration run is currently working on it.
	StatusRunning MigrationStatus = "running"

	// StatusSucceeded indicates the data migrated and validated.
	StatusSucceeded MigrationStatus = "succeeded"

	// StatusFailed indicates the last attempt failed.
	StatusFailed MigrationStatus = "failed"
)
