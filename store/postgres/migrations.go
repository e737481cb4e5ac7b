package postgres

import "fmt"

// TableConfig configures the table names used by the metadata store.
type TableConfig struct {
	// TablesTable is the name of the table storing per-table migration state.
	TablesTable string

	// PartitionsTable is the name of the table storing per-partition state.
	PartitionsTable string

	// RunsTable is the name of the table storing scheduler runs.
	RunsTable string
}

// DefaultTableConfig returns the default table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		TablesTable:     "warehaul_tables",
		PartitionsTable: "warehaul_partitions",
		RunsTable:       "warehaul_runs",
	}
}

// MigrationUp returns the SQL to create the metadata tables.
// It creates the tables table, the partitions table keyed by the joined
// partition values, and the runs table.
func MigrationUp(config TableConfig) string {
	return fmt.Sprintf(`-- Create warehaul_tables table
CREATE TABLE %s (
    db_name TEXT NOT NULL,
    table_name TEXT NOT NULL,
    is_partitioned BOOLEAN NOT NULL DEFAULT FALSE,
    group_size INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'pending',
    attempt_times INTEGER NOT NULL DEFAULT 0,
    last_success TIMESTAMPTZ,
    PRIMARY KEY (db_name, table_name)
);

-- Create warehaul_partitions table
CREATE TABLE %s (
    db_name TEXT NOT NULL,
    table_name TEXT NOT NULL,
    pt_vals TEXT NOT NULL,
    seq BIGSERIAL,
    status TEXT NOT NULL DEFAULT 'pending',
    attempt_times INTEGER NOT NULL DEFAULT 0,
    last_success TIMESTAMPTZ,
    PRIMARY KEY (db_name, table_name, pt_vals),
    FOREIGN KEY (db_name, table_name) REFERENCES %s(db_name, table_name)
);

-- Index for listing a table's partitions in registration order
CREATE INDEX idx_partitions_seq ON %s(db_name, table_name, seq);

-- Index for finding failed partitions
CREATE INDEX idx_partitions_status ON %s(db_name, table_name, status);

-- Create warehaul_runs table
CREATE TABLE %s (
    id UUID PRIMARY KEY,
    started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_heartbeat TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    finished_at TIMESTAMPTZ
);
`, config.TablesTable, config.PartitionsTable, config.TablesTable,
		config.PartitionsTable, config.PartitionsTable, config.RunsTable)
}

// MigrationDown returns the SQL to drop the metadata tables.
// It drops the partitions table first due to the foreign key constraint.
func MigrationDown(config TableConfig) string {
	return fmt.Sprintf(`-- Drop warehaul_partitions table (must be dropped first due to foreign key)
DROP TABLE IF EXISTS %s;

-- Drop warehaul_tables table
DROP TABLE IF EXISTS %s;

-- Drop warehaul_runs table
DROP TABLE IF EXISTS %s;
`, config.PartitionsTable, config.TablesTable, config.RunsTable)
}
