package sqlstore

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

// Schema returns the DDL statements creating the metadata tables, one
// statement per element. The DDL sticks to the SQL subset SQLite and MySQL
// share; callers execute the statements one by one.
func Schema(config TableConfig) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    db_name VARCHAR(255) NOT NULL,
    table_name VARCHAR(255) NOT NULL,
    is_partitioned BOOLEAN NOT NULL DEFAULT 0,
    group_size INTEGER NOT NULL DEFAULT 0,
    status VARCHAR(64) NOT NULL DEFAULT 'pending',
    attempt_times INTEGER NOT NULL DEFAULT 0,
    last_success TIMESTAMP NULL,
    PRIMARY KEY (db_name, table_name)
)`, config.TablesTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    db_name VARCHAR(255) NOT NULL,
    table_name VARCHAR(255) NOT NULL,
    pt_vals VARCHAR(512) NOT NULL,
    seq INTEGER NOT NULL,
    status VARCHAR(64) NOT NULL DEFAULT 'pending',
    attempt_times INTEGER NOT NULL DEFAULT 0,
    last_success TIMESTAMP NULL,
    PRIMARY KEY (db_name, table_name, pt_vals)
)`, config.PartitionsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id VARCHAR(36) NOT NULL,
    started_at TIMESTAMP NOT NULL,
    last_heartbeat TIMESTAMP NOT NULL,
    finished_at TIMESTAMP NULL,
    PRIMARY KEY (id)
)`, config.RunsTable),
	}
}
