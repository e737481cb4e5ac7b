package cli

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/viper"
	"github.com/warehaul/warehaul"
	"github.com/warehaul/warehaul/internal/config"
	"github.com/warehaul/warehaul/store"
	"github.com/warehaul/warehaul/store/memory"
	"github.com/warehaul/warehaul/store/postgres"
	"github.com/warehaul/warehaul/store/sqlstore"
)

// jobTable is one table entry of a job file.
type jobTable struct {
	Database         string     `mapstructure:"database"`
	Table            string     `mapstructure:"table"`
	PartitionColumns []string   `mapstructure:"partition_columns"`
	Partitions       [][]string `mapstructure:"partitions"`
	GroupSize        int        `mapstructure:"group_size"`
}

// job is a parsed migration job file: the tables to migrate and, optionally,
// a subset of actions to run.
type job struct {
	Tables  []jobTable `mapstructure:"tables"`
	Actions []string   `mapstructure:"actions"`
}

// loadJob reads a migration job file.
func loadJob(path string) (job, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return job{}, fmt.Errorf("failed to read job file %s: %w", path, err)
	}

	var j job
	if err := v.Unmarshal(&j); err != nil {
		return job{}, fmt.Errorf("failed to parse job file %s: %w", path, err)
	}
	if len(j.Tables) == 0 {
		return job{}, fmt.Errorf("job file %s lists no tables", path)
	}

	return j, nil
}

// tableMeta converts a job entry into table metadata.
func (t jobTable) tableMeta() warehaul.TableMeta {
	meta := warehaul.TableMeta{
		Database:         t.Database,
		Table:            t.Table,
		PartitionColumns: t.PartitionColumns,
	}
	for _, values := range t.Partitions {
		meta.Partitions = append(meta.Partitions, warehaul.PartitionMeta{Values: values})
	}
	return meta
}

// jobActions resolves the job's action list, defaulting to the full set.
func (j job) jobActions() ([]warehaul.Action, error) {
	if len(j.Actions) == 0 {
		return warehaul.AllActions, nil
	}

	known := make(map[warehaul.Action]bool, len(warehaul.AllActions))
	for _, a := range warehaul.AllActions {
		known[a] = true
	}

	var actions []warehaul.Action
	for _, name := range j.Actions {
		a := warehaul.Action(name)
		if !known[a] {
			return nil, fmt.Errorf("unknown action %q", name)
		}
		actions = append(actions, a)
	}
	return actions, nil
}

// openStore opens the configured metadata store backend.
// The returned closer is nil for the in-memory backend.
func openStore(cfg config.StoreConfig) (store.MetaStore, func() error, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil, nil

	case "sqlite":
		db, err := sql.Open("sqlite3", cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		db.SetMaxOpenConns(1)
		s := sqlstore.New(db)
		if err := s.Migrate(context.Background()); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return s, db.Close, nil

	case "mysql":
		db, err := sql.Open("mysql", cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open mysql store: %w", err)
		}
		s := sqlstore.New(db)
		if err := s.Migrate(context.Background()); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return s, db.Close, nil

	case "postgres":
		db, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return postgres.New(db), db.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
