// Package planner converts table metadata plus a requested action set into
// schedulable tasks, batching partitioned tables into partition groups.
package planner

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warehaul/warehaul"
	"github.com/warehaul/warehaul/store"
	"github.com/warehaul/warehaul/task"
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Config holds the collaborators for a Planner.
type Config struct {
	// Store resolves per-table configuration and receives checkpoint writes
	// from the generated tasks (optional). A nil store means every table
	// uses the default group size and tasks carry no side effects.
	Store store.MetaStore

	// Logger is for observability (optional).
	Logger logrus.FieldLogger

	// StrictVerification is passed through to the generated tasks.
	StrictVerification bool
}

// Planner splits tables into tasks. Each partitioned table is cut into
// consecutive partition groups whose size comes from the table's configured
// override, defaulting to the full partition count (no splitting).
type Planner struct {
	config Config
	rand   *rand.Rand
}

// New creates a planner.
func New(cfg Config) *Planner {
	return &Planner{
		config: cfg,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Plan generates tasks for the given tables, each carrying the requested
// actions. The actions slice is treated as a set; duplicates collapse.
// Planning fails as a whole on the first invalid table configuration.
func (p *Planner) Plan(ctx context.Context, tables []warehaul.TableMeta, actions []warehaul.Action) ([]*task.Task, error) {
	var tasks []*task.Task

	for _, table := range tables {
		var cfg store.TableConfig
		if p.config.Store != nil {
			var err error
			cfg, err = p.config.Store.GetTableConfig(ctx, table.Database, table.Table)
			if err != nil {
				return nil, fmt.Errorf("failed to get config for table %s: %w", table.Name(), err)
			}
		}

		if !table.IsPartitioned() {
			tasks = append(tasks, p.planNonPartitioned(table, cfg, actions))
			continue
		}

		generated, err := p.planPartitioned(table, cfg, actions)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, generated...)
	}

	if p.config.Logger != nil {
		names := make([]string, 0, len(tasks))
		for _, t := range tasks {
			names = append(names, t.Name())
		}
		p.config.Logger.WithField("tasks", strings.Join(names, ", ")).Info("generated tasks")
	}

	return tasks, nil
}

// planNonPartitioned emits one task carrying every requested action except
// add-partitions, which is meaningless without partition columns.
func (p *Planner) planNonPartitioned(table warehaul.TableMeta, cfg store.TableConfig, actions []warehaul.Action) *task.Task {
	t := task.New(table.Name(), table.Clone(), p.taskConfig(cfg))
	for _, action := range actions {
		if action == warehaul.ActionAddPartitions {
			continue
		}
		t.AddAction(action)
	}
	return t
}

// planPartitioned cuts the table's partitions into consecutive groups and
// emits one task per group. A partitioned table with no partitions yet gets
// a single task that only creates the destination table; there is no data
// to move.
func (p *Planner) planPartitioned(table warehaul.TableMeta, cfg store.TableConfig, actions []warehaul.Action) ([]*task.Task, error) {
	if len(table.Partitions) == 0 {
		if p.config.Logger != nil {
			p.config.Logger.WithFields(logrus.Fields{
				"database": table.Database,
				"table":    table.Table,
			}).Info("partitioned table has no partitions yet")
		}
		t := task.New(table.Name(), table.Clone(), p.taskConfig(cfg))
		t.AddAction(warehaul.ActionCreateTable)
		return []*task.Task{t}, nil
	}

	// A non-positive configured size is ignored and the table stays in one
	// group.
	groupSize := len(table.Partitions)
	if cfg.PartitionGroupSize > 0 {
		groupSize = cfg.PartitionGroupSize
	}
	if groupSize <= 0 {
		return nil, fmt.Errorf("table %s: group size %d: %w",
			table.Name(), groupSize, warehaul.ErrInvalidGroupSize)
	}

	// One token per table so all of its tasks share a prefix while staying
	// distinguishable from a previous planning run.
	prefix := fmt.Sprintf("%s.%s", table.Name(), p.token())

	var tasks []*task.Task
	for startIdx, taskIdx := 0, 0; startIdx < len(table.Partitions); startIdx, taskIdx = startIdx+groupSize, taskIdx+1 {
		endIdx := startIdx + groupSize
		if endIdx > len(table.Partitions) {
			endIdx = len(table.Partitions)
		}

		clone := table.Clone()
		clone.Partitions = make([]warehaul.PartitionMeta, 0, endIdx-startIdx)
		for _, part := range table.Partitions[startIdx:endIdx] {
			clone.Partitions = append(clone.Partitions, part.Clone())
		}

		t := task.New(fmt.Sprintf("%s.%d", prefix, taskIdx), clone, p.taskConfig(cfg))
		for _, action := range actions {
			t.AddAction(action)
		}
		tasks = append(tasks, t)
	}

	return tasks, nil
}

func (p *Planner) taskConfig(cfg store.TableConfig) task.Config {
	return task.Config{
		TableConfig:        cfg,
		Store:              p.config.Store,
		Logger:             p.config.Logger,
		StrictVerification: p.config.StrictVerification,
	}
}

// token draws a 4-character name component from [A-Z0-9].
func (p *Planner) token() string {
	var b strings.Builder
	for i := 0; i < 4; i++ {
		b.WriteByte(tokenAlphabet[p.rand.Intn(len(tokenAlphabet))])
	}
	return b.String()
}
