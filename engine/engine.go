// Package engine defines the execution-engine contract the scheduler
// dispatches actions to, one engine per affinity.
package engine

import (
	"context"

	"github.com/warehaul/warehaul"
	"github.com/warehaul/warehaul/task"
)

// Engine runs actions against one side of a migration.
// This interface allows for mock implementations in tests.
type Engine interface {
	// Execute runs one action for one task to completion. A nil error means
	// the action succeeded; an error means it failed. There is no partial
	// progress inside an action invocation.
	Execute(ctx context.Context, action warehaul.Action, t *task.Task) error

	// CountRows reports per-partition row counts for the task's table as
	// observed by this engine, keyed by partition key. Used by validation
	// actions only.
	CountRows(ctx context.Context, t *task.Task) (map[string]int64, error)
}
