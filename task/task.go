// Package task implements the unit of schedulable migration work: one
// table's (or one partition group's) ordered set of actions and the state
// machine that aggregates their progress.
package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warehaul/warehaul"
	"github.com/warehaul/warehaul/store"
)

// Config holds the collaborators and switches for a Task.
type Config struct {
	// TableConfig is the per-table migration configuration the planner
	// resolved for this task.
	TableConfig store.TableConfig

	// Store receives checkpoint writes on terminal transitions (optional).
	// A nil store disables side effects, which unit tests rely on.
	Store store.MetaStore

	// Logger is for observability (optional).
	Logger logrus.FieldLogger

	// StrictVerification changes the checkpoint written when a task fails
	// because its verify action failed: the literal legacy behavior records
	// the partitions as succeeded even then; with StrictVerification they
	// are recorded as failed. Off by default until the legacy behavior is
	// confirmed intentional or not.
	StrictVerification bool
}

// actionInfo is the per-action record inside a task: current progress plus
// the engine-specific result payload. Only validation actions populate
// rowCounts; the other affinities carry no results beyond progress.
type actionInfo struct {
	progress  warehaul.Progress
	rowCounts map[string]map[string]int64 // target table -> partition key -> rows
}

// Task is a named unit of work owning one cloned TableMeta and a set of
// actions. It exclusively owns its action map; all mutation goes through
// UpdateProgress and SetRowCounts, which serialize concurrent updates from
// actions finishing in parallel.
type Task struct {
	name   string
	table  warehaul.TableMeta
	config Config

	mu        sync.Mutex
	actions   map[warehaul.Action]*actionInfo
	progress  warehaul.Progress
	updatedAt time.Time

	// pendingFloor is the lowest priority among actions not yet succeeded.
	// An action is ready only if no lower-priority action is still pending,
	// so readiness is a single comparison against this watermark.
	pendingFloor int
}

const maxPriority = int(^uint(0) >> 1)

// New creates a task for the given cloned table metadata. The caller must
// not retain references into meta's slices; the planner hands over a deep
// copy.
func New(name string, meta warehaul.TableMeta, cfg Config) *Task {
	return &Task{
		name:         name,
		table:        meta,
		config:       cfg,
		actions:      make(map[warehaul.Action]*actionInfo),
		progress:     warehaul.ProgressNew,
		updatedAt:    time.Now(),
		pendingFloor: maxPriority,
	}
}

// Name returns the task name assigned by the planner.
func (t *Task) Name() string {
	return t.name
}

// String returns the task name.
func (t *Task) String() string {
	return t.name
}

// Database returns the source database name.
func (t *Task) Database() string {
	return t.table.Database
}

// TableName returns the source table name.
func (t *Task) TableName() string {
	return t.table.Table
}

// Table returns the task's table metadata. Callers must treat the returned
// value as read-only; the task owns the underlying slices.
func (t *Task) Table() warehaul.TableMeta {
	return t.table
}

// AddAction inserts a fresh action at progress new. Adding an action that
// is already present resets it; the planner only adds each action once.
func (t *Task) AddAction(action warehaul.Action) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info := &actionInfo{progress: warehaul.ProgressNew}
	if action.IsValidation() {
		info.rowCounts = make(map[string]map[string]int64)
	}
	t.actions[action] = info

	if p := action.Priority(); p < t.pendingFloor {
		t.pendingFloor = p
	}
}

// Actions returns the task's actions sorted by priority.
func (t *Task) Actions() []warehaul.Action {
	t.mu.Lock()
	defer t.mu.Unlock()

	actions := make([]warehaul.Action, 0, len(t.actions))
	for a := range t.actions {
		actions = append(actions, a)
	}
	sort.Slice(actions, func(i, j int) bool {
		if actions[i].Priority() != actions[j].Priority() {
			return actions[i].Priority() < actions[j].Priority()
		}
		return actions[i] < actions[j]
	})
	return actions
}

// Progress returns the aggregate task progress.
func (t *Task) Progress() warehaul.Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// ActionProgress returns the progress of one action and whether the task
// was configured with it.
func (t *Task) ActionProgress(action warehaul.Action) (warehaul.Progress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.actions[action]
	if !ok {
		return "", false
	}
	return info.progress, true
}

// IsReady reports whether an action can be dispatched: the action must be
// configured, still at progress new, and every action of strictly lower
// priority must have succeeded. Actions of equal priority never block each
// other; those ties are intentionally schedulable concurrently. Querying an
// unknown action is a benign false.
func (t *Task) IsReady(action warehaul.Action) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.actions[action]
	if !ok {
		return false
	}
	if info.progress != warehaul.ProgressNew {
		return false
	}
	return action.Priority() <= t.pendingFloor
}

// UpdateProgress stores a new progress for an action and recomputes the
// aggregate task progress. Updating an unknown action is a no-op. The
// returned error only reflects checkpoint-write failures; state transitions
// themselves cannot fail.
func (t *Task) UpdateProgress(ctx context.Context, action warehaul.Action, progress warehaul.Progress) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.actions[action]
	if !ok {
		return nil
	}
	if info.progress == progress {
		return nil
	}

	info.progress = progress
	t.updatedAt = time.Now()
	t.recomputePendingFloor()

	return t.recomputeProgress(ctx, progress)
}

// recomputePendingFloor refreshes the readiness watermark.
// Caller must hold t.mu.
func (t *Task) recomputePendingFloor() {
	floor := maxPriority
	for a, info := range t.actions {
		if info.progress == warehaul.ProgressSucceeded {
			continue
		}
		if p := a.Priority(); p < floor {
			floor = p
		}
	}
	t.pendingFloor = floor
}

// recomputeProgress applies the aggregate transition rules after one action
// moved to actionProgress, firing checkpoint side effects on a change.
// Caller must hold t.mu.
func (t *Task) recomputeProgress(ctx context.Context, actionProgress warehaul.Progress) error {
	if t.progress.IsTerminal() {
		return nil
	}

	changed := false
	switch actionProgress {
	case warehaul.ProgressRunning:
		t.progress = warehaul.ProgressRunning
		changed = true
	case warehaul.ProgressFailed:
		// Fail fast: one failing action fails the whole task.
		t.progress = warehaul.ProgressFailed
		changed = true
	case warehaul.ProgressSucceeded:
		if t.allSucceeded() {
			t.progress = warehaul.ProgressSucceeded
			changed = true
		}
	}

	if !changed {
		return nil
	}

	if t.config.Logger != nil {
		t.config.Logger.WithFields(logrus.Fields{
			"task":     t.name,
			"progress": t.progress,
		}).Info("task progress changed")
	}

	if t.config.Store == nil {
		return nil
	}

	if t.progress == warehaul.ProgressFailed {
		if err := t.config.Store.MarkTableFailed(ctx, t.table.Database, t.table.Table); err != nil {
			return fmt.Errorf("failed to mark table %s failed: %w", t.table.Name(), err)
		}
	}

	return t.checkpointPartitions(ctx)
}

// checkpointPartitions pushes per-partition status for partitioned tables
// when the task succeeds, or when it fails specifically because the verify
// action failed. The legacy behavior writes succeeded on both branches;
// StrictVerification makes the failure branch write failed instead.
// Caller must hold t.mu.
func (t *Task) checkpointPartitions(ctx context.Context) error {
	if !t.table.IsPartitioned() {
		return nil
	}

	verifyFailed := false
	if info, ok := t.actions[warehaul.ActionVerify]; ok {
		verifyFailed = info.progress == warehaul.ProgressFailed
	}

	succeeded := t.progress == warehaul.ProgressSucceeded
	failedOnVerify := t.progress == warehaul.ProgressFailed && verifyFailed
	if !succeeded && !failedOnVerify {
		return nil
	}

	status := warehaul.StatusSucceeded
	if failedOnVerify && t.config.StrictVerification {
		status = warehaul.StatusFailed
	}

	values := t.table.PartitionValues()
	if err := t.config.Store.UpdatePartitionStatus(ctx, t.table.Database, t.table.Table, values, status); err != nil {
		return fmt.Errorf("failed to checkpoint partitions of %s: %w", t.table.Name(), err)
	}

	if t.config.Logger != nil {
		for _, v := range values {
			t.config.Logger.WithFields(logrus.Fields{
				"task":      t.name,
				"partition": v,
				"status":    status,
			}).Info("partition checkpointed")
		}
	}

	return nil
}

// allSucceeded reports whether every configured action has succeeded.
// Caller must hold t.mu.
func (t *Task) allSucceeded() bool {
	for _, info := range t.actions {
		if info.progress != warehaul.ProgressSucceeded {
			return false
		}
	}
	return true
}

// SetRowCounts records the per-partition row counts a validation action
// observed for a target table. Setting counts on an unknown action is a
// no-op.
func (t *Task) SetRowCounts(action warehaul.Action, targetTable string, counts map[string]int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.actions[action]
	if !ok {
		return
	}
	if info.rowCounts == nil {
		info.rowCounts = make(map[string]map[string]int64)
	}

	copied := make(map[string]int64, len(counts))
	for k, v := range counts {
		copied[k] = v
	}
	info.rowCounts[targetTable] = copied
}

// RowCounts returns a copy of the row counts a validation action recorded
// for a target table. Returns nil if the action is unknown or recorded
// nothing for the table.
func (t *Task) RowCounts(action warehaul.Action, targetTable string) map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.actions[action]
	if !ok || info.rowCounts == nil {
		return nil
	}
	counts, ok := info.rowCounts[targetTable]
	if !ok {
		return nil
	}

	copied := make(map[string]int64, len(counts))
	for k, v := range counts {
		copied[k] = v
	}
	return copied
}

// UpdatedAt returns the time of the last progress change.
func (t *Task) UpdatedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updatedAt
}
