// Package scheduler drives tasks to completion: it repeatedly scans for
// ready actions, dispatches them to the engine matching their affinity, and
// feeds the observed outcome back into the owning task.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warehaul/warehaul"
	"github.com/warehaul/warehaul/engine"
	"github.com/warehaul/warehaul/metrics"
	"github.com/warehaul/warehaul/reconcile"
	"github.com/warehaul/warehaul/store"
	"github.com/warehaul/warehaul/task"
)

// Config holds configuration for the Scheduler.
type Config struct {
	// Engines maps each engine affinity to its execution engine. An action
	// whose affinity has no engine configured fails the run.
	Engines map[warehaul.EngineKind]engine.Engine

	// Workers bounds the number of concurrently executing actions per
	// engine (default: 4 per engine).
	Workers map[warehaul.EngineKind]int

	// Store receives table-level success once every task of a table reached
	// a terminal progress (optional).
	Store store.MetaStore

	// PollInterval is how often to rescan tasks for ready actions
	// (default: 500ms).
	PollInterval time.Duration

	// Logger is for observability (optional).
	Logger logrus.FieldLogger

	// Collector is for metrics (optional).
	Collector *metrics.Collector
}

const defaultWorkers = 4

// Scheduler runs a planned set of tasks until every task reaches a terminal
// progress.
type Scheduler struct {
	config     Config
	reconciler *reconcile.Reconciler
	semaphores map[warehaul.EngineKind]chan struct{}
}

// New creates a new Scheduler with the given configuration.
// Applies default values for worker counts and poll interval if zero.
func New(cfg Config) *Scheduler {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}

	semaphores := make(map[warehaul.EngineKind]chan struct{}, len(cfg.Engines))
	for kind := range cfg.Engines {
		workers := cfg.Workers[kind]
		if workers <= 0 {
			workers = defaultWorkers
		}
		semaphores[kind] = make(chan struct{}, workers)
	}

	return &Scheduler{
		config:     cfg,
		reconciler: reconcile.New(cfg.Logger),
		semaphores: semaphores,
	}
}

// tableTally tracks terminal outcomes across the tasks of one table.
type tableTally struct {
	total     int
	done      int
	succeeded int
}

// Run drives the tasks until all of them are terminal, then returns nil.
// Returns the context error on cancellation, or warehaul.ErrNoEngine if a
// ready action's affinity has no configured engine. Same-tier ready actions
// of one task and ready actions across tasks dispatch concurrently, bounded
// per engine by the worker count.
func (s *Scheduler) Run(ctx context.Context, tasks []*task.Task) error {
	tallies := make(map[string]*tableTally)
	for _, t := range tasks {
		key := t.Table().Name()
		if tallies[key] == nil {
			tallies[key] = &tableTally{}
		}
		tallies[key].total++
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	finished := make(map[*task.Task]bool)
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		allDone := true
		for _, t := range tasks {
			progress := t.Progress()
			if progress.IsTerminal() {
				if !finished[t] {
					finished[t] = true
					if err := s.finishTask(ctx, t, progress, tallies[t.Table().Name()]); err != nil {
						return err
					}
				}
				continue
			}

			allDone = false
			for _, action := range t.Actions() {
				if !t.IsReady(action) {
					continue
				}
				if err := s.dispatch(ctx, &wg, t, action); err != nil {
					return err
				}
			}
		}

		if allDone {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// dispatch marks the action running and hands it to its engine's worker
// pool. Marking running before the worker starts keeps the action out of
// subsequent ready scans.
func (s *Scheduler) dispatch(ctx context.Context, wg *sync.WaitGroup, t *task.Task, action warehaul.Action) error {
	kind := action.Engine()
	eng, ok := s.config.Engines[kind]
	if !ok && action != warehaul.ActionVerify {
		// Verification runs in-process on recorded counts; everything else
		// needs a real engine.
		return fmt.Errorf("action %s needs engine %s: %w", action, kind, warehaul.ErrNoEngine)
	}

	if err := t.UpdateProgress(ctx, action, warehaul.ProgressRunning); err != nil {
		return err
	}

	if s.config.Logger != nil {
		s.config.Logger.WithFields(logrus.Fields{
			"task":   t.Name(),
			"action": action,
			"engine": kind,
		}).Debug("action dispatched")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()

		if sem := s.semaphores[kind]; sem != nil {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				s.reportProgress(t, action, warehaul.ProgressFailed)
				return
			}
			defer func() { <-sem }()
		}

		s.execute(ctx, eng, t, action, kind)
	}()

	return nil
}

// execute runs one action to completion on its engine and reports the
// terminal outcome back into the task.
func (s *Scheduler) execute(ctx context.Context, eng engine.Engine, t *task.Task, action warehaul.Action, kind warehaul.EngineKind) {
	if s.config.Collector != nil {
		s.config.Collector.AddRunningActions(string(kind), 1)
		defer s.config.Collector.AddRunningActions(string(kind), -1)
	}

	started := time.Now()
	var err error
	switch {
	case action.IsValidation():
		var counts map[string]int64
		counts, err = eng.CountRows(ctx, t)
		if err == nil {
			t.SetRowCounts(action, t.Table().Name(), counts)
		}
	case action == warehaul.ActionVerify:
		err = s.verify(t)
	default:
		err = eng.Execute(ctx, action, t)
	}

	progress := warehaul.ProgressSucceeded
	result := "succeeded"
	if err != nil {
		progress = warehaul.ProgressFailed
		result = "failed"
		if s.config.Logger != nil {
			s.config.Logger.WithFields(logrus.Fields{
				"task":   t.Name(),
				"action": action,
			}).WithError(err).Warn("action failed")
		}
	}

	if s.config.Collector != nil {
		s.config.Collector.IncActionsExecuted(string(action), result)
		s.config.Collector.ObserveActionDuration(string(action), time.Since(started).Seconds())
	}

	s.reportProgress(t, action, progress)
}

// reportProgress feeds a terminal action outcome into the task. Checkpoint
// write failures are logged; they do not change the in-memory transition.
func (s *Scheduler) reportProgress(t *task.Task, action warehaul.Action, progress warehaul.Progress) {
	// The run context may already be cancelled; checkpoint writes get their
	// own brief deadline so terminal state still lands in the store.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := t.UpdateProgress(ctx, action, progress); err != nil && s.config.Logger != nil {
		s.config.Logger.WithFields(logrus.Fields{
			"task":   t.Name(),
			"action": action,
		}).WithError(err).Error("failed to checkpoint progress")
	}
}

// verify reconciles the task's partitions against the recorded row counts.
// The action fails iff any partition of the group failed reconciliation.
// Non-partitioned tables compare the single whole-table count keyed by the
// empty partition key.
func (s *Scheduler) verify(t *task.Task) error {
	result := s.reconciler.Partitions(t)

	if s.config.Collector != nil {
		s.config.Collector.IncPartitionsReconciled("succeeded", len(result.Succeeded))
		s.config.Collector.IncPartitionsReconciled("failed", len(result.Failed))
	}

	if t.Table().IsPartitioned() {
		if len(result.Failed) > 0 {
			return fmt.Errorf("%d of %d partitions failed row count verification",
				len(result.Failed), len(result.Failed)+len(result.Succeeded))
		}
		return nil
	}

	table := t.Table().Name()
	source := t.RowCounts(warehaul.ActionValidateSource, table)
	dest := t.RowCounts(warehaul.ActionValidateDest, table)
	sourceCount, sourceOK := source[""]
	destCount, destOK := dest[""]
	if !sourceOK || !destOK || sourceCount != destCount {
		return fmt.Errorf("table %s row counts disagree: source %d dest %d", table, sourceCount, destCount)
	}
	return nil
}

// finishTask records a task's terminal outcome and, when it is the last
// task of its table, pushes the table-level success status to the store.
// Table-level failure is already written by the task itself.
func (s *Scheduler) finishTask(ctx context.Context, t *task.Task, progress warehaul.Progress, tally *tableTally) error {
	tally.done++
	if progress == warehaul.ProgressSucceeded {
		tally.succeeded++
	}

	if s.config.Collector != nil {
		s.config.Collector.IncTasksCompleted(string(progress))
	}
	if s.config.Logger != nil {
		s.config.Logger.WithFields(logrus.Fields{
			"task":     t.Name(),
			"progress": progress,
		}).Info("task finished")
	}

	if tally.done == tally.total && tally.succeeded == tally.total && s.config.Store != nil {
		if err := s.config.Store.UpdateTableStatus(ctx, t.Database(), t.TableName(), warehaul.StatusSucceeded); err != nil {
			return fmt.Errorf("failed to mark table %s succeeded: %w", t.Table().Name(), err)
		}
	}

	return nil
}
