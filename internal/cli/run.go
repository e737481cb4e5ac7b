package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gosuri/uiprogress"
	"github.com/spf13/cobra"
	"github.com/warehaul/warehaul"
	"github.com/warehaul/warehaul/engine"
	"github.com/warehaul/warehaul/lifecycle"
	"github.com/warehaul/warehaul/metrics"
	"github.com/warehaul/warehaul/planner"
	"github.com/warehaul/warehaul/scheduler"
	"github.com/warehaul/warehaul/store"
	"github.com/warehaul/warehaul/task"
)

var (
	simulateDelay time.Duration
	noProgressBar bool
	failedOnly    bool
)

var runCmd = &cobra.Command{
	Use:   "run <job-file>",
	Short: "Plan and run a migration job",
	Long: `Plans the job's tables into tasks and drives them to completion.

Engines run in simulation: every action succeeds after an optional delay
and both sides report matching row counts. Real warehouse engines plug in
through the engine.Engine interface.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := loadJob(args[0])
		if err != nil {
			return err
		}
		actions, err := j.jobActions()
		if err != nil {
			return err
		}

		metaStore, closeStore, err := openStore(cfg.Store)
		if err != nil {
			return err
		}
		if closeStore != nil {
			defer func() { _ = closeStore() }()
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		if cfg.Metrics.Enabled {
			server := metrics.NewServer(metrics.ServerConfig{Addr: cfg.Metrics.Addr, Logger: log})
			server.Start()
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				_ = server.Shutdown(shutdownCtx)
			}()
		}

		var tables []warehaul.TableMeta
		for _, t := range j.Tables {
			meta := t.tableMeta()
			if err := metaStore.RegisterTable(ctx, meta, store.TableConfig{PartitionGroupSize: t.GroupSize}); err != nil {
				return err
			}

			// Selective retry: restrict each partitioned table to the
			// partitions whose last attempt failed.
			if failedOnly && meta.IsPartitioned() {
				failedParts, err := metaStore.ListFailedPartitions(ctx, meta.Database, meta.Table)
				if err != nil {
					return err
				}
				if len(failedParts) == 0 {
					log.WithField("table", meta.Name()).Info("no failed partitions, skipping")
					continue
				}
				meta.Partitions = nil
				for _, values := range failedParts {
					meta.Partitions = append(meta.Partitions, warehaul.PartitionMeta{Values: values})
				}
			}

			tables = append(tables, meta)
		}
		if len(tables) == 0 {
			fmt.Println("nothing to migrate")
			return nil
		}

		collector := metrics.NewCollector(jobMetricsLabel(tables))

		p := planner.New(planner.Config{
			Store:              metaStore,
			Logger:             log,
			StrictVerification: cfg.Scheduler.StrictVerification,
		})
		tasks, err := p.Plan(ctx, tables, actions)
		if err != nil {
			return err
		}
		collector.IncTasksPlanned(len(tasks))

		manager := lifecycle.New(lifecycle.Config{
			Store:             metaStore,
			HeartbeatInterval: cfg.Scheduler.HeartbeatInterval,
			Logger:            log,
			Collector:         collector,
		})
		if _, err := manager.Register(ctx); err != nil {
			return err
		}
		go func() {
			if err := manager.StartHeartbeat(ctx); err != nil {
				log.WithError(err).Error("heartbeat loop ended")
			}
		}()

		sim := &engine.Simulator{Delay: simulateDelay}
		s := scheduler.New(scheduler.Config{
			Engines: map[warehaul.EngineKind]engine.Engine{
				warehaul.EngineSource:      sim,
				warehaul.EngineDestination: sim,
				warehaul.EngineValidation:  sim,
			},
			Workers: map[warehaul.EngineKind]int{
				warehaul.EngineSource:      cfg.Scheduler.SourceWorkers,
				warehaul.EngineDestination: cfg.Scheduler.DestinationWorkers,
				warehaul.EngineValidation:  cfg.Scheduler.ValidationWorkers,
			},
			Store:        metaStore,
			PollInterval: cfg.Scheduler.PollInterval,
			Logger:       log,
			Collector:    collector,
		})

		stopBar := func() {}
		if !noProgressBar {
			stopBar = startProgressBar(ctx, tasks)
		}

		runErr := s.Run(ctx, tasks)
		cancel()
		stopBar()

		finishCtx, finishCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer finishCancel()
		if err := manager.Finish(finishCtx); err != nil {
			log.WithError(err).Warn("failed to finish run")
		}

		if runErr != nil {
			return runErr
		}

		failed := 0
		for _, t := range tasks {
			if t.Progress() == warehaul.ProgressFailed {
				failed++
			}
		}
		fmt.Printf("%d tasks finished, %d failed\n", len(tasks), failed)
		if failed > 0 {
			return fmt.Errorf("%d of %d tasks failed", failed, len(tasks))
		}
		return nil
	},
}

// jobMetricsLabel derives the database label for the job's metrics. A job
// spanning several databases gets a composite label so no database claims
// the whole job's counts.
func jobMetricsLabel(tables []warehaul.TableMeta) string {
	seen := make(map[string]bool, len(tables))
	var names []string
	for _, t := range tables {
		if seen[t.Database] {
			continue
		}
		seen[t.Database] = true
		names = append(names, t.Database)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// startProgressBar renders terminal task completion while the scheduler
// runs. The returned func stops rendering.
func startProgressBar(ctx context.Context, tasks []*task.Task) func() {
	uiprogress.Start()
	bar := uiprogress.AddBar(len(tasks)).AppendCompleted().PrependElapsed()
	bar.PrependFunc(func(b *uiprogress.Bar) string {
		return fmt.Sprintf("tasks %d/%d", b.Current(), len(tasks))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			finished := 0
			for _, t := range tasks {
				if t.Progress().IsTerminal() {
					finished++
				}
			}
			_ = bar.Set(finished)
			if finished == len(tasks) {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		<-done
		uiprogress.Stop()
	}
}

func init() {
	runCmd.Flags().DurationVar(&simulateDelay, "simulate-delay", 0, "per-action delay of the simulated engines")
	runCmd.Flags().BoolVar(&noProgressBar, "no-progress", false, "disable the progress bar")
	runCmd.Flags().BoolVar(&failedOnly, "failed-only", false, "re-migrate only partitions whose last attempt failed")
	rootCmd.AddCommand(runCmd)
}
