package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/warehaul/warehaul"
	"github.com/warehaul/warehaul/planner"
	"github.com/warehaul/warehaul/store"
)

var planCmd = &cobra.Command{
	Use:   "plan <job-file>",
	Short: "Show the tasks a job would generate without running them",
	Args:  cobra.ExactArgs(1),
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

		ctx := cmd.Context()
		var tables []warehaul.TableMeta
		for _, t := range j.Tables {
			meta := t.tableMeta()
			if err := metaStore.RegisterTable(ctx, meta, store.TableConfig{PartitionGroupSize: t.GroupSize}); err != nil {
				return err
			}
			tables = append(tables, meta)
		}

		p := planner.New(planner.Config{
			Store:  metaStore,
			Logger: log,
		})
		tasks, err := p.Plan(ctx, tables, actions)
		if err != nil {
			return err
		}

		for _, t := range tasks {
			fmt.Printf("%-40s actions=%d partitions=%d\n",
				t.Name(), len(t.Actions()), len(t.Table().Partitions))
		}
		fmt.Printf("%d tasks planned\n", len(tasks))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
}
