package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/warehaul/warehaul"
)

var statusCmd = &cobra.Command{
	Use:   "status <database> <table>",
	Short: "Show the persisted migration state of a table",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		database, table := args[0], args[1]

		metaStore, closeStore, err := openStore(cfg.Store)
		if err != nil {
			return err
		}
		if closeStore != nil {
			defer func() { _ = closeStore() }()
		}

		ctx := cmd.Context()
		state, err := metaStore.GetTableState(ctx, database, table)
		if err != nil {
			return err
		}

		fmt.Printf("table:    %s.%s\n", state.Database, state.Table)
		fmt.Printf("status:   %s\n", state.Status)
		fmt.Printf("attempts: %d\n", state.AttemptTimes)
		if !state.LastSuccess.IsZero() {
			fmt.Printf("last ok:  %s\n", state.LastSuccess.Format("2006-01-02 15:04:05"))
		}

		if !state.IsPartitioned {
			return nil
		}

		partitions, err := metaStore.ListPartitionStates(ctx, database, table)
		if err != nil {
			return err
		}

		fmt.Printf("partitions (%d):\n", len(partitions))
		for _, p := range partitions {
			marker := " "
			if p.Status == warehaul.StatusFailed {
				marker = "!"
			}
			fmt.Printf("  %s %-30s %-10s attempts=%d\n",
				marker, strings.Join(p.Values, warehaul.PartitionKeySeparator), p.Status, p.AttemptTimes)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
