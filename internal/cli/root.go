// Package cli implements the warehaul command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/warehaul/warehaul/internal/config"
)

var (
	cfgFile string
	cfg     config.Config
	log     = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "warehaul",
	Short: "Bulk warehouse table migration scheduler",
	Long: `warehaul plans and drives bulk table migrations between warehouses:
it splits partitioned tables into batched tasks, schedules their actions by
priority, verifies row counts on both sides, and checkpoints progress so
failed partitions can be retried selectively.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}

		level, err := logrus.ParseLevel(cfg.Log.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Log.Level, err)
		}
		log.SetLevel(level)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./warehaul.yaml)")
}
