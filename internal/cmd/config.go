package cmd

import (
	"fmt"

	"github.com/Iron-Ham/strand/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Print the effective configuration after merging defaults, the config
file, and STRAND_* environment variables.`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if file := viper.ConfigFileUsed(); file != "" {
		fmt.Printf("# config file: %s\n", file)
	} else {
		fmt.Printf("# no config file found (looked in %s); showing defaults\n", config.ConfigDir())
	}

	fmt.Printf(`scheduler:
  work_batch_size: %d
  max_highest_starvation: %d
  max_high_starvation: %d
  max_normal_starvation: %d
  max_low_starvation: %d
  max_delayed_starvation_tasks: %d
  reclaim_interval_seconds: %d
  task_sampling_rate: %g
  debug_checks: %t
logging:
  enabled: %t
  level: %s
  dir: %q
  max_size_mb: %d
  max_backups: %d
  compress: %t
monitor:
  refresh_ms: %d
  filter: %q
  max_rows: %d
demo:
  producers: %d
  tasks_per_producer: %d
  delayed_fraction: %g
  max_delay_ms: %d
`,
		cfg.Scheduler.WorkBatchSize,
		cfg.Scheduler.MaxHighestStarvation,
		cfg.Scheduler.MaxHighStarvation,
		cfg.Scheduler.MaxNormalStarvation,
		cfg.Scheduler.MaxLowStarvation,
		cfg.Scheduler.MaxDelayedStarvationTasks,
		cfg.Scheduler.ReclaimIntervalSeconds,
		cfg.Scheduler.TaskSamplingRate,
		cfg.Scheduler.DebugChecks,
		cfg.Logging.Enabled,
		cfg.Logging.Level,
		cfg.Logging.Dir,
		cfg.Logging.MaxSizeMB,
		cfg.Logging.MaxBackups,
		cfg.Logging.Compress,
		cfg.Monitor.RefreshMs,
		cfg.Monitor.Filter,
		cfg.Monitor.MaxRows,
		cfg.Demo.Producers,
		cfg.Demo.TasksPerProducer,
		cfg.Demo.DelayedFraction,
		cfg.Demo.MaxDelayMs,
	)
	return nil
}
