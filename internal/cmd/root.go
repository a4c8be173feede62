// Package cmd implements the strand command line interface.
package cmd

import (
	"strings"

	"github.com/Iron-Ham/strand/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "strand",
	Short: "Single-thread multi-queue task scheduler",
	Long: `Strand runs prioritized task queues on a single goroutine: tasks
posted from any goroutine are sequenced onto one consumer, with
per-queue priorities, fences, delayed tasks, and starvation control.

The CLI hosts a demo workload generator and a live queue monitor.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/strand/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/strand")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("STRAND")
	// Replace dots with underscores for nested keys in env vars
	// e.g., STRAND_SCHEDULER_WORK_BATCH_SIZE for scheduler.work_batch_size
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
