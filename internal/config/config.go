package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete strand configuration
type Config struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Demo      DemoConfig      `mapstructure:"demo"`
}

// SchedulerConfig controls task selection and run loop behavior
type SchedulerConfig struct {
	// WorkBatchSize is the number of tasks executed per run loop iteration
	// before yielding (default: 1)
	WorkBatchSize int `mapstructure:"work_batch_size"`

	// Starvation limits: how many times a more urgent priority level may be
	// chosen over a runnable lower level before the lower level is forced to
	// run. 0 uses the built-in default for that level.
	MaxHighestStarvation int `mapstructure:"max_highest_starvation"`
	MaxHighStarvation    int `mapstructure:"max_high_starvation"`
	MaxNormalStarvation  int `mapstructure:"max_normal_starvation"`
	MaxLowStarvation     int `mapstructure:"max_low_starvation"`

	// MaxDelayedStarvationTasks is how many delayed tasks may run in a row
	// while immediate work of the same priority is waiting (default: 3)
	MaxDelayedStarvationTasks int `mapstructure:"max_delayed_starvation_tasks"`

	// ReclaimIntervalSeconds is how often canceled tasks are swept from
	// queues, in seconds (default: 30, 0 disables periodic sweeps)
	ReclaimIntervalSeconds int `mapstructure:"reclaim_interval_seconds"`

	// TaskSamplingRate is the fraction of tasks reported to task time
	// observers, between 0 and 1 (default: 0.01)
	TaskSamplingRate float64 `mapstructure:"task_sampling_rate"`

	// DebugChecks enables goroutine affinity assertions on scheduler
	// entry points. Useful in tests; adds per-call overhead (default: false)
	DebugChecks bool `mapstructure:"debug_checks"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether debug logging is enabled (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir is the directory log files are written to.
	// Empty means log to stderr.
	Dir string `mapstructure:"dir"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
	// Compress gzips rotated log files (default: false)
	Compress bool `mapstructure:"compress"`
}

// MonitorConfig controls the terminal monitor UI
type MonitorConfig struct {
	// RefreshMs is how often the monitor refreshes queue snapshots,
	// in milliseconds (default: 250)
	RefreshMs int `mapstructure:"refresh_ms"`
	// Filter is a glob pattern restricting which queues are shown.
	// Empty shows all queues.
	Filter string `mapstructure:"filter"`
	// MaxRows limits how many queues the monitor table displays (default: 50)
	MaxRows int `mapstructure:"max_rows"`
}

// DemoConfig controls the demo workload generator
type DemoConfig struct {
	// Producers is the number of concurrent posting goroutines (default: 4)
	Producers int `mapstructure:"producers"`
	// TasksPerProducer is how many tasks each producer posts (default: 1000)
	TasksPerProducer int `mapstructure:"tasks_per_producer"`
	// DelayedFraction is the fraction of posted tasks that carry a delay,
	// between 0 and 1 (default: 0.2)
	DelayedFraction float64 `mapstructure:"delayed_fraction"`
	// MaxDelayMs bounds the random delay applied to delayed tasks,
	// in milliseconds (default: 100)
	MaxDelayMs int `mapstructure:"max_delay_ms"`
}

// ReclaimInterval returns the sweep interval as a time.Duration (0 means disabled)
func (c *SchedulerConfig) ReclaimInterval() time.Duration {
	return time.Duration(c.ReclaimIntervalSeconds) * time.Second
}

// RefreshInterval returns the monitor refresh interval as a time.Duration
func (c *MonitorConfig) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshMs) * time.Millisecond
}

// MaxDelay returns the demo delay bound as a time.Duration
func (c *DemoConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMs) * time.Millisecond
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			WorkBatchSize:             1,
			MaxHighestStarvation:      3,
			MaxHighStarvation:         5,
			MaxNormalStarvation:       7,
			MaxLowStarvation:          25,
			MaxDelayedStarvationTasks: 3,
			ReclaimIntervalSeconds:    30,
			TaskSamplingRate:          0.01,
			DebugChecks:               false,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			Dir:        "", // Empty means stderr
			MaxSizeMB:  10,
			MaxBackups: 3,
			Compress:   false,
		},
		Monitor: MonitorConfig{
			RefreshMs: 250,
			Filter:    "",
			MaxRows:   50,
		},
		Demo: DemoConfig{
			Producers:        4,
			TasksPerProducer: 1000,
			DelayedFraction:  0.2,
			MaxDelayMs:       100,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Scheduler defaults
	viper.SetDefault("scheduler.work_batch_size", defaults.Scheduler.WorkBatchSize)
	viper.SetDefault("scheduler.max_highest_starvation", defaults.Scheduler.MaxHighestStarvation)
	viper.SetDefault("scheduler.max_high_starvation", defaults.Scheduler.MaxHighStarvation)
	viper.SetDefault("scheduler.max_normal_starvation", defaults.Scheduler.MaxNormalStarvation)
	viper.SetDefault("scheduler.max_low_starvation", defaults.Scheduler.MaxLowStarvation)
	viper.SetDefault("scheduler.max_delayed_starvation_tasks", defaults.Scheduler.MaxDelayedStarvationTasks)
	viper.SetDefault("scheduler.reclaim_interval_seconds", defaults.Scheduler.ReclaimIntervalSeconds)
	viper.SetDefault("scheduler.task_sampling_rate", defaults.Scheduler.TaskSamplingRate)
	viper.SetDefault("scheduler.debug_checks", defaults.Scheduler.DebugChecks)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// Monitor defaults
	viper.SetDefault("monitor.refresh_ms", defaults.Monitor.RefreshMs)
	viper.SetDefault("monitor.filter", defaults.Monitor.Filter)
	viper.SetDefault("monitor.max_rows", defaults.Monitor.MaxRows)

	// Demo defaults
	viper.SetDefault("demo.producers", defaults.Demo.Producers)
	viper.SetDefault("demo.tasks_per_producer", defaults.Demo.TasksPerProducer)
	viper.SetDefault("demo.delayed_fraction", defaults.Demo.DelayedFraction)
	viper.SetDefault("demo.max_delay_ms", defaults.Demo.MaxDelayMs)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "strand")
	}
	// Fall back to ~/.config/strand
	home, err := os.UserHomeDir()
	if err != nil {
		return ".strand"
	}
	return filepath.Join(home, ".config", "strand")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
