package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "scheduler.work_batch_size")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateScheduler()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateMonitor()...)
	errors = append(errors, c.validateDemo()...)

	return errors
}

// validateScheduler validates the SchedulerConfig
func (c *Config) validateScheduler() []ValidationError {
	var errors []ValidationError

	if c.Scheduler.WorkBatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.work_batch_size",
			Value:   c.Scheduler.WorkBatchSize,
			Message: "must be at least 1",
		})
	}

	starvationFields := []struct {
		field string
		value int
	}{
		{"scheduler.max_highest_starvation", c.Scheduler.MaxHighestStarvation},
		{"scheduler.max_high_starvation", c.Scheduler.MaxHighStarvation},
		{"scheduler.max_normal_starvation", c.Scheduler.MaxNormalStarvation},
		{"scheduler.max_low_starvation", c.Scheduler.MaxLowStarvation},
		{"scheduler.max_delayed_starvation_tasks", c.Scheduler.MaxDelayedStarvationTasks},
	}
	for _, f := range starvationFields {
		if f.value < 0 {
			errors = append(errors, ValidationError{
				Field:   f.field,
				Value:   f.value,
				Message: "must be non-negative",
			})
		}
	}

	if c.Scheduler.ReclaimIntervalSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.reclaim_interval_seconds",
			Value:   c.Scheduler.ReclaimIntervalSeconds,
			Message: "must be non-negative (0 disables sweeps)",
		})
	}

	if c.Scheduler.TaskSamplingRate < 0 || c.Scheduler.TaskSamplingRate > 1 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.task_sampling_rate",
			Value:   c.Scheduler.TaskSamplingRate,
			Message: "must be between 0 and 1",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be non-negative (0 disables rotation)",
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateMonitor validates the MonitorConfig
func (c *Config) validateMonitor() []ValidationError {
	var errors []ValidationError

	if c.Monitor.RefreshMs < 16 {
		errors = append(errors, ValidationError{
			Field:   "monitor.refresh_ms",
			Value:   c.Monitor.RefreshMs,
			Message: "must be at least 16 (around 60 fps)",
		})
	}

	if c.Monitor.MaxRows < 1 {
		errors = append(errors, ValidationError{
			Field:   "monitor.max_rows",
			Value:   c.Monitor.MaxRows,
			Message: "must be at least 1",
		})
	}

	if c.Monitor.Filter != "" {
		if _, err := glob.Compile(c.Monitor.Filter); err != nil {
			errors = append(errors, ValidationError{
				Field:   "monitor.filter",
				Value:   c.Monitor.Filter,
				Message: fmt.Sprintf("invalid glob pattern: %v", err),
			})
		}
	}

	return errors
}

// validateDemo validates the DemoConfig
func (c *Config) validateDemo() []ValidationError {
	var errors []ValidationError

	if c.Demo.Producers < 1 {
		errors = append(errors, ValidationError{
			Field:   "demo.producers",
			Value:   c.Demo.Producers,
			Message: "must be at least 1",
		})
	}

	if c.Demo.TasksPerProducer < 0 {
		errors = append(errors, ValidationError{
			Field:   "demo.tasks_per_producer",
			Value:   c.Demo.TasksPerProducer,
			Message: "must be non-negative",
		})
	}

	if c.Demo.DelayedFraction < 0 || c.Demo.DelayedFraction > 1 {
		errors = append(errors, ValidationError{
			Field:   "demo.delayed_fraction",
			Value:   c.Demo.DelayedFraction,
			Message: "must be between 0 and 1",
		})
	}

	if c.Demo.MaxDelayMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "demo.max_delay_ms",
			Value:   c.Demo.MaxDelayMs,
			Message: "must be non-negative",
		})
	}

	return errors
}
