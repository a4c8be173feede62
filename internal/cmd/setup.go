package cmd

import (
	"github.com/Iron-Ham/strand/internal/config"
	"github.com/Iron-Ham/strand/internal/event"
	"github.com/Iron-Ham/strand/internal/logging"
	"github.com/Iron-Ham/strand/internal/sched"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// buildLogger constructs the logger described by the logging config.
func buildLogger(cfg *config.LoggingConfig) (*logging.Logger, error) {
	if !cfg.Enabled {
		return logging.NopLogger(), nil
	}
	if cfg.Dir == "" {
		return logging.NewLogger("", cfg.Level)
	}
	return logging.NewLoggerWithRotation(cfg.Dir, cfg.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	})
}

// watchConfig logs config file changes while a long-running command is up.
// Viper re-reads the file itself; commands pick up new values on their next
// config.Load.
func watchConfig(log *logging.Logger) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		log.Info("config file changed", "file", e.Name, "op", e.Op.String())
	})
	viper.WatchConfig()
}

// newScheduler builds a scheduler and run-loop driver from the config,
// wiring the logger and an event bus that forwards queue lifecycle events
// to the log.
func newScheduler(cfg *config.Config, log *logging.Logger) (*sched.Scheduler, *sched.Runner) {
	bus := event.NewBus()
	bus.Subscribe("queue.created", func(e event.Event) {
		if ev, ok := e.(event.QueueCreatedEvent); ok {
			log.Info("queue created", "queue", ev.Queue, "priority", ev.Priority)
		}
	})
	bus.Subscribe("queue.shutdown", func(e event.Event) {
		if ev, ok := e.(event.QueueShutdownEvent); ok {
			log.Info("queue shut down", "queue", ev.Queue)
		}
	})
	bus.Subscribe("task.timing", func(e event.Event) {
		if ev, ok := e.(event.TaskTimingEvent); ok {
			log.Debug("task sampled",
				"queue", ev.Queue,
				"posted_from", ev.PostedFrom,
				"duration", ev.Duration().String())
		}
	})

	s := sched.New(
		sched.WithLogger(log),
		sched.WithBus(bus),
		sched.WithSelectorConfig(selectorConfig(&cfg.Scheduler)),
		sched.WithReclaimInterval(cfg.Scheduler.ReclaimInterval()),
		sched.WithTaskSampling(cfg.Scheduler.TaskSamplingRate),
		sched.WithDebugChecks(cfg.Scheduler.DebugChecks),
	)
	return s, sched.NewRunner(s, cfg.Scheduler.WorkBatchSize)
}

// selectorConfig maps the config's starvation knobs onto the selector
// tuning, keeping built-in defaults for any knob left at zero.
func selectorConfig(cfg *config.SchedulerConfig) sched.SelectorConfig {
	sc := sched.DefaultSelectorConfig()
	if cfg.MaxHighestStarvation > 0 {
		sc.MaxHighestPriorityStarvationScore = cfg.MaxHighestStarvation
	}
	if cfg.MaxHighStarvation > 0 {
		sc.MaxHighPriorityStarvationScore = cfg.MaxHighStarvation
	}
	if cfg.MaxNormalStarvation > 0 {
		sc.MaxNormalPriorityStarvationScore = cfg.MaxNormalStarvation
	}
	if cfg.MaxLowStarvation > 0 {
		sc.MaxLowPriorityStarvationScore = cfg.MaxLowStarvation
	}
	if cfg.MaxDelayedStarvationTasks > 0 {
		sc.MaxDelayedStarvationTasks = cfg.MaxDelayedStarvationTasks
	}
	return sc
}
