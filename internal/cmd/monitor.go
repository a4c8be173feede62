package cmd

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/strand/internal/config"
	"github.com/Iron-Ham/strand/internal/sched"
	"github.com/Iron-Ham/strand/internal/tui"
	"github.com/gobwas/glob"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch scheduler queues in a live terminal UI",
	Long: `Run the demo workload with continuous producers and watch queue
depths, priorities, and fence state update live.

The workload keeps posting until the monitor exits.

Examples:
  # Watch all queues
  strand monitor

  # Only show io queues, refresh faster
  strand monitor --filter "io*" --refresh 100ms`,
	RunE: runMonitor,
}

var (
	monitorFilter  string
	monitorRefresh time.Duration
)

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().StringVar(&monitorFilter, "filter", "", "Glob restricting which queues are shown")
	monitorCmd.Flags().DurationVar(&monitorRefresh, "refresh", 0, "Snapshot refresh interval (default from config)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("monitor requires a terminal")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if monitorFilter != "" {
		cfg.Monitor.Filter = monitorFilter
	}
	if monitorRefresh > 0 {
		cfg.Monitor.RefreshMs = int(monitorRefresh / time.Millisecond)
	}

	var filter glob.Glob
	if cfg.Monitor.Filter != "" {
		filter, err = glob.Compile(cfg.Monitor.Filter)
		if err != nil {
			return fmt.Errorf("invalid --filter pattern: %w", err)
		}
	}

	// The monitor owns stdout, so logs must go to a file or nowhere.
	logCfg := cfg.Logging
	if logCfg.Dir == "" {
		logCfg.Enabled = false
	}
	log, err := buildLogger(&logCfg)
	if err != nil {
		return err
	}
	defer log.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	s, runner := newScheduler(cfg, log)

	// The run loop and the workload live on background goroutines; the UI
	// keeps the main goroutine.
	runnerDone := make(chan error, 1)
	go func() {
		runnerDone <- runner.Run(ctx, func(s *sched.Scheduler) {
			queues := make([]*sched.TaskQueue, 0, len(demoSpecs))
			for _, spec := range demoSpecs {
				queues = append(queues, s.CreateTaskQueue(spec))
			}
			go produceForever(ctx, queues, cfg.Demo)
		})
	}()

	uiErr := tui.RunMonitor(s, tui.MonitorOptions{
		Refresh: cfg.Monitor.RefreshInterval(),
		Filter:  filter,
		MaxRows: cfg.Monitor.MaxRows,
	})

	cancel()
	<-runnerDone
	return uiErr
}

// produceForever keeps a steady stream of work flowing until ctx is
// canceled, so the monitor has live numbers to show.
func produceForever(ctx context.Context, queues []*sched.TaskQueue, cfg config.DemoConfig) {
	var posted, executed atomic.Uint64
	for ctx.Err() == nil {
		produce(ctx, queues, cfg, &posted, &executed, func() {})
	}
}
