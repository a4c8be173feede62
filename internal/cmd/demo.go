package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Iron-Ham/strand/internal/config"
	"github.com/Iron-Ham/strand/internal/sched"
	"github.com/gobwas/glob"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a demo workload through the scheduler",
	Long: `Run a synthetic workload: several producer goroutines post immediate
and delayed tasks onto prioritized queues while a single consumer
goroutine executes them in scheduling order.

Examples:
  # Default workload (4 producers, 1000 tasks each)
  strand demo

  # Heavier run with a time limit
  strand demo --producers 16 --tasks 10000 --duration 30s

  # Only post to the io queues
  strand demo --filter "io*"`,
	RunE: runDemo,
}

var (
	demoDuration  time.Duration
	demoProducers int
	demoTasks     int
	demoFilter    string
)

func init() {
	rootCmd.AddCommand(demoCmd)

	demoCmd.Flags().DurationVar(&demoDuration, "duration", 0, "Stop after this long even if work remains (0 = run to completion)")
	demoCmd.Flags().IntVar(&demoProducers, "producers", 0, "Number of producer goroutines (default from config)")
	demoCmd.Flags().IntVar(&demoTasks, "tasks", 0, "Tasks per producer (default from config)")
	demoCmd.Flags().StringVar(&demoFilter, "filter", "", "Glob restricting which queues receive work (e.g. \"io*\")")
}

// demoSpecs lists the queues the demo workload runs on, one per priority
// band below control.
var demoSpecs = []sched.Spec{
	{Name: "input", Priority: sched.PriorityHighest},
	{Name: "io", Priority: sched.PriorityHigh},
	{Name: "render", Priority: sched.PriorityNormal},
	{Name: "background", Priority: sched.PriorityLow},
	{Name: "cleanup", Priority: sched.PriorityBestEffort},
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if demoProducers > 0 {
		cfg.Demo.Producers = demoProducers
	}
	if demoTasks > 0 {
		cfg.Demo.TasksPerProducer = demoTasks
	}

	specs, err := filteredSpecs(demoFilter)
	if err != nil {
		return err
	}

	log, err := buildLogger(&cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Close()
	watchConfig(log)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if demoDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, demoDuration)
		defer cancel()
	}
	// The workload cancels this once everything posted has executed.
	ctx, done := context.WithCancel(ctx)
	defer done()

	_, runner := newScheduler(cfg, log)

	var posted, executed atomic.Uint64
	start := time.Now()

	err = runner.Run(ctx, func(s *sched.Scheduler) {
		queues := make([]*sched.TaskQueue, 0, len(specs))
		for _, spec := range specs {
			queues = append(queues, s.CreateTaskQueue(spec))
		}
		go produce(ctx, queues, cfg.Demo, &posted, &executed, done)
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	elapsed := time.Since(start)
	fmt.Printf("posted %d tasks, executed %d in %v (%.0f tasks/s)\n",
		posted.Load(), executed.Load(), elapsed.Round(time.Millisecond),
		float64(executed.Load())/elapsed.Seconds())
	return nil
}

// filteredSpecs applies the --filter glob to the demo queue set.
func filteredSpecs(pattern string) ([]sched.Spec, error) {
	if pattern == "" {
		return demoSpecs, nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid --filter pattern: %w", err)
	}
	var specs []sched.Spec
	for _, spec := range demoSpecs {
		if g.Match(spec.Name) {
			specs = append(specs, spec)
		}
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("--filter %q matches no demo queue", pattern)
	}
	return specs, nil
}

// produce runs the producer pool, waits for the scheduler to drain what was
// posted, then cancels the run loop via done.
func produce(ctx context.Context, queues []*sched.TaskQueue, cfg config.DemoConfig, posted, executed *atomic.Uint64, done context.CancelFunc) {
	defer done()

	p := pool.New().WithMaxGoroutines(cfg.Producers)
	for i := 0; i < cfg.Producers; i++ {
		p.Go(func() {
			rng := rand.New(rand.NewSource(time.Now().UnixNano()))
			for n := 0; n < cfg.TasksPerProducer; n++ {
				if ctx.Err() != nil {
					return
				}
				q := queues[rng.Intn(len(queues))]
				task := func() { executed.Add(1) }

				var ok bool
				if rng.Float64() < cfg.DelayedFraction && cfg.MaxDelayMs > 0 {
					delay := time.Duration(rng.Intn(cfg.MaxDelayMs)+1) * time.Millisecond
					ok = q.PostDelayedTask(task, delay)
				} else {
					ok = q.PostTask(task)
				}
				if ok {
					posted.Add(1)
				}
			}
		})
	}
	p.Wait()

	for ctx.Err() == nil && executed.Load() < posted.Load() {
		time.Sleep(10 * time.Millisecond)
	}
}
