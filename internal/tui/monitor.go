package tui

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/Iron-Ham/strand/internal/sched"
	"github.com/Iron-Ham/strand/internal/util"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gobwas/glob"
)

// SnapshotProvider supplies the queue state the monitor displays.
// *sched.Scheduler satisfies it.
type SnapshotProvider interface {
	Snapshot() []sched.QueueSnapshot
	TasksRun() uint64
	State() sched.State
}

// MonitorOptions configures the monitor model.
type MonitorOptions struct {
	// Refresh is how often the monitor polls for new snapshots.
	Refresh time.Duration
	// Filter restricts the display to queues whose name matches.
	// Nil shows all queues.
	Filter glob.Glob
	// MaxRows limits how many queues are shown.
	MaxRows int
}

// tickMsg drives the periodic snapshot refresh.
type tickMsg time.Time

// Monitor is a Bubbletea model that renders live queue statistics.
type Monitor struct {
	provider SnapshotProvider
	opts     MonitorOptions

	table    table.Model
	tasksRun uint64
	queues   int
	shown    int
	paused   bool
	width    int
	height   int
}

// NewMonitor creates a monitor model over the given provider.
func NewMonitor(provider SnapshotProvider, opts MonitorOptions) Monitor {
	if opts.Refresh <= 0 {
		opts.Refresh = 250 * time.Millisecond
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = 50
	}

	columns := []table.Column{
		{Title: "Queue", Width: 24},
		{Title: "Priority", Width: 11},
		{Title: "State", Width: 10},
		{Title: "Immediate", Width: 10},
		{Title: "Delayed", Width: 8},
		{Title: "Incoming", Width: 9},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(opts.MaxRows),
	)
	t.SetStyles(tableStyles())

	return Monitor{
		provider: provider,
		opts:     opts,
		table:    t,
	}
}

// Init implements tea.Model.
func (m Monitor) Init() tea.Cmd {
	return m.tick()
}

func (m Monitor) tick() tea.Cmd {
	return tea.Tick(m.opts.Refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "p":
			m.paused = !m.paused
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		// Leave room for the header and footer lines.
		rows := msg.Height - 6
		if rows < 3 {
			rows = 3
		}
		if rows > m.opts.MaxRows {
			rows = m.opts.MaxRows
		}
		m.table.SetHeight(rows)
		return m, nil

	case tickMsg:
		if !m.paused {
			m.refresh()
		}
		return m, m.tick()
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// refresh pulls a fresh snapshot and rebuilds the table rows.
func (m *Monitor) refresh() {
	snaps := m.provider.Snapshot()
	m.tasksRun = m.provider.TasksRun()
	m.queues = len(snaps)

	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].Priority != snaps[j].Priority {
			return snaps[i].Priority < snaps[j].Priority
		}
		return snaps[i].Name < snaps[j].Name
	})

	rows := make([]table.Row, 0, len(snaps))
	for _, snap := range snaps {
		if m.opts.Filter != nil && !m.opts.Filter.Match(snap.Name) {
			continue
		}
		if len(rows) >= m.opts.MaxRows {
			break
		}
		rows = append(rows, table.Row{
			util.TruncateANSI(snap.Name, 24),
			snap.Priority.String(),
			queueStateLabel(snap),
			strconv.Itoa(snap.ImmediateDepth),
			strconv.Itoa(snap.DelayedDepth),
			strconv.Itoa(snap.IncomingDepth),
		})
	}
	m.shown = len(rows)
	m.table.SetRows(rows)
}

// queueStateLabel condenses a snapshot's flags into one short word.
func queueStateLabel(snap sched.QueueSnapshot) string {
	switch {
	case snap.ShutDown:
		return "shutdown"
	case !snap.Enabled:
		return "disabled"
	case snap.Fenced:
		return "fenced"
	default:
		return "active"
	}
}

// View implements tea.Model.
func (m Monitor) View() string {
	header := titleStyle.Render("strand monitor")
	status := statusStyle.Render(fmt.Sprintf(
		"state: %s  queues: %d (showing %d)  tasks run: %d",
		m.provider.State(), m.queues, m.shown, m.tasksRun,
	))
	if m.paused {
		status += "  " + pausedStyle.Render("[paused]")
	}

	help := helpStyle.Render("q: quit  p: pause  ↑/↓: scroll")

	return header + "\n" + status + "\n\n" + baseStyle.Render(m.table.View()) + "\n" + help + "\n"
}

// RunMonitor runs the monitor UI until the user quits.
func RunMonitor(provider SnapshotProvider, opts MonitorOptions) error {
	p := tea.NewProgram(NewMonitor(provider, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
