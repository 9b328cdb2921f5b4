// Package tui shows a burst as it happens.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"volley/internal/control"
	"volley/internal/stats"
	"volley/internal/tui/components"
	"volley/internal/tui/styles"
)

const (
	tickInterval = 100 * time.Millisecond
)

type tickMsg time.Time

type doneMsg struct {
	report *control.Report
	err    error
}

// Phase of a burst as seen from the live counters.
type Phase string

const (
	PhaseSpawning Phase = "SPAWNING"
	PhaseFired    Phase = "FIRED"
	PhaseDone     Phase = "DONE"
)

type Model struct {
	Config control.Config
	Live   *stats.Live

	Progress progress.Model
	Spinner  spinner.Model
	Rate     components.Sparkline

	Snapshot stats.Snapshot
	Report   *control.Report
	Err      error

	lastDone int64
	cancel   context.CancelFunc
	Quitting bool
	Width    int
}

func NewModel(cfg control.Config, live *stats.Live, cancel context.CancelFunc) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Active

	return Model{
		Config:   cfg,
		Live:     live,
		Progress: progress.New(progress.WithDefaultGradient()),
		Spinner:  sp,
		Rate:     components.NewSparkline(40, "Completions / tick", styles.Subtle),
		cancel:   cancel,
	}
}

func (m Model) Phase() Phase {
	switch {
	case m.Report != nil || m.Err != nil:
		return PhaseDone
	case m.Snapshot.Fired:
		return PhaseFired
	default:
		return PhaseSpawning
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.Spinner.Tick, tickCmd())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Progress.Width = max(10, msg.Width-4)
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.Quitting = true
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}

	case tickMsg:
		if m.Phase() == PhaseDone {
			return m, nil
		}
		m.Snapshot = m.Live.Snapshot()
		if m.Snapshot.Fired {
			m.Rate.Add(m.Snapshot.Done - m.lastDone)
			m.lastDone = m.Snapshot.Done
		}
		return m, tea.Batch(m.Progress.SetPercent(m.percent()), tickCmd())

	case doneMsg:
		m.Report = msg.report
		m.Err = msg.err
		m.Snapshot = m.Live.Snapshot()
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		progressModel, cmd := m.Progress.Update(msg)
		m.Progress = progressModel.(progress.Model)
		return m, cmd
	}

	return m, nil
}

// percent tracks the ready barrier before fire and completions after.
func (m Model) percent() float64 {
	s := m.Snapshot
	if s.Workers == 0 {
		return 0
	}
	if !s.Fired {
		return float64(s.Ready) / float64(s.Workers)
	}
	return float64(s.Done) / float64(s.Workers)
}

func (m Model) View() string {
	if m.Quitting && m.Phase() != PhaseDone {
		return "Interrupted.\n"
	}

	s := strings.Builder{}
	s.WriteString(styles.Title.Render("🚀 Volley Burst"))
	s.WriteString("\n")
	s.WriteString(fmt.Sprintf("URL: %s %s\n", strings.ToUpper(m.Config.Method), m.Config.URL))
	s.WriteString(styles.Subtle.Render(fmt.Sprintf("Timeout: %s per request, %s overall", m.Config.RequestTimeout, m.Config.OverallTimeout)))
	s.WriteString("\n\n")

	snap := m.Snapshot
	phase := string(m.Phase())
	if m.Phase() != PhaseDone {
		phase = m.Spinner.View() + " " + phase
	}

	leftCol := fmt.Sprintf(
		"Phase:   %s\nReady:   %d/%d\nDone:    %d/%d\nErrors:  %.2f%%",
		styles.Active.Render(phase),
		snap.Ready, snap.Workers,
		snap.Done, snap.Workers,
		snap.ErrorRate(),
	)
	rightCol := fmt.Sprintf(
		"Latency\n  Mean: %s\n  P50:  %s\n  P99:  %s\n  Max:  %s",
		snap.Mean.Round(time.Millisecond), snap.P50.Round(time.Millisecond), snap.P99.Round(time.Millisecond), snap.Max.Round(time.Millisecond),
	)

	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		lipgloss.NewStyle().Width(30).Render(leftCol),
		lipgloss.NewStyle().Width(30).Render(rightCol),
	))
	s.WriteString("\n\n")
	s.WriteString(m.Rate.View())
	s.WriteString("\n\n")
	s.WriteString(m.Progress.View())
	s.WriteString("\n")

	if m.Phase() == PhaseDone {
		if m.Err != nil {
			s.WriteString(styles.Error.Render(m.Err.Error()))
			s.WriteString("\n")
		}
		return s.String()
	}
	s.WriteString(styles.RenderKey("q", "abort"))
	s.WriteString("\n")
	return s.String()
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Run prepares and dispatches one burst behind the live view. Aborting the
// view interrupts the burst; the partial report is still returned.
func Run(ctx context.Context, c *control.Controller, out io.Writer) (*control.Report, error) {
	tasks, err := c.Prepare()
	if err != nil {
		return nil, err
	}

	live := stats.NewLive(len(tasks))
	c.Observer = live

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(c.Config, live, cancel), tea.WithOutput(out), tea.WithContext(ctx))

	results := make(chan doneMsg, 1)
	go func() {
		r, err := c.Dispatch(ctx, tasks)
		d := doneMsg{report: r, err: err}
		results <- d
		p.Send(d)
	}()

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		cancel()
		<-results
		return nil, fmt.Errorf("live view: %w", err)
	}

	cancel()
	d := <-results
	return d.report, d.err
}
