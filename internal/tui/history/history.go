// Package history browses stored runs in a table.
package history

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"volley/internal/storage"
	"volley/internal/tui/styles"
)

type Model struct {
	Entries []storage.Entry
	Table   table.Model

	// Selected is set when the user picks a run with enter.
	Selected *storage.Entry

	Width  int
	Height int
}

func NewModel(entries []storage.Entry) Model {
	columns := []table.Column{
		{Title: "Time", Width: 20},
		{Title: "ID", Width: 10},
		{Title: "URL", Width: 36},
		{Title: "Workers", Width: 8},
		{Title: "Success", Width: 10},
		{Title: "Pct (ms)", Width: 14},
		{Title: "Timed out", Width: 9},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(min(len(entries)+1, 15)),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.ColorBorder).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.ColorPrimary)

	s.Selected = s.Selected.
		Foreground(styles.ColorBg).
		Background(styles.ColorPrimary).
		Bold(true)

	t.SetStyles(s)
	t.SetRows(Rows(entries))

	return Model{Entries: entries, Table: t}
}

// Rows formats entries as table rows, in the given order.
func Rows(entries []storage.Entry) []table.Row {
	rows := make([]table.Row, len(entries))
	for i, e := range entries {
		id := e.ID
		if len(id) > 8 {
			id = id[:8]
		}
		timedOut := ""
		if e.TimedOut {
			timedOut = "yes"
		}
		rows[i] = table.Row{
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			id,
			e.URL,
			fmt.Sprintf("%d", e.Workers),
			fmt.Sprintf("%d/%d", e.Success, e.Total),
			fmt.Sprintf("p%g %.1f", e.Rank, float64(e.Latency.Microseconds())/1000),
			timedOut,
		}
	}
	return rows
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Table.SetWidth(msg.Width - 4)
		m.Table.SetHeight(max(3, msg.Height-6))

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "enter":
			if idx := m.Table.Cursor(); idx >= 0 && idx < len(m.Entries) {
				e := m.Entries[idx]
				m.Selected = &e
				return m, tea.Quit
			}
		}
	}

	m.Table, cmd = m.Table.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	s := strings.Builder{}
	s.WriteString(styles.Title.Render("📜 Past Bursts"))
	s.WriteString("\n\n")

	if len(m.Entries) == 0 {
		s.WriteString(styles.Subtle.Render("No history found.\nRun a burst to generate data."))
	} else {
		s.WriteString(styles.Box.Render(m.Table.View()))
	}
	s.WriteString("\n\n")
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Center,
		styles.RenderKey("enter", "show"), "  ", styles.RenderKey("q", "quit")))
	return s.String()
}
