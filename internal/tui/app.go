package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jfoltran/pgbackupctl/internal/monitor"
	"github.com/jfoltran/pgbackupctl/internal/tui/components"
)

// snapshotMsg carries a new monitor.Snapshot into the Bubble Tea update
// loop.
type snapshotMsg monitor.Snapshot

// Model is the main Bubble Tea model for the pgbackupctl launcher
// monitor.
type Model struct {
	stream   <-chan monitor.Snapshot
	snapshot monitor.Snapshot
	history  *components.OccupancyHistory

	width  int
	height int
	ready  bool
}

// NewModel creates a TUI model that reads snapshots from stream until it
// closes or the user quits.
func NewModel(stream <-chan monitor.Snapshot) Model {
	return Model{
		stream:  stream,
		history: components.NewOccupancyHistory(60),
	}
}

// Init starts the subscription to snapshot updates.
func (m Model) Init() tea.Cmd {
	return waitForSnapshot(m.stream)
}

func waitForSnapshot(stream <-chan monitor.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-stream
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true

	case snapshotMsg:
		m.snapshot = monitor.Snapshot(msg)
		return m, waitForSnapshot(m.stream)
	}

	return m, nil
}

// View renders the full dashboard.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}

	w := m.width
	snap := m.snapshot

	var sections []string

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(colorPrimary).
		Width(w).
		Padding(0, 1).
		Render(" pgbackupctl monitor")
	sections = append(sections, title)

	headerBox := boxStyle.Width(w - 2).Render(components.RenderHeader(snap, w-4))
	sections = append(sections, headerBox)

	progressBox := boxStyle.Width(w - 2).Render(components.RenderProgress(snap, w-4))
	sections = append(sections, progressBox)

	tableHeight := m.height - 14
	if tableHeight < 3 {
		tableHeight = 3
	}
	tableContent := components.RenderTables(snap, w-4, tableHeight)
	tableBox := boxStyle.Width(w - 2).Render(tableContent)
	sections = append(sections, tableBox)

	occBox := boxStyle.Width(w - 2).Render(components.RenderOccupancy(snap, m.history, w-4))
	sections = append(sections, occBox)

	activityBox := boxStyle.Width(w - 2).Render(components.RenderActivity(snap, w-4))
	sections = append(sections, activityBox)

	help := helpStyle.Render("  q: quit")
	sections = append(sections, help)

	return strings.Join(sections, "\n")
}

// Run starts the TUI in fullscreen mode, consuming snapshots from stream
// until it closes or the user quits.
func Run(stream <-chan monitor.Snapshot) error {
	model := NewModel(stream)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	if err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
