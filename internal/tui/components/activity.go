package components

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/jfoltran/pgbackupctl/internal/monitor"
)

var activityValueStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF"))

// RenderActivity renders the idle/active slot split and the total number
// of child sub-slots (WAL streamers, basebackup streamers) in flight.
func RenderActivity(snap monitor.Snapshot, width int) string {
	idle := snap.SlotsMax - snap.SlotsInUse
	children := 0
	for _, s := range snap.Slots {
		children += len(s.Children)
	}

	return fmt.Sprintf("  Active: %s  |  Idle: %s  |  Children in flight: %s",
		activityValueStyle.Render(fmt.Sprintf("%d", snap.SlotsInUse)),
		activityValueStyle.Render(fmt.Sprintf("%d", idle)),
		activityValueStyle.Render(fmt.Sprintf("%d", children)))
}
