package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jfoltran/pgbackupctl/internal/monitor"
)

var headerValueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF"))

// RenderHeader renders the top status bar: slot occupancy, basebackups in
// progress, and the time of the last poll.
func RenderHeader(snap monitor.Snapshot, width int) string {
	left := fmt.Sprintf("  Slots: %s    Basebackups in progress: %s",
		headerValueStyle.Render(fmt.Sprintf("%d/%d", snap.SlotsInUse, snap.SlotsMax)),
		headerValueStyle.Render(fmt.Sprintf("%d", snap.BasebackupsRunning)))

	right := fmt.Sprintf("Updated: %s  ", headerValueStyle.Render(snap.Timestamp.Format("15:04:05")))

	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}

	return left + strings.Repeat(" ", gap) + right
}
