package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jfoltran/pgbackupctl/internal/monitor"
)

var (
	progressFullStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	progressEmptyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#374151"))
)

// RenderProgress renders the worker-segment occupancy bar.
func RenderProgress(snap monitor.Snapshot, width int) string {
	if snap.SlotsMax == 0 {
		return "  No worker segment attached"
	}

	pct := float64(snap.SlotsInUse) / float64(snap.SlotsMax) * 100

	barWidth := width - 40
	if barWidth < 10 {
		barWidth = 10
	}

	filled := int(float64(barWidth) * pct / 100)
	if filled > barWidth {
		filled = barWidth
	}
	empty := barWidth - filled

	bar := progressFullStyle.Render(strings.Repeat("█", filled)) +
		progressEmptyStyle.Render(strings.Repeat("░", empty))

	return fmt.Sprintf("  Occupancy: %s %5.1f%% (%d/%d slots)",
		bar, pct, snap.SlotsInUse, snap.SlotsMax)
}
