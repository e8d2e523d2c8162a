package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jfoltran/pgbackupctl/internal/monitor"
)

var (
	tblHeaderStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3B82F6"))
	tblBasebackupStyl = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	tblStreamStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6"))
	tblOtherStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// RenderTables renders the occupied-worker-slot table.
func RenderTables(snap monitor.Snapshot, width, maxRows int) string {
	if len(snap.Slots) == 0 {
		return "  No active workers"
	}

	var b strings.Builder

	header := fmt.Sprintf("  %-8s %-24s %-28s %-10s %s", "PID", "Archive", "Command", "Elapsed", "Children")
	b.WriteString(tblHeaderStyle.Render(header))
	b.WriteByte('\n')

	shown := len(snap.Slots)
	if maxRows > 0 && shown > maxRows {
		shown = maxRows
	}

	for i := 0; i < shown; i++ {
		s := snap.Slots[i]
		tag := s.CmdTag
		if len(tag) > 26 {
			tag = tag[:23] + "..."
		}

		var tagStr string
		switch {
		case strings.Contains(tag, "STREAMING"):
			tagStr = tblStreamStyle.Render(tag)
		case s.BasebackupInUse:
			tagStr = tblBasebackupStyl.Render(tag)
		default:
			tagStr = tblOtherStyle.Render(tag)
		}

		children := fmt.Sprintf("%d", len(s.Children))

		line := fmt.Sprintf("  %-8d %-24s %-28s %-10s %s",
			s.PID, truncate(s.ArchiveName, 24), tagStr, formatElapsed(s.ElapsedSec), children)
		b.WriteString(line)
		if i < shown-1 {
			b.WriteByte('\n')
		}
	}

	if len(snap.Slots) > shown {
		b.WriteByte('\n')
		b.WriteString(fmt.Sprintf("  ... and %d more workers", len(snap.Slots)-shown))
	}

	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func formatElapsed(seconds float64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", int(seconds))
	}
	if seconds < 3600 {
		return fmt.Sprintf("%dm%02ds", int(seconds)/60, int(seconds)%60)
	}
	return fmt.Sprintf("%dh%02dm", int(seconds)/3600, (int(seconds)%3600)/60)
}
