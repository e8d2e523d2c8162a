package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jfoltran/pgbackupctl/internal/monitor"
)

const sparklineChars = "▁▂▃▄▅▆▇█"

// OccupancyHistory keeps a rolling window of slots-in-use for sparkline
// rendering.
type OccupancyHistory struct {
	values []int
	cap    int
}

// NewOccupancyHistory creates a history buffer with the given capacity.
func NewOccupancyHistory(cap int) *OccupancyHistory {
	return &OccupancyHistory{
		values: make([]int, 0, cap),
		cap:    cap,
	}
}

// Push adds a new slots-in-use reading.
func (h *OccupancyHistory) Push(n int) {
	if len(h.values) >= h.cap {
		copy(h.values, h.values[1:])
		h.values = h.values[:len(h.values)-1]
	}
	h.values = append(h.values, n)
}

// Sparkline returns a sparkline string representation.
func (h *OccupancyHistory) Sparkline(width int) string {
	if len(h.values) == 0 {
		return strings.Repeat("▁", width)
	}

	vals := h.values
	if len(vals) > width {
		vals = vals[len(vals)-width:]
	}

	maxVal := 0
	for _, v := range vals {
		if v > maxVal {
			maxVal = v
		}
	}
	if maxVal == 0 {
		maxVal = 1
	}

	runes := []rune(sparklineChars)
	var b strings.Builder
	for _, v := range vals {
		idx := int(float64(v) / float64(maxVal) * float64(len(runes)-1))
		if idx >= len(runes) {
			idx = len(runes) - 1
		}
		b.WriteRune(runes[idx])
	}

	for b.Len() < width {
		b.WriteRune(runes[0])
	}

	return b.String()
}

// RenderOccupancy renders the slots-in-use display with a sparkline
// history and the current basebackups-running count.
func RenderOccupancy(snap monitor.Snapshot, history *OccupancyHistory, width int) string {
	history.Push(snap.SlotsInUse)

	occColor := lipgloss.Color("#10B981") // green
	if snap.SlotsMax > 0 {
		ratio := float64(snap.SlotsInUse) / float64(snap.SlotsMax)
		if ratio > 0.9 {
			occColor = lipgloss.Color("#EF4444") // red
		} else if ratio > 0.6 {
			occColor = lipgloss.Color("#F59E0B") // amber
		}
	}

	occStyle := lipgloss.NewStyle().Foreground(occColor)

	sparkWidth := width - 30
	if sparkWidth < 10 {
		sparkWidth = 10
	}

	spark := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Render(history.Sparkline(sparkWidth))

	return fmt.Sprintf("  Slots in use: %s  %s",
		occStyle.Render(fmt.Sprintf("%d/%d", snap.SlotsInUse, snap.SlotsMax)),
		spark)
}
