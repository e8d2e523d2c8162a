package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jfoltran/pgbackupctl/internal/shm"
)

// Metrics exposes the worker-segment occupancy as prometheus gauges, in
// the registerer-scoped style the wider pack's WAL components use for
// their own counters/gauges.
type Metrics struct {
	slotsInUse    prometheus.Gauge
	basebackupsUp prometheus.Gauge
	reapedTotal   prometheus.Counter
}

// NewMetrics registers the launcher's gauges under reg, prefixed
// pgbackupctl_supervisor_.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	reg = prometheus.WrapRegistererWithPrefix("pgbackupctl_supervisor_", reg)
	return &Metrics{
		slotsInUse: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "worker_slots_in_use",
			Help: "Number of occupied worker shared-memory slots.",
		}),
		basebackupsUp: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "basebackups_in_progress",
			Help: "Number of worker slots currently streaming a base backup.",
		}),
		reapedTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "reaped_children_total",
			Help: "Total number of child pids reaped via SIGCHLD.",
		}),
	}
}

// Observe refreshes the gauges from a worker segment snapshot. Call it
// once per launcher main-loop iteration.
func (m *Metrics) Observe(slots []shm.Slot) {
	m.slotsInUse.Set(float64(len(slots)))
	inUse := 0
	for _, s := range slots {
		if s.BasebackupInUse {
			inUse++
		}
	}
	m.basebackupsUp.Set(float64(inUse))
}

// CountReaped increments the reaped-children counter by n.
func (m *Metrics) CountReaped(n int) {
	if n > 0 {
		m.reapedTotal.Add(float64(n))
	}
}
