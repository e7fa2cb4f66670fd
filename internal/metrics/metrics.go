package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	recordSyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recmirror",
			Name:      "record_syncs_total",
			Help:      "Finished record syncs by result.",
		},
		[]string{"result"},
	)

	activeSyncs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "recmirror",
			Name:      "active_syncs",
			Help:      "Record syncs currently registered with the orchestrator.",
		},
	)

	bulkSessions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recmirror",
			Name:      "bulk_sessions_total",
			Help:      "Bulk sync sessions started.",
		},
	)

	cronRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "recmirror",
			Name:      "cron_runs_total",
			Help:      "Cron job executions by final status.",
		},
		[]string{"status"},
	)

	cascadeSyncs = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "recmirror",
			Name:      "cascade_syncs_total",
			Help:      "Syncs scheduled by cascade propagation.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(recordSyncs, activeSyncs, bulkSessions, cronRuns, cascadeSyncs)
	})
}

// IncRecordSync counts one finished record sync with the given result label.
func IncRecordSync(result string) {
	recordSyncs.WithLabelValues(result).Inc()
}

// SetActiveSyncs updates the active-task gauge.
func SetActiveSyncs(n int) {
	activeSyncs.Set(float64(n))
}

// IncBulkSession counts a started bulk session.
func IncBulkSession() {
	bulkSessions.Inc()
}

// IncCronRun counts a finished cron execution by status.
func IncCronRun(status string) {
	cronRuns.WithLabelValues(status).Inc()
}

// IncCascadeSync counts a cascade-scheduled sync.
func IncCascadeSync() {
	cascadeSyncs.Inc()
}
