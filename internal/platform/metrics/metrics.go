package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the registry.
type Metrics struct {
	CasesCreated   prometheus.Counter
	EventsAppended *prometheus.CounterVec
	IntelAppended  prometheus.Counter
	MirrorPosts    prometheus.Counter
	MirrorFailures *prometheus.CounterVec
	MirrorUnlocks  prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		CasesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "registry_cases_created_total",
			Help: "Total number of cases opened.",
		}),
		EventsAppended: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_audit_events_total",
			Help: "Total audit events appended, by event type.",
		}, []string{"event_type"}),
		IntelAppended: promauto.NewCounter(prometheus.CounterOpts{
			Name: "registry_intel_records_total",
			Help: "Total intel records appended.",
		}),
		MirrorPosts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "registry_mirror_posts_total",
			Help: "Total successful mirror thread posts.",
		}),
		MirrorFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_mirror_failures_total",
			Help: "Total failed mirror operations, by failure kind.",
		}, []string{"kind"}),
		MirrorUnlocks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "registry_mirror_unlock_cycles_total",
			Help: "Total unlock/post/relock cycles performed against mirror threads.",
		}),
	}
}
