// Package metrics exposes Prometheus collectors for command calls on both sides of
// the dsg_local_commands channel.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	clientCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dsg",
			Subsystem: "client",
			Name:      "calls_total",
			Help:      "Command calls by obj_type and outcome.",
		},
		[]string{"obj_type", "outcome"},
	)
	clientDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dsg",
			Subsystem: "client",
			Name:      "call_duration_seconds",
			Help:      "Command call duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"obj_type", "outcome"},
	)
	routerObjects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dsg",
			Subsystem: "router",
			Name:      "objects_total",
			Help:      "Posted objects handled by the router.",
		},
		[]string{"req_path", "status"},
	)
	routerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dsg",
			Subsystem: "router",
			Name:      "object_duration_seconds",
			Help:      "Router handling time in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"req_path", "status"},
	)
)

// Register adds the collectors to the default registry. Safe to call repeatedly.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(clientCalls, clientDuration, routerObjects, routerDuration)
	})
}

// RecordCall records one finished client call. outcome is "ok" or an error kind.
func RecordCall(objType, outcome string, duration time.Duration) {
	Register()
	clientCalls.WithLabelValues(objType, outcome).Inc()
	clientDuration.WithLabelValues(objType, outcome).Observe(duration.Seconds())
}

// RecordRouted records one post handled by the router.
func RecordRouted(reqPath, status string, duration time.Duration) {
	Register()
	routerObjects.WithLabelValues(reqPath, status).Inc()
	routerDuration.WithLabelValues(reqPath, status).Observe(duration.Seconds())
}
