package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// memberMutations counts member writes that reached the database.
	// Labels: op (insert, update, delete, link_self), status (ok, error)
	memberMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "familytree",
		Subsystem: "members",
		Name:      "mutations_total",
		Help:      "Member writes by operation and outcome",
	}, []string{"op", "status"})

	// skippedLinks counts requested links the rules engine did not apply.
	// Labels: reason (slots_full, would_cycle, not_found, duplicate)
	skippedLinks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "familytree",
		Subsystem: "rules",
		Name:      "skipped_links_total",
		Help:      "Relationship links skipped while adding members",
	}, []string{"reason"})

	// layoutDuration measures generation and connector computation.
	layoutDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "familytree",
		Subsystem: "layout",
		Name:      "build_seconds",
		Help:      "Time to build a family layout",
		Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
	})

	// hubSubscribers tracks live change subscriptions across families.
	hubSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "familytree",
		Subsystem: "hub",
		Name:      "subscribers",
		Help:      "Active change hub subscriptions",
	})

	// hubDropped counts change events dropped for slow subscribers.
	hubDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "familytree",
		Subsystem: "hub",
		Name:      "dropped_events_total",
		Help:      "Change events dropped because a subscriber buffer was full",
	})

	// photoCleanups counts photo file removals. Labels: status (ok, error, skipped)
	photoCleanups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "familytree",
		Subsystem: "uploads",
		Name:      "cleanups_total",
		Help:      "Photo files removed after member deletion",
	}, []string{"status"})
)

func observeMutation(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	memberMutations.WithLabelValues(op, status).Inc()
}
