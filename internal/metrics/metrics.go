// Package metrics defines the Prometheus collectors shared by the
// dispatch engine and node registry, following the same promauto
// construction style as the teacher's internal/escrow/metrics.go.
// TaskCacheOps is registered, but the task cache never increments it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector this process registers. A process
// constructs exactly one via New() and shares it by reference.
type Metrics struct {
	DispatchAttempts  *prometheus.CounterVec
	DispatchFanoutErr *prometheus.CounterVec
	RegistrySize      prometheus.Gauge
	RegistrySwept     prometheus.Counter
	TaskCacheOps      *prometheus.CounterVec
}

// New constructs and registers every collector against the default
// registry. Process entry points (cmd/hub, cmd/node) call this once.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer constructs every collector against reg. Tests pass a
// fresh prometheus.NewRegistry() so repeated construction within one test
// binary doesn't collide on the global default registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DispatchAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zkprover_dispatch_attempts_total",
			Help: "GET /node dispatch attempts, labeled by outcome.",
		}, []string{"outcome"}),
		DispatchFanoutErr: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zkprover_dispatch_fanout_errors_total",
			Help: "Per-node /push_task fan-out errors, labeled by node id.",
		}, []string{"node_id"}),
		RegistrySize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "zkprover_registry_nodes",
			Help: "Current number of tracked prover nodes.",
		}),
		RegistrySwept: factory.NewCounter(prometheus.CounterOpts{
			Name: "zkprover_registry_swept_total",
			Help: "Total number of nodes removed by inactivity sweeps.",
		}),
		TaskCacheOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zkprover_task_cache_ops_total",
			Help: "Task cache operations, labeled by op and result.",
		}, []string{"op", "result"}),
	}
}

// NewForTest builds a Metrics instance backed by an isolated registry, for
// use in package tests that construct multiple instances in one process.
func NewForTest() *Metrics {
	return NewWithRegisterer(prometheus.NewRegistry())
}
