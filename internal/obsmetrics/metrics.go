// Package obsmetrics collects Prometheus metrics for the replica's own
// operations (mutations, queries, peer reconciliation) and exposes them,
// along with a health endpoint, over a small gorilla/mux admin server.
package obsmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every counter/histogram/gauge the replica updates as it
// runs, registered against its own prometheus.Registry so an embedder can
// run several replicas in one process without collector name clashes.
type Metrics struct {
	Registry *prometheus.Registry

	MutationsTotal   *prometheus.CounterVec
	QueriesTotal     *prometheus.CounterVec
	MutationLatency  *prometheus.HistogramVec
	SignatureChecks  *prometheus.CounterVec
	PeerConnections  prometheus.Gauge
	RoomsSynced      *prometheus.CounterVec
	DailyLogRecomputes prometheus.Counter
	StorageNodes     prometheus.Gauge
}

// New builds and registers a fresh metrics set.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		MutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ringdb",
			Name:      "mutations_total",
			Help:      "Total mutate/delete calls, by entity and result.",
		}, []string{"entity", "result"}),
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ringdb",
			Name:      "queries_total",
			Help:      "Total query calls, by entity.",
		}, []string{"entity"}),
		MutationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ringdb",
			Name:      "mutation_latency_seconds",
			Help:      "Latency of mutate/delete calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"entity"}),
		SignatureChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ringdb",
			Name:      "signature_checks_total",
			Help:      "Ed25519 signature verifications performed by the verification pool, by result.",
		}, []string{"result"}),
		PeerConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ringdb",
			Name:      "peer_connections",
			Help:      "Currently registered peer connections.",
		}),
		RoomsSynced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ringdb",
			Name:      "rooms_synced_total",
			Help:      "Completed room reconciliations, by room.",
		}, []string{"room"}),
		DailyLogRecomputes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ringdb",
			Name:      "daily_log_recomputes_total",
			Help:      "Daily-log recompute passes run.",
		}),
		StorageNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ringdb",
			Name:      "storage_nodes",
			Help:      "Nodes currently stored (excluding system entities).",
		}),
	}

	registry.MustRegister(
		m.MutationsTotal, m.QueriesTotal, m.MutationLatency, m.SignatureChecks,
		m.PeerConnections, m.RoomsSynced, m.DailyLogRecomputes, m.StorageNodes,
	)
	return m
}

// ObserveMutation records one mutate/delete call's outcome and latency.
func (m *Metrics) ObserveMutation(entity string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.MutationsTotal.WithLabelValues(entity, result).Inc()
	m.MutationLatency.WithLabelValues(entity).Observe(time.Since(start).Seconds())
}

// ObserveQuery records one query call.
func (m *Metrics) ObserveQuery(entity string) {
	m.QueriesTotal.WithLabelValues(entity).Inc()
}

// ObserveSignatureCheck records one verification pool result.
func (m *Metrics) ObserveSignatureCheck(ok bool) {
	result := "valid"
	if !ok {
		result = "invalid"
	}
	m.SignatureChecks.WithLabelValues(result).Inc()
}

// ObserveRoomSynced records one completed reconciliation for room.
func (m *Metrics) ObserveRoomSynced(room string) {
	m.RoomsSynced.WithLabelValues(room).Inc()
}
