// Package metrics holds the Prometheus instruments of the sync service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "searchsync"

// Metrics is safe to use through a nil pointer; every recorder is then a no-op.
type Metrics struct {
	Events          *prometheus.CounterVec
	Reconciles      *prometheus.CounterVec
	IndexRequests   *prometheus.CounterVec
	PendingDeletion prometheus.Gauge
	ReindexPages    *prometheus.CounterVec
}

// New creates the instruments and registers them on reg, or on the default
// registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "CMS notifications received, by kind",
		}, []string{"kind"}),
		Reconciles: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciles_total",
			Help:      "Page reconciles, by outcome",
		}, []string{"outcome"}),
		IndexRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_requests_total",
			Help:      "Requests sent to the search index, by operation and result",
		}, []string{"op", "result"}),
		PendingDeletion: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_deletions",
			Help:      "Fragment deletions waiting for their post-delete notification",
		}),
		ReindexPages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reindex_pages_total",
			Help:      "Pages processed by bulk reindex, by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) Event(kind string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(kind).Inc()
}

func (m *Metrics) Reconcile(outcome string) {
	if m == nil {
		return
	}
	m.Reconciles.WithLabelValues(outcome).Inc()
}

// IndexRequest counts one index call; err decides the result label.
func (m *Metrics) IndexRequest(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.IndexRequests.WithLabelValues(op, result).Inc()
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.PendingDeletion.Set(float64(n))
}

func (m *Metrics) ReindexPage(result string) {
	if m == nil {
		return
	}
	m.ReindexPages.WithLabelValues(result).Inc()
}
