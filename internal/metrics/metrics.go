// Package metrics collects and exposes Prometheus metrics for the
// care-coordination core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector registers and records the service's metrics.
type Collector struct {
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	eventsQueued     *prometheus.CounterVec
	eventsDelivered  *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec
	dosesLogged      *prometheus.CounterVec
	shiftTransitions *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "carecircle_cache_hits_total",
			Help: "Shift projection cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "carecircle_cache_misses_total",
			Help: "Shift projection cache misses.",
		}),
		eventsQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carecircle_events_queued_total",
			Help: "Domain events appended to the outbox.",
		}, []string{"kind"}),
		eventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carecircle_events_delivered_total",
			Help: "Outbox events delivered through all sinks.",
		}, []string{"kind"}),
		deliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carecircle_event_delivery_failures_total",
			Help: "Sink delivery attempts that exhausted their retries.",
		}, []string{"kind", "sink"}),
		dosesLogged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carecircle_doses_logged_total",
			Help: "Medication administration logs by status.",
		}, []string{"status"}),
		shiftTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carecircle_shift_transitions_total",
			Help: "Shift state machine transitions by target status.",
		}, []string{"to"}),
	}

	reg.MustRegister(
		c.cacheHits,
		c.cacheMisses,
		c.eventsQueued,
		c.eventsDelivered,
		c.deliveryFailures,
		c.dosesLogged,
		c.shiftTransitions,
	)

	return c
}

func (c *Collector) RecordCacheHit()  { c.cacheHits.Inc() }
func (c *Collector) RecordCacheMiss() { c.cacheMisses.Inc() }

func (c *Collector) RecordEventQueued(kind string) {
	c.eventsQueued.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordEventDelivered(kind string) {
	c.eventsDelivered.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordDeliveryFailure(kind, sink string) {
	c.deliveryFailures.WithLabelValues(kind, sink).Inc()
}

func (c *Collector) RecordDoseLogged(status string) {
	c.dosesLogged.WithLabelValues(status).Inc()
}

func (c *Collector) RecordShiftTransition(to string) {
	c.shiftTransitions.WithLabelValues(to).Inc()
}

// Handler returns the HTTP handler serving the registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
