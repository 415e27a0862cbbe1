package metrics

import (
	"context"
	"time"

	registration "github.com/goliatone/go-registration"
	"github.com/prometheus/client_golang/prometheus"
)

// Collector counts registration lifecycle events. It is an EventSink so it
// can be attached to the engine with WithEventSink.
type Collector struct {
	events        *prometheus.CounterVec
	purged        prometheus.Counter
	lastCleanup   prometheus.Gauge
	cleanupErrors prometheus.Counter
}

var _ registration.EventSink = (*Collector)(nil)

// NewCollector registers the registration metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "registration_events_total",
			Help: "Total number of committed registration lifecycle events",
		}, []string{"event", "decision"}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "registration_purged_accounts_total",
			Help: "Total number of expired, never activated accounts removed",
		}),
		lastCleanup: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "registration_cleanup_last_run_timestamp_seconds",
			Help: "Unix time of the last successful cleanup run",
		}),
		cleanupErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "registration_cleanup_errors_total",
			Help: "Total number of failed cleanup runs",
		}),
	}

	reg.MustRegister(c.events, c.purged, c.lastCleanup, c.cleanupErrors)
	return c
}

// Record implements registration.EventSink.
func (c *Collector) Record(_ context.Context, event registration.LifecycleEvent) error {
	c.events.WithLabelValues(string(event.Type), string(event.Decision)).Inc()
	return nil
}

// RecordCleanup records the outcome of a cleanup run.
func (c *Collector) RecordCleanup(removed int, at time.Time, err error) {
	if err != nil {
		c.cleanupErrors.Inc()
		return
	}
	c.purged.Add(float64(removed))
	c.lastCleanup.Set(float64(at.Unix()))
}
