package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/paperdrop/paperdrop/pkg/events"
	"github.com/paperdrop/paperdrop/pkg/metrics"
)

func init() {
	metrics.RegisterEventCounterConstructor(NewEventCounter)
}

// eventCounter counts every bus event by name.
type eventCounter struct {
	eventsTotal *prometheus.CounterVec
}

// NewEventCounter creates a Prometheus-backed event bus subscriber.
// Returns nil if metrics are not enabled.
func NewEventCounter() events.Subscriber {
	if !metrics.IsEnabled() {
		return nil
	}

	return &eventCounter{
		eventsTotal: promauto.With(metrics.GetRegistry()).NewCounterVec(
			prometheus.CounterOpts{
				Name: "paperdrop_events_total",
				Help: "Total gateway events by event name",
			},
			[]string{"event"},
		),
	}
}

func (c *eventCounter) HandleEvent(ev events.Event) {
	c.eventsTotal.WithLabelValues(ev.Type.String()).Inc()
}
