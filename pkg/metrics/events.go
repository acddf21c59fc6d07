package metrics

import (
	"github.com/paperdrop/paperdrop/pkg/events"
)

// NewEventCounter creates an event-bus subscriber that counts every event by
// type, or nil when metrics are disabled. Subscribe it to the bus to get a
// paperdrop_events_total series per event name.
func NewEventCounter() events.Subscriber {
	if !IsEnabled() || newPrometheusEventCounter == nil {
		return nil
	}
	return newPrometheusEventCounter()
}

var newPrometheusEventCounter func() events.Subscriber

// RegisterEventCounterConstructor is called by pkg/metrics/prometheus during
// package initialization.
func RegisterEventCounterConstructor(constructor func() events.Subscriber) {
	newPrometheusEventCounter = constructor
}
