// Package alerting fans incident lifecycle events out to dashboards.
package alerting

import (
	"kora/internal/logging"
	"kora/internal/ports"
)

// Broadcaster is the transport the fanout delivers through; the websocket hub
// satisfies it.
type Broadcaster interface {
	BroadcastJSON(v any) bool
}

// Fanout delivers alert events to subscribed dashboards. Delivery failures
// are logged and swallowed; they never reach the pipeline.
type Fanout struct {
	broadcaster Broadcaster
}

func NewFanout(b Broadcaster) *Fanout {
	return &Fanout{broadcaster: b}
}

// Push implements ports.AlertSink.
func (f *Fanout) Push(event ports.AlertEvent) {
	log := logging.Component("alerting")
	if f.broadcaster == nil {
		log.Warn().Str("incident_id", event.IncidentID).Msg("no broadcaster configured, alert dropped")
		return
	}
	if !f.broadcaster.BroadcastJSON(event) {
		log.Warn().
			Str("incident_id", event.IncidentID).
			Str("type", string(event.Type)).
			Msg("alert delivery failed")
		return
	}
	log.Info().
		Str("incident_id", event.IncidentID).
		Str("device_id", event.DeviceID).
		Str("severity", event.Severity).
		Str("type", string(event.Type)).
		Msg("alert sent to dashboards")
}
