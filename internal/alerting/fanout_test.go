package alerting

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kora/internal/ports"
)

type recordingBroadcaster struct {
	events []any
	fail   bool
}

func (r *recordingBroadcaster) BroadcastJSON(v any) bool {
	if r.fail {
		return false
	}
	r.events = append(r.events, v)
	return true
}

func TestPushDelivers(t *testing.T) {
	b := &recordingBroadcaster{}
	f := NewFanout(b)

	f.Push(ports.AlertEvent{Type: ports.AlertIncidentDetected, IncidentID: "INC-1", Severity: "medium"})

	assert.Len(t, b.events, 1)
}

func TestPushSwallowsDeliveryFailure(t *testing.T) {
	f := NewFanout(&recordingBroadcaster{fail: true})

	// Must not panic or propagate anything.
	f.Push(ports.AlertEvent{Type: ports.AlertLedgerConfirmed, IncidentID: "INC-2"})
}

func TestPushNilBroadcaster(t *testing.T) {
	f := NewFanout(nil)
	f.Push(ports.AlertEvent{IncidentID: "INC-3"})
}
