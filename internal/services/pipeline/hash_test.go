package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kora/internal/domain"
)

func baseIncident() *domain.Incident {
	return &domain.Incident{
		ID:        "INC-1000-D1-aaaa",
		DeviceID:  "D1",
		Type:      domain.IncidentExcessiveSpeeding,
		Timestamp: 1000,
		Location:  domain.Location{Latitude: 48.1, Longitude: 11.5},
		Sensor:    domain.SensorSnapshot{SpeedKMH: 220, Threshold: 180, Excess: 40},
	}
}

func TestContentHashDeterministic(t *testing.T) {
	a := ContentHash(baseIncident())
	b := ContentHash(baseIncident())
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestContentHashCoversImmutableFields(t *testing.T) {
	base := ContentHash(baseIncident())

	speed := baseIncident()
	speed.Sensor.SpeedKMH = 221
	assert.NotEqual(t, base, ContentHash(speed))

	device := baseIncident()
	device.DeviceID = "D2"
	assert.NotEqual(t, base, ContentHash(device))

	loc := baseIncident()
	loc.Location.Latitude = 48.2
	assert.NotEqual(t, base, ContentHash(loc))
}

func TestContentHashIgnoresMutableLedgerFields(t *testing.T) {
	base := ContentHash(baseIncident())

	ref := "0xabc"
	mutated := baseIncident()
	mutated.LedgerStatus = domain.LedgerConfirmed
	mutated.LedgerReference = &ref
	assert.Equal(t, base, ContentHash(mutated))
}
