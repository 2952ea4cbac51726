package pipeline

import (
	"github.com/goccy/go-json"
	"golang.org/x/crypto/sha3"

	"kora/internal/domain"
)

// hashPayload fixes the set and order of fields committed to the ledger. Only
// immutable incident fields participate; the ledger sees a digest, never the
// raw telemetry, so the chain carries an integrity proof without the data.
type hashPayload struct {
	DeviceID     string          `json:"device_id"`
	IncidentType string          `json:"incident_type"`
	Timestamp    int64           `json:"timestamp"`
	SpeedKMH     float64         `json:"speed_kmh"`
	Location     domain.Location `json:"location"`
}

// ContentHash returns the keccak256 digest of an incident's immutable fields.
func ContentHash(inc *domain.Incident) []byte {
	payload, err := json.Marshal(hashPayload{
		DeviceID:     inc.DeviceID,
		IncidentType: string(inc.Type),
		Timestamp:    inc.Timestamp,
		SpeedKMH:     inc.Sensor.SpeedKMH,
		Location:     inc.Location,
	})
	if err != nil {
		// Marshalling a plain struct of scalars cannot fail.
		panic(err)
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(payload)
	return h.Sum(nil)
}
