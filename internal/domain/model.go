package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Severity ranks how far a sample's speed exceeded the configured threshold.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IncidentType categorizes an anomaly for downstream dashboards.
type IncidentType string

const (
	IncidentSpeeding          IncidentType = "speeding"
	IncidentExcessiveSpeeding IncidentType = "excessive_speeding"
	IncidentDangerousSpeeding IncidentType = "dangerous_speeding"
	IncidentExtremeSpeeding   IncidentType = "extreme_speeding"
	IncidentGPSAnomaly        IncidentType = "gps_anomaly"
)

// LedgerStatus is the tri-state blockchain confirmation field on an incident.
// Transitions are one-way: pending is the only legal initial state, and a
// record that has reached confirmed or failed is never touched again.
type LedgerStatus string

const (
	LedgerPending   LedgerStatus = "pending"
	LedgerConfirmed LedgerStatus = "confirmed"
	LedgerFailed    LedgerStatus = "failed"
)

// Location is a GPS coordinate pair.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// TelemetrySample is one reading from a device. Samples are ephemeral: the
// pipeline consumes them once and persists only derived incident fields.
type TelemetrySample struct {
	DeviceID  string   `json:"device_id"`
	Timestamp int64    `json:"timestamp"` // unix seconds
	Location  Location `json:"location"`
	SpeedKMH  float64  `json:"speed_kmh"`
}

// Verdict is the classifier's output for an anomalous sample.
type Verdict struct {
	Type      IncidentType
	Severity  Severity
	Threshold float64
	Excess    float64 // speed minus threshold
}

// SensorSnapshot captures the readings that triggered an incident.
type SensorSnapshot struct {
	SpeedKMH  float64 `json:"speed_kmh"`
	Threshold float64 `json:"threshold"`
	Excess    float64 `json:"excess_speed"`
}

// Incident is the durable record of a detected anomaly.
type Incident struct {
	ID                string         `json:"incident_id"`
	DeviceID          string         `json:"device_id"`
	PolicyRef         *string        `json:"policy_ref"` // nil while the device is unlinked
	Type              IncidentType   `json:"incident_type"`
	Severity          Severity       `json:"severity"`
	Timestamp         int64          `json:"timestamp"`
	Location          Location       `json:"location"`
	Sensor            SensorSnapshot `json:"sensor_data"`
	LedgerStatus      LedgerStatus   `json:"ledger_status"`
	LedgerReference   *string        `json:"ledger_reference"` // nil until confirmed
	LedgerError       *string        `json:"ledger_error,omitempty"`
	KoraNotified      bool           `json:"kora_notified"`
	InsuranceNotified bool           `json:"insurance_notified"`
	CreatedAt         time.Time      `json:"created_at"`
}

// DeviceContext is the policy/company resolution for a device, read by the
// pipeline when building an incident.
type DeviceContext struct {
	DeviceID     string
	PolicyRef    *string
	PolicyHolder *string
	CompanyRef   *string
	CompanyName  *string
}

// NewIncidentID derives a human-decodable id from creation time and device id.
// The uuid suffix keeps ids unique when two samples for one device land in the
// same millisecond.
func NewIncidentID(deviceID string, at time.Time) string {
	return fmt.Sprintf("INC-%d-%s-%s", at.UnixMilli(), deviceID, uuid.NewString()[:8])
}
