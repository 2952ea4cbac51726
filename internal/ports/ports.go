package ports

import "context"

// Notary appends a content hash to an external immutable ledger and returns
// the transaction reference. The ledger is treated as untrusted and slow;
// Submit may take seconds and fails with an error rather than blocking
// forever.
type Notary interface {
	Submit(ctx context.Context, contentHash []byte) (txReference string, err error)
}

// AlertEventType distinguishes the two points in an incident's lifecycle at
// which dashboards are notified.
type AlertEventType string

const (
	AlertIncidentDetected AlertEventType = "anomaly_detected"
	AlertLedgerConfirmed  AlertEventType = "ledger_confirmed"
)

// AlertEvent is the payload fanned out to dashboards.
type AlertEvent struct {
	Type            AlertEventType `json:"type"`
	IncidentID      string         `json:"incident_id"`
	DeviceID        string         `json:"device_id"`
	IncidentType    string         `json:"incident_type"`
	Severity        string         `json:"severity"`
	SpeedKMH        float64        `json:"speed_kmh"`
	Timestamp       int64          `json:"timestamp"`
	PolicyRef       *string        `json:"policy_ref"`
	PolicyHolder    *string        `json:"policy_holder"`
	CompanyRef      *string        `json:"company_ref"`
	CompanyName     *string        `json:"company_name"`
	LedgerStatus    string         `json:"ledger_status"`
	LedgerReference *string        `json:"ledger_reference,omitempty"`
}

// AlertSink receives alert events. Push must never propagate a delivery
// failure into the caller; implementations log and swallow.
type AlertSink interface {
	Push(event AlertEvent)
}
