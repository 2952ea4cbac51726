package ports

import (
	"context"
	"errors"
	"time"

	"kora/internal/domain"
)

// ErrDeviceNotFound is returned when a sample references a device the store
// has never seen. The pipeline treats this as a hard failure: no incident is
// created and nothing is alerted.
var ErrDeviceNotFound = errors.New("device not found")

// IncidentFilter narrows the read-only incident projection for dashboards.
type IncidentFilter struct {
	Severity   string
	CompanyRef string
	Limit      int
}

// IncidentStore persists incidents and resolves device context. All mutations
// are single-row updates keyed by primary key, so row-level atomicity is
// enough; no multi-row transactions are required on the write path.
type IncidentStore interface {
	// CreateIncident inserts a new incident. The incident must arrive with
	// LedgerStatus pending and a nil ledger reference.
	CreateIncident(ctx context.Context, inc *domain.Incident) error

	// SetLedgerConfirmed transitions a pending incident to confirmed with its
	// transaction reference. Returns false when the incident had already
	// reached a terminal state and nothing changed.
	SetLedgerConfirmed(ctx context.Context, incidentID, reference string) (bool, error)

	// SetLedgerFailed transitions a pending incident to failed with the error
	// text. Same terminal-state guard and applied flag as SetLedgerConfirmed.
	SetLedgerFailed(ctx context.Context, incidentID, reason string) (bool, error)

	// GetDeviceContext resolves device → policy → company, or ErrDeviceNotFound.
	GetDeviceContext(ctx context.Context, deviceID string) (domain.DeviceContext, error)

	// TouchDeviceLiveness records the latest sample timestamp for a device.
	TouchDeviceLiveness(ctx context.Context, deviceID string, ts int64) error

	// ListIncidents is the dashboard projection, newest first.
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]domain.Incident, error)

	// GetIncident fetches one incident by id, or ErrIncidentNotFound.
	GetIncident(ctx context.Context, incidentID string) (*domain.Incident, error)
}

// ErrIncidentNotFound is returned by GetIncident for unknown ids.
var ErrIncidentNotFound = errors.New("incident not found")

// OverviewCounts are the system-wide totals shown on the kora dashboard.
type OverviewCounts struct {
	Devices         int64 `json:"devices"`
	Incidents       int64 `json:"incidents"`
	LedgerPending   int64 `json:"ledger_pending"`
	LedgerConfirmed int64 `json:"ledger_confirmed"`
	LedgerFailed    int64 `json:"ledger_failed"`
	ActiveLastHour  int64 `json:"active_devices_last_hour"`
}

// OverviewReader serves aggregate counts; split from IncidentStore so the API
// layer can depend on reads only.
type OverviewReader interface {
	Overview(ctx context.Context) (OverviewCounts, error)
}

// PendingClaimer lets the startup sweeper claim incidents that are still
// pending with no live notarization goroutine (a restart orphaned them).
// Claiming must be safe under concurrent sweepers.
type PendingClaimer interface {
	ClaimStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Incident, error)
}
