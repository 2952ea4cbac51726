package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"kora/internal/domain"
	"kora/internal/ports"
)

// CreateIncident inserts a new incident row. The caller hands over a fully
// built incident in the pending ledger state.
func (db *DB) CreateIncident(ctx context.Context, inc *domain.Incident) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO incident_alerts (
			incident_id, device_id, policy_ref, incident_type, severity,
			incident_timestamp, latitude, longitude,
			speed_kmh, speed_threshold, excess_speed,
			ledger_status, kora_notified, insurance_notified, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		inc.ID, inc.DeviceID, inc.PolicyRef, inc.Type, inc.Severity,
		inc.Timestamp, inc.Location.Latitude, inc.Location.Longitude,
		inc.Sensor.SpeedKMH, inc.Sensor.Threshold, inc.Sensor.Excess,
		inc.LedgerStatus, inc.KoraNotified, inc.InsuranceNotified, inc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert incident %s: %w", inc.ID, err)
	}
	return nil
}

// SetLedgerConfirmed transitions pending → confirmed. The status guard in the
// WHERE clause makes the terminal transition exactly-once even if a sweeper
// races the original notarization goroutine; the returned flag tells the
// caller whether this call won the transition.
func (db *DB) SetLedgerConfirmed(ctx context.Context, incidentID, reference string) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE incident_alerts
		SET ledger_status = 'confirmed', ledger_reference = $2
		WHERE incident_id = $1 AND ledger_status = 'pending'
	`, incidentID, reference)
	if err != nil {
		return false, fmt.Errorf("confirm incident %s: %w", incidentID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetLedgerFailed transitions pending → failed, recording the error text.
func (db *DB) SetLedgerFailed(ctx context.Context, incidentID, reason string) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE incident_alerts
		SET ledger_status = 'failed', ledger_error = $2
		WHERE incident_id = $1 AND ledger_status = 'pending'
	`, incidentID, reason)
	if err != nil {
		return false, fmt.Errorf("fail incident %s: %w", incidentID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (db *DB) GetDeviceContext(ctx context.Context, deviceID string) (domain.DeviceContext, error) {
	dc := domain.DeviceContext{DeviceID: deviceID}
	err := db.Pool.QueryRow(ctx, `
		SELECT policy_ref, policy_holder, company_ref, company_name
		FROM iot_devices
		WHERE device_id = $1
	`, deviceID).Scan(&dc.PolicyRef, &dc.PolicyHolder, &dc.CompanyRef, &dc.CompanyName)
	if errors.Is(err, pgx.ErrNoRows) {
		return dc, ports.ErrDeviceNotFound
	}
	if err != nil {
		return dc, fmt.Errorf("device context %s: %w", deviceID, err)
	}
	return dc, nil
}

func (db *DB) TouchDeviceLiveness(ctx context.Context, deviceID string, ts int64) error {
	_, err := db.Pool.Exec(ctx, `
		UPDATE iot_devices SET last_seen = $2 WHERE device_id = $1
	`, deviceID, ts)
	return err
}

func (db *DB) ListIncidents(ctx context.Context, filter ports.IncidentFilter) ([]domain.Incident, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 20
	}

	query := `
		SELECT i.incident_id, i.device_id, i.policy_ref, i.incident_type, i.severity,
		       i.incident_timestamp, i.latitude, i.longitude,
		       i.speed_kmh, i.speed_threshold, i.excess_speed,
		       i.ledger_status, i.ledger_reference, i.ledger_error,
		       i.kora_notified, i.insurance_notified, i.created_at
		FROM incident_alerts i
		LEFT JOIN iot_devices d ON d.device_id = i.device_id
		WHERE ($1 = '' OR i.severity = $1)
		  AND ($2 = '' OR d.company_ref = $2)
		ORDER BY i.created_at DESC
		LIMIT $3
	`
	rows, err := db.Pool.Query(ctx, query, filter.Severity, filter.CompanyRef, limit)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	var out []domain.Incident
	for rows.Next() {
		var inc domain.Incident
		if err := scanIncident(rows, &inc); err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

func (db *DB) GetIncident(ctx context.Context, incidentID string) (*domain.Incident, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT incident_id, device_id, policy_ref, incident_type, severity,
		       incident_timestamp, latitude, longitude,
		       speed_kmh, speed_threshold, excess_speed,
		       ledger_status, ledger_reference, ledger_error,
		       kora_notified, insurance_notified, created_at
		FROM incident_alerts
		WHERE incident_id = $1
	`, incidentID)

	var inc domain.Incident
	err := scanIncident(row, &inc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ports.ErrIncidentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get incident %s: %w", incidentID, err)
	}
	return &inc, nil
}

func scanIncident(row pgx.Row, inc *domain.Incident) error {
	return row.Scan(
		&inc.ID, &inc.DeviceID, &inc.PolicyRef, &inc.Type, &inc.Severity,
		&inc.Timestamp, &inc.Location.Latitude, &inc.Location.Longitude,
		&inc.Sensor.SpeedKMH, &inc.Sensor.Threshold, &inc.Sensor.Excess,
		&inc.LedgerStatus, &inc.LedgerReference, &inc.LedgerError,
		&inc.KoraNotified, &inc.InsuranceNotified, &inc.CreatedAt,
	)
}

func (db *DB) Overview(ctx context.Context) (ports.OverviewCounts, error) {
	var c ports.OverviewCounts
	err := db.Pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM iot_devices),
			(SELECT COUNT(*) FROM incident_alerts),
			(SELECT COUNT(*) FROM incident_alerts WHERE ledger_status = 'pending'),
			(SELECT COUNT(*) FROM incident_alerts WHERE ledger_status = 'confirmed'),
			(SELECT COUNT(*) FROM incident_alerts WHERE ledger_status = 'failed'),
			(SELECT COUNT(*) FROM iot_devices
			 WHERE last_seen >= EXTRACT(EPOCH FROM now() - interval '1 hour')::bigint)
	`).Scan(&c.Devices, &c.Incidents, &c.LedgerPending, &c.LedgerConfirmed, &c.LedgerFailed, &c.ActiveLastHour)
	if err != nil {
		return c, fmt.Errorf("overview counts: %w", err)
	}
	return c, nil
}
