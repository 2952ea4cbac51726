package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"kora/internal/domain"
)

// ClaimStalePending locks and returns incidents that are still pending long
// after creation, meaning their notarization goroutine died with the process.
// FOR UPDATE SKIP LOCKED keeps concurrent sweepers from claiming the same
// rows; sweep_claimed_at keeps successive sweeps of one process from
// re-driving an incident whose re-notarization is still in flight.
func (db *DB) ClaimStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]domain.Incident, error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
	}()

	cutoff := time.Now().Add(-olderThan)

	rows, err := tx.Query(ctx, `
		SELECT incident_id, device_id, policy_ref, incident_type, severity,
		       incident_timestamp, latitude, longitude,
		       speed_kmh, speed_threshold, excess_speed,
		       ledger_status, ledger_reference, ledger_error,
		       kora_notified, insurance_notified, created_at
		FROM incident_alerts
		WHERE ledger_status = 'pending'
		  AND created_at < $1
		  AND (sweep_claimed_at IS NULL OR sweep_claimed_at < $1)
		ORDER BY created_at
		FOR UPDATE SKIP LOCKED
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("claim stale pending: %w", err)
	}

	var claimed []domain.Incident
	for rows.Next() {
		var inc domain.Incident
		if err = scanIncident(rows, &inc); err != nil {
			rows.Close()
			return nil, err
		}
		claimed = append(claimed, inc)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	for _, inc := range claimed {
		if _, err = tx.Exec(ctx, `
			UPDATE incident_alerts SET sweep_claimed_at = now() WHERE incident_id = $1
		`, inc.ID); err != nil {
			return nil, fmt.Errorf("mark sweep claim %s: %w", inc.ID, err)
		}
	}
	return claimed, nil
}
