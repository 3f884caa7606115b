package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	batch "github.com/cirquephotovideo/commerce-cloud-ai-sub007"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/alert"
	"github.com/cirquephotovideo/commerce-cloud-ai-sub007/id"
)

const alertColumns = `
	id, severity, component, message, metadata,
	created_at, updated_at, version`

// CreateAlert persists a new alert.
func (s *Store) CreateAlert(ctx context.Context, a *alert.Alert) error {
	metaJSON, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("batch/postgres: marshal alert metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO batch_alerts (
			id, severity, component, message, metadata,
			created_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID.String(), string(a.Severity), a.Component, a.Message, metaJSON,
		a.CreatedAt, a.UpdatedAt, a.Version,
	)
	if err != nil {
		return fmt.Errorf("batch/postgres: create alert: %w", err)
	}
	return nil
}

// GetAlert retrieves an alert by ID.
func (s *Store) GetAlert(ctx context.Context, alertID id.AlertID) (*alert.Alert, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+alertColumns+` FROM batch_alerts WHERE id = $1`,
		alertID.String(),
	)

	a, err := scanAlert(row)
	if err != nil {
		if isNoRows(err) {
			return nil, batch.ErrAlertNotFound
		}
		return nil, fmt.Errorf("batch/postgres: get alert: %w", err)
	}
	return a, nil
}

// ListAlertsSince returns alerts created after the given time, newest
// first.
func (s *Store) ListAlertsSince(ctx context.Context, since time.Time) ([]*alert.Alert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+alertColumns+`
		FROM batch_alerts
		WHERE created_at >= $1
		ORDER BY created_at DESC`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("batch/postgres: list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("batch/postgres: scan alert row: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("batch/postgres: iterate alert rows: %w", err)
	}
	return alerts, nil
}

// scanAlert scans a single alert row.
func scanAlert(row pgx.Row) (*alert.Alert, error) {
	var (
		a           alert.Alert
		idStr       string
		severityStr string
		metaJSON    []byte
	)
	err := row.Scan(
		&idStr, &severityStr, &a.Component, &a.Message, &metaJSON,
		&a.CreatedAt, &a.UpdatedAt, &a.Version,
	)
	if err != nil {
		return nil, err
	}

	a.Severity = alert.Severity(severityStr)

	if len(metaJSON) > 0 {
		if uerr := json.Unmarshal(metaJSON, &a.Metadata); uerr != nil {
			return nil, fmt.Errorf("batch/postgres: unmarshal alert metadata: %w", uerr)
		}
	}

	parsedID, parseErr := id.ParseAlertID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("batch/postgres: parse alert id %q: %w", idStr, parseErr)
	}
	a.ID = parsedID

	return &a, nil
}
