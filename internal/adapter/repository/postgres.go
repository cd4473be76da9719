package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ampdefend/ampdefend/internal/core/domain"
)

// PostgresDeliveryLog stores webhook delivery attempts. The realtime feed
// itself stays external; this table only backs the dashboard's recent
// activity view and post-hoc delivery audits.
type PostgresDeliveryLog struct {
	db *pgxpool.Pool
}

func NewPostgresDeliveryLog(db *pgxpool.Pool) *PostgresDeliveryLog {
	return &PostgresDeliveryLog{db: db}
}

// EnsureSchema creates the delivery table when it does not exist yet.
func (r *PostgresDeliveryLog) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS notification_log (
			id UUID PRIMARY KEY,
			alert_id TEXT NOT NULL,
			endpoint TEXT NOT NULL,
			status TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			sent_at TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := r.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to ensure notification_log schema: %w", err)
	}
	return nil
}

func (r *PostgresDeliveryLog) Record(ctx context.Context, rec domain.DeliveryRecord) error {
	query := `
		INSERT INTO notification_log (id, alert_id, endpoint, status, detail, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Exec(ctx, query,
		rec.ID,
		rec.AlertID,
		rec.Endpoint,
		rec.Status,
		rec.Detail,
		rec.SentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert delivery record: %w", err)
	}

	return nil
}

func (r *PostgresDeliveryLog) FindRecent(ctx context.Context, limit int) ([]domain.DeliveryRecord, error) {
	query := `
		SELECT id, alert_id, endpoint, status, detail, sent_at
		FROM notification_log
		ORDER BY sent_at DESC
		LIMIT $1
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery records: %w", err)
	}
	defer rows.Close()

	var records []domain.DeliveryRecord

	for rows.Next() {
		var rec domain.DeliveryRecord
		err := rows.Scan(
			&rec.ID,
			&rec.AlertID,
			&rec.Endpoint,
			&rec.Status,
			&rec.Detail,
			&rec.SentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// NoopDeliveryLog is used when no database is configured: recording succeeds
// silently and the activity view stays empty.
type NoopDeliveryLog struct{}

func NewNoopDeliveryLog() *NoopDeliveryLog {
	return &NoopDeliveryLog{}
}

func (NoopDeliveryLog) Record(ctx context.Context, rec domain.DeliveryRecord) error {
	return nil
}

func (NoopDeliveryLog) FindRecent(ctx context.Context, limit int) ([]domain.DeliveryRecord, error) {
	return nil, nil
}
