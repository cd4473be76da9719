package ports

import (
	"context"

	"github.com/ampdefend/ampdefend/internal/core/domain"
)

// DeliveryLog is the audit trail of webhook delivery attempts. Recording is
// best-effort: a failed Record must never affect delivery semantics.
type DeliveryLog interface {
	Record(ctx context.Context, rec domain.DeliveryRecord) error
	FindRecent(ctx context.Context, limit int) ([]domain.DeliveryRecord, error)
}
