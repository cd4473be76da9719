package ports

import (
	"context"

	"github.com/ampdefend/ampdefend/internal/core/domain"
)

// AlertNotifier forwards a newly observed threat record to the downstream
// automation webhook. Implementations make exactly one delivery attempt per
// call; the caller decides what a failure means (for the pipeline: log and
// move on).
type AlertNotifier interface {
	Notify(ctx context.Context, alertID string, rec domain.ThreatRecord) error
}
