package ports

import (
	"context"

	"github.com/ampdefend/ampdefend/internal/core/domain"
)

// SnapshotHandler receives the output of a feed subscription. Callbacks are
// never invoked concurrently with each other: the feed serializes delivery,
// which is what lets the handler interleave safely with user-triggered
// mutations.
type SnapshotHandler interface {
	// HandleSnapshot delivers the full current contents of the alert
	// collection, including the empty set.
	HandleSnapshot(snap domain.Snapshot)

	// HandleFeedError reports a subscription failure. The feed keeps trying
	// to reconnect on its own; the handler's job is only to surface the
	// degraded state.
	HandleFeedError(err error)
}

// Subscription is a handle on a standing feed subscription.
type Subscription interface {
	// Close cancels the subscription and waits for delivery to stop. Safe to
	// call more than once.
	Close()
}

// ThreatFeed is the upstream realtime source of threat records.
type ThreatFeed interface {
	// Subscribe establishes exactly one standing subscription delivering
	// full snapshots to h until ctx is cancelled or Close is called.
	Subscribe(ctx context.Context, h SnapshotHandler) (Subscription, error)
}
