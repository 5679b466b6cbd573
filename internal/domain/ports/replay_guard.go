package ports

import (
	"context"
	"time"
)

// ReplayGuard answers "have I seen this exact webhook body before" using a
// time-bounded cache. It is a latency optimization, not a correctness
// mechanism: implementations fail open (report unseen) when the cache
// backend is unavailable, and the ledger's unique key remains the
// authoritative duplicate suppressor.
type ReplayGuard interface {
	Seen(ctx context.Context, fingerprint string) bool
	MarkSeen(ctx context.Context, fingerprint string, ttl time.Duration)
}
