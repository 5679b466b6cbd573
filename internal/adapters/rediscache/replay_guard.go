package rediscache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/predictkings/billing-service/pkg/observability"
)

const replayKeyPrefix = "webhook:replay:"

// ReplayGuard is a Redis-backed short-circuit for exact webhook redeliveries.
// A miss or a Redis failure both report "unseen": the transaction ledger's
// unique key is the authoritative duplicate suppressor, so the guard is free
// to fail open.
type ReplayGuard struct {
	client redis.UniversalClient
	logger *zap.Logger
}

// NewReplayGuard creates a Redis-backed replay guard
func NewReplayGuard(client redis.UniversalClient, logger *zap.Logger) *ReplayGuard {
	return &ReplayGuard{
		client: client,
		logger: logger,
	}
}

// Seen reports whether this fingerprint was recorded within its TTL window.
func (g *ReplayGuard) Seen(ctx context.Context, fingerprint string) bool {
	n, err := g.client.Exists(ctx, replayKeyPrefix+fingerprint).Result()
	if err != nil {
		g.degraded("exists", err)
		return false
	}
	return n > 0
}

// MarkSeen records the fingerprint with the given TTL. Errors are logged and
// swallowed; the next delivery of the same body falls through to the ledger.
func (g *ReplayGuard) MarkSeen(ctx context.Context, fingerprint string, ttl time.Duration) {
	if err := g.client.SetNX(ctx, replayKeyPrefix+fingerprint, 1, ttl).Err(); err != nil {
		g.degraded("setnx", err)
	}
}

func (g *ReplayGuard) degraded(op string, err error) {
	observability.RecordReplayGuardDegraded(op)
	g.logger.Warn("Replay guard degraded, failing open",
		zap.String("operation", op),
		zap.Error(err))
}
