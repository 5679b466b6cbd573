// Package webhook orchestrates the life of one inbound delivery: verify,
// normalize, record in the ledger, apply subscription effects, publish.
package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/predictkings/billing-service/internal/domain"
	"github.com/predictkings/billing-service/internal/domain/ports"
	"github.com/predictkings/billing-service/internal/gateways"
	"github.com/predictkings/billing-service/internal/services/subscription"
	"github.com/predictkings/billing-service/pkg/observability"
)

// Outcome classifies what a delivery amounted to. Every outcome except a
// returned error answers the gateway with 200 so it stops retrying.
type Outcome string

const (
	// OutcomeProcessed means this delivery changed durable state.
	OutcomeProcessed Outcome = "processed"
	// OutcomeDuplicate means the ledger had already absorbed this event.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeStale means the event arrived after a later status and was ignored.
	OutcomeStale Outcome = "stale"
	// OutcomeReplayed means the replay guard short-circuited an exact redelivery.
	OutcomeReplayed Outcome = "replayed"
)

// Result reports the outcome of one delivery.
type Result struct {
	Outcome Outcome
	Action  subscription.Action
	Event   *domain.NormalizedPaymentEvent
}

// SubscriptionActivator applies a completed or failed ledger row to the
// user's subscription inside the transaction the processor opened around
// the ledger upsert.
type SubscriptionActivator interface {
	Apply(ctx context.Context, tx pgx.Tx, txn *domain.StandardizedTransaction) (*subscription.ApplyResult, error)
}

// DefaultReplayTTL bounds how long an exact body fingerprint short-circuits
// redeliveries. Gateways retry within minutes; anything later hits the
// ledger and no-ops there.
const DefaultReplayTTL = 5 * time.Minute

// Processor runs the ingestion pipeline for verified webhook deliveries.
type Processor struct {
	registry  *gateways.Registry
	db        ports.DBPort
	guard     ports.ReplayGuard
	ledger    ports.TransactionLedger
	users     ports.UserDirectory
	activator SubscriptionActivator
	publisher ports.EventPublisher
	logger    *zap.Logger
	replayTTL time.Duration
}

// NewProcessor creates a webhook processor
func NewProcessor(
	registry *gateways.Registry,
	db ports.DBPort,
	guard ports.ReplayGuard,
	ledger ports.TransactionLedger,
	users ports.UserDirectory,
	activator SubscriptionActivator,
	publisher ports.EventPublisher,
	logger *zap.Logger,
	replayTTL time.Duration,
) *Processor {
	if replayTTL <= 0 {
		replayTTL = DefaultReplayTTL
	}
	return &Processor{
		registry:  registry,
		db:        db,
		guard:     guard,
		ledger:    ledger,
		users:     users,
		activator: activator,
		publisher: publisher,
		logger:    logger,
		replayTTL: replayTTL,
	}
}

// Fingerprint identifies a delivery by its exact raw bytes. Two deliveries
// with the same fingerprint are the same wire message, not merely the same
// business event.
func Fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Process ingests one delivery. Signature and payload failures come back as
// domain errors for the handler to map; every (Result, nil) return means
// the gateway should receive 200.
func (p *Processor) Process(ctx context.Context, gatewaySlug string, body []byte, headers http.Header) (*Result, error) {
	gateway := domain.Gateway(gatewaySlug)
	adapter, ok := p.registry.Lookup(gateway)
	if !ok {
		return nil, domain.NewDomainError(domain.ErrorCodeGatewayUnknown, "unknown payment gateway").
			WithDetail("gateway", gatewaySlug)
	}

	// Authenticity first. Nothing inside the body is trusted, or even
	// parsed, until the signature over the raw bytes checks out.
	event, err := adapter.Normalize(body, headers)
	if err != nil {
		return nil, err
	}

	fingerprint := Fingerprint(body)
	if p.guard.Seen(ctx, fingerprint) {
		p.logger.Debug("Replay guard short-circuited redelivery",
			zap.String("gateway", string(gateway)),
			zap.String("external_id", event.ExternalID),
		)
		return &Result{Outcome: OutcomeReplayed, Action: subscription.ActionIgnored, Event: event}, nil
	}

	userID, err := p.resolveUser(ctx, event)
	if err != nil {
		return nil, err
	}

	// The ledger upsert and the subscription mutation share one
	// transaction. An activation failure rolls the upsert back too, so
	// the isNew token is not consumed and the gateway's retry starts
	// over instead of landing on the duplicate path with no subscription.
	var (
		txn     *domain.StandardizedTransaction
		isNew   bool
		applied *subscription.ApplyResult
	)
	err = p.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		txn, isNew, err = p.ledger.Upsert(ctx, tx, event, userID)
		if err != nil || !isNew {
			return err
		}
		if txn.Status == domain.PaymentStatusPending || txn.UserID == nil {
			return nil
		}
		applied, err = p.activator.Apply(ctx, tx, txn)
		return err
	})
	if err != nil {
		return nil, err
	}

	if !isNew {
		result := p.classifyNoOp(event, txn)
		p.guard.MarkSeen(ctx, fingerprint, p.replayTTL)
		return result, nil
	}

	action := subscription.ActionIgnored
	switch {
	case txn.Status == domain.PaymentStatusPending:
		// Recorded for audit; effects wait for a final status.
		p.logger.Info("Pending payment recorded",
			zap.String("gateway", string(gateway)),
			zap.String("external_id", txn.ExternalID),
		)

	case txn.UserID == nil:
		// Ledger row is kept so the money trail survives; subscription
		// effects need an account and are skipped.
		p.logger.Warn("Payment recorded for unresolved user",
			zap.String("gateway", string(gateway)),
			zap.String("external_id", txn.ExternalID),
			zap.String("email", txn.Email),
		)

	default:
		action = applied.Action
		subscription.RecordApplyMetrics(txn, applied)

		// The transaction has committed; only now is the event real
		// enough to announce.
		if applied.Event != nil {
			if err := p.publisher.Publish(ctx, applied.Event); err != nil {
				p.logger.Error("Event publish failed after commit",
					zap.String("event_type", applied.Event.EventType()),
					zap.Error(err),
				)
			}
		}
	}

	p.guard.MarkSeen(ctx, fingerprint, p.replayTTL)

	return &Result{Outcome: OutcomeProcessed, Action: action, Event: event}, nil
}

// resolveUser maps the event's customer reference to an account id.
// Unresolved is not an error; the ledger keeps the row with a null user.
func (p *Processor) resolveUser(ctx context.Context, event *domain.NormalizedPaymentEvent) (*uuid.UUID, error) {
	if event.CustomerEmail == "" {
		return nil, nil
	}
	return p.users.GetIDByEmail(ctx, event.CustomerEmail)
}

// classifyNoOp labels a delivery the ledger ignored, and flags the one
// combination worth an operator's attention: a failure notification for a
// payment already confirmed complete.
func (p *Processor) classifyNoOp(event *domain.NormalizedPaymentEvent, existing *domain.StandardizedTransaction) *Result {
	if existing.Status == domain.PaymentStatusCompleted && event.Status == domain.PaymentStatusFailed {
		observability.RecordLedgerAnomaly(string(event.Gateway), "failed_after_completed")
		p.logger.Warn("Gateway reported failure for completed payment, ignoring",
			zap.String("gateway", string(event.Gateway)),
			zap.String("external_id", event.ExternalID),
		)
		return &Result{Outcome: OutcomeStale, Action: subscription.ActionIgnored, Event: event}
	}

	if event.Status == existing.Status {
		return &Result{Outcome: OutcomeDuplicate, Action: subscription.ActionIgnored, Event: event}
	}

	observability.RecordLedgerAnomaly(string(event.Gateway), "stale_replay")
	return &Result{Outcome: OutcomeStale, Action: subscription.ActionIgnored, Event: event}
}
