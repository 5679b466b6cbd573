package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/predictkings/billing-service/internal/domain"
	"github.com/predictkings/billing-service/internal/domain/ports"
	"github.com/predictkings/billing-service/pkg/observability"
	"github.com/predictkings/billing-service/pkg/timeutil"
)

// Action is the business effect a payment event produced.
type Action string

const (
	ActionCreated        Action = "created"
	ActionRenewed        Action = "renewed"
	ActionFailureCounted Action = "failure_counted"
	ActionIgnored        Action = "ignored"
)

// ApplyResult reports what the state machine did with a transaction.
// Event is non-nil only for created and renewed; the caller publishes it
// after the transaction commits.
type ApplyResult struct {
	Action       Action
	Subscription *domain.Subscription
	Event        domain.Event
}

// subscriptionState classifies the user's current standing.
type subscriptionState string

const (
	stateNone   subscriptionState = "none"
	stateActive subscriptionState = "active"
)

// transitionKey pairs the user's standing with the payment outcome.
type transitionKey struct {
	state  subscriptionState
	status domain.PaymentStatus
}

var decimalHundred = decimal.NewFromInt(100)

type transitionFunc func(ctx context.Context, tx pgx.Tx, txn *domain.StandardizedTransaction, current *domain.Subscription, now time.Time) (*ApplyResult, error)

// StateMachine applies completed and failed payments to subscriptions.
// Every application runs inside the caller's database transaction and
// starts by taking the user's advisory lock, so two concurrent payments
// for the same user serialize regardless of whether a subscription row
// exists yet, and each renewal stacks on the other's result.
type StateMachine struct {
	subs        ports.SubscriptionRepository
	logger      *zap.Logger
	transitions map[transitionKey]transitionFunc
}

// NewStateMachine creates a subscription state machine
func NewStateMachine(subs ports.SubscriptionRepository, logger *zap.Logger) *StateMachine {
	sm := &StateMachine{
		subs:   subs,
		logger: logger,
	}
	sm.transitions = map[transitionKey]transitionFunc{
		{stateNone, domain.PaymentStatusCompleted}:   sm.createSubscription,
		{stateActive, domain.PaymentStatusCompleted}: sm.renewSubscription,
		{stateNone, domain.PaymentStatusFailed}:      sm.countFailure,
		{stateActive, domain.PaymentStatusFailed}:    sm.countFailure,
	}
	return sm
}

// Apply transitions the user's subscription for the given ledger row,
// inside the transaction the caller opened around the ledger upsert. The
// caller must have resolved the user; pending events and events without a
// resolved user never reach this point.
func (sm *StateMachine) Apply(ctx context.Context, tx pgx.Tx, txn *domain.StandardizedTransaction) (*ApplyResult, error) {
	if txn.UserID == nil {
		return nil, domain.ErrUserUnresolved
	}
	if txn.Status == domain.PaymentStatusCompleted && !txn.Plan.Valid() {
		return nil, domain.NewDomainError(domain.ErrorCodePlanUnknown, "completed payment carries no plan").
			WithDetail("external_id", txn.ExternalID)
	}

	if err := sm.subs.LockUser(ctx, tx, *txn.UserID); err != nil {
		return nil, err
	}

	now := timeutil.Now()

	current, err := sm.subs.GetActiveForUpdate(ctx, tx, *txn.UserID, now)
	if err != nil {
		return nil, err
	}

	state := stateNone
	if current != nil {
		state = stateActive
	}

	transition, ok := sm.transitions[transitionKey{state, txn.Status}]
	if !ok {
		return &ApplyResult{Action: ActionIgnored}, nil
	}

	return transition(ctx, tx, txn, current, now)
}

func (sm *StateMachine) createSubscription(ctx context.Context, tx pgx.Tx, txn *domain.StandardizedTransaction, _ *domain.Subscription, now time.Time) (*ApplyResult, error) {
	sub := domain.NewSubscription(*txn.UserID, txn, now)

	if err := sm.subs.Create(ctx, tx, sub); err != nil {
		return nil, err
	}

	sm.logger.Info("Subscription created",
		zap.String("user_id", txn.UserID.String()),
		zap.String("subscription_id", sub.ID.String()),
		zap.String("plan", string(sub.Plan)),
		zap.Time("expiry_date", sub.ExpiryDate),
	)

	return &ApplyResult{
		Action:       ActionCreated,
		Subscription: sub,
		Event:        sm.activatedEvent(sub, false, now),
	}, nil
}

func (sm *StateMachine) renewSubscription(ctx context.Context, tx pgx.Tx, txn *domain.StandardizedTransaction, current *domain.Subscription, now time.Time) (*ApplyResult, error) {
	previousExpiry := current.ExpiryDate
	current.Renew(txn, now)

	if err := sm.subs.Update(ctx, tx, current); err != nil {
		return nil, err
	}

	sm.logger.Info("Subscription renewed",
		zap.String("user_id", txn.UserID.String()),
		zap.String("subscription_id", current.ID.String()),
		zap.String("plan", string(current.Plan)),
		zap.Time("previous_expiry", previousExpiry),
		zap.Time("expiry_date", current.ExpiryDate),
	)

	return &ApplyResult{
		Action:       ActionRenewed,
		Subscription: current,
		Event:        sm.activatedEvent(current, true, now),
	}, nil
}

func (sm *StateMachine) countFailure(ctx context.Context, tx pgx.Tx, txn *domain.StandardizedTransaction, _ *domain.Subscription, _ time.Time) (*ApplyResult, error) {
	counted, err := sm.subs.IncrementPaymentFailures(ctx, tx, *txn.UserID)
	if err != nil {
		return nil, err
	}

	if !counted {
		// User has never subscribed; nothing to count the failure against.
		sm.logger.Info("Payment failure for user with no subscription history",
			zap.String("user_id", txn.UserID.String()),
			zap.String("external_id", txn.ExternalID),
		)
		return &ApplyResult{Action: ActionIgnored}, nil
	}

	sm.logger.Info("Payment failure recorded",
		zap.String("user_id", txn.UserID.String()),
		zap.String("gateway", string(txn.Gateway)),
		zap.String("external_id", txn.ExternalID),
	)

	return &ApplyResult{Action: ActionFailureCounted}, nil
}

func (sm *StateMachine) activatedEvent(sub *domain.Subscription, renewal bool, now time.Time) domain.Event {
	return domain.SubscriptionActivatedEvent{
		UserID:         sub.UserID,
		SubscriptionID: sub.ID,
		Plan:           sub.Plan,
		ExpiryDate:     sub.ExpiryDate,
		AmountPaid:     sub.AmountPaid,
		Currency:       sub.Currency,
		Renewal:        renewal,
		Timestamp:      now,
	}
}

// RecordApplyMetrics publishes the business metrics for an apply outcome.
// Callers invoke it after the surrounding transaction commits, so work
// that rolled back never counts.
func RecordApplyMetrics(txn *domain.StandardizedTransaction, result *ApplyResult) {
	switch result.Action {
	case ActionCreated, ActionRenewed:
		amountMinor := txn.Amount.Mul(decimalHundred).IntPart()
		observability.RecordSubscriptionActivation(
			string(txn.Gateway),
			string(txn.Plan),
			txn.Currency,
			result.Action == ActionRenewed,
			amountMinor,
		)
	case ActionFailureCounted:
		observability.RecordPaymentFailure(string(txn.Gateway))
	}
}

// ExpireLapsed deactivates subscriptions whose expiry has passed. Access
// checks compare expiry timestamps directly, so the sweep only keeps the
// active flag queryable; nothing depends on it running on time.
func (sm *StateMachine) ExpireLapsed(ctx context.Context) error {
	count, err := sm.subs.DeactivateExpired(ctx, timeutil.Now())
	if err != nil {
		return fmt.Errorf("deactivate expired subscriptions: %w", err)
	}

	if count > 0 {
		observability.RecordSubscriptionsExpired(count)
		sm.logger.Info("Deactivated expired subscriptions",
			zap.Int64("count", count),
		)
	}

	return nil
}
