package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/predictkings/billing-service/internal/domain"
	"github.com/predictkings/billing-service/internal/domain/ports"
	"github.com/predictkings/billing-service/internal/gateways"
	"github.com/predictkings/billing-service/internal/services/subscription"
)

const testSecret = "whsec_processor_test"

// txParticipant lets fakes stage writes until the fake transaction ends.
type txParticipant interface {
	commit()
	rollback()
}

// fakeDB serializes transactions the way the per-user lock does in
// production and gives participants commit/rollback semantics, so a
// failed activation discards the staged ledger write.
type fakeDB struct {
	mu           sync.Mutex
	participants []txParticipant
}

func (d *fakeDB) GetDB() *pgxpool.Pool { return nil }

func (d *fakeDB) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := fn(ctx, nil); err != nil {
		for _, p := range d.participants {
			p.rollback()
		}
		return err
	}
	for _, p := range d.participants {
		p.commit()
	}
	return nil
}

// fakeLedger mirrors the storage-level idempotency contract: first writer
// of a given status transition wins, everything else is a no-op. Writes
// stage until the fake transaction commits.
type fakeLedger struct {
	mu     sync.Mutex
	rows   map[string]*domain.StandardizedTransaction
	staged map[string]*domain.StandardizedTransaction
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		rows:   make(map[string]*domain.StandardizedTransaction),
		staged: make(map[string]*domain.StandardizedTransaction),
	}
}

func ledgerKey(gateway domain.Gateway, externalID string) string {
	return string(gateway) + "|" + externalID
}

func (f *fakeLedger) lookup(key string) (*domain.StandardizedTransaction, bool) {
	if txn, ok := f.staged[key]; ok {
		return txn, true
	}
	txn, ok := f.rows[key]
	return txn, ok
}

func (f *fakeLedger) commit() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, txn := range f.staged {
		f.rows[key] = txn
	}
	f.staged = make(map[string]*domain.StandardizedTransaction)
}

func (f *fakeLedger) rollback() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staged = make(map[string]*domain.StandardizedTransaction)
}

func (f *fakeLedger) Upsert(ctx context.Context, db ports.DBTX, event *domain.NormalizedPaymentEvent, userID *uuid.UUID) (*domain.StandardizedTransaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := ledgerKey(event.Gateway, event.ExternalID)
	if existing, ok := f.lookup(key); ok {
		if !domain.StatusAdvances(existing.Status, event.Status) {
			return existing, false, nil
		}
		advanced := *existing
		advanced.Status = event.Status
		if advanced.Plan == "" {
			advanced.Plan = event.Plan
		}
		f.staged[key] = &advanced
		return &advanced, true, nil
	}

	txn := &domain.StandardizedTransaction{
		ID:         uuid.New(),
		UserID:     userID,
		Email:      event.CustomerEmail,
		Gateway:    event.Gateway,
		ExternalID: event.ExternalID,
		Amount:     event.Amount,
		Currency:   event.Currency,
		Plan:       event.Plan,
		Status:     event.Status,
		RawPayload: event.RawPayload,
		CreatedAt:  time.Now().UTC(),
	}
	f.staged[key] = txn
	return txn, true, nil
}

func (f *fakeLedger) GetByGatewayRef(ctx context.Context, db ports.DBTX, gateway domain.Gateway, externalID string) (*domain.StandardizedTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	txn, ok := f.lookup(ledgerKey(gateway, externalID))
	if !ok {
		return nil, domain.ErrSubscriptionNotFound
	}
	return txn, nil
}

type fakeGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{seen: make(map[string]bool)}
}

func (f *fakeGuard) Seen(ctx context.Context, fingerprint string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen[fingerprint]
}

func (f *fakeGuard) MarkSeen(ctx context.Context, fingerprint string, ttl time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen[fingerprint] = true
}

type fakeUsers struct {
	byEmail map[string]uuid.UUID
}

func (f *fakeUsers) GetIDByEmail(ctx context.Context, email string) (*uuid.UUID, error) {
	if id, ok := f.byEmail[email]; ok {
		return &id, nil
	}
	return nil, nil
}

type fakeActivator struct {
	mu      sync.Mutex
	applied []*domain.StandardizedTransaction
	result  *subscription.ApplyResult
	err     error
}

func (f *fakeActivator) Apply(ctx context.Context, tx pgx.Tx, txn *domain.StandardizedTransaction) (*subscription.ApplyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.applied = append(f.applied, txn)
	if f.result != nil {
		return f.result, nil
	}
	return &subscription.ApplyResult{
		Action: subscription.ActionCreated,
		Event:  domain.SubscriptionActivatedEvent{Timestamp: time.Now().UTC()},
	}, nil
}

type fakeBus struct {
	mu        sync.Mutex
	published []domain.Event
}

func (f *fakeBus) Subscribe(eventType string, handler ports.EventHandler) {}

func (f *fakeBus) Publish(ctx context.Context, event domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, event)
	return nil
}

type processorFixture struct {
	processor *Processor
	ledger    *fakeLedger
	guard     *fakeGuard
	users     *fakeUsers
	activator *fakeActivator
	bus       *fakeBus
}

func newFixture() *processorFixture {
	plans := gateways.NewPlanTable([]gateways.PlanPrice{
		{Amount: decimal.RequireFromString("500"), Plan: domain.PlanDaily},
		{Amount: decimal.RequireFromString("1000"), Plan: domain.PlanWeekly},
		{Amount: decimal.RequireFromString("2100"), Plan: domain.PlanMonthly},
	})
	registry := gateways.NewRegistry(
		gateways.NewAlatPay(testSecret, plans),
		gateways.NewPaystack(testSecret, plans),
	)

	f := &processorFixture{
		ledger:    newFakeLedger(),
		guard:     newFakeGuard(),
		users:     &fakeUsers{byEmail: map[string]uuid.UUID{"fan@example.com": uuid.New()}},
		activator: &fakeActivator{},
		bus:       &fakeBus{},
	}
	db := &fakeDB{participants: []txParticipant{f.ledger}}
	f.processor = NewProcessor(registry, db, f.guard, f.ledger, f.users, f.activator, f.bus, zap.NewNop(), time.Minute)
	return f
}

func alatBody(ref, amount, status string) ([]byte, http.Header) {
	body := []byte(fmt.Sprintf(
		`{"data":{"transactionId":"%s","amount":"%s","currency":"NGN","status":"%s","customer":{"email":"fan@example.com"}}}`,
		ref, amount, status,
	))
	h := http.Header{}
	h.Set(gateways.SignatureHeaderAlatPay, gateways.SignSHA256(testSecret, body))
	return body, h
}

// TestProcessor_CompletedPaymentActivates tests the happy path end to end
func TestProcessor_CompletedPaymentActivates(t *testing.T) {
	f := newFixture()
	f.activator.result = &subscription.ApplyResult{
		Action: subscription.ActionCreated,
		Event:  domain.SubscriptionActivatedEvent{Timestamp: time.Now().UTC()},
	}

	body, headers := alatBody("txn-100", "2100", "COMPLETED")
	result, err := f.processor.Process(context.Background(), "alatpay", body, headers)
	require.NoError(t, err)

	assert.Equal(t, OutcomeProcessed, result.Outcome)
	assert.Equal(t, subscription.ActionCreated, result.Action)
	require.Len(t, f.activator.applied, 1)
	assert.Equal(t, domain.PlanMonthly, f.activator.applied[0].Plan, "2100 NGN must infer monthly")
	assert.Len(t, f.bus.published, 1, "activation must publish exactly one event")
	assert.True(t, f.guard.Seen(context.Background(), Fingerprint(body)))
}

// TestProcessor_ActivationFailureRollsBackLedger tests that a transient
// activation failure leaves no committed ledger row, so the gateway's
// retry activates instead of classifying as a duplicate
func TestProcessor_ActivationFailureRollsBackLedger(t *testing.T) {
	f := newFixture()
	f.activator.err = errors.New("deadlock detected")

	body, headers := alatBody("txn-99", "2100", "COMPLETED")
	_, err := f.processor.Process(context.Background(), "alatpay", body, headers)
	require.Error(t, err)
	assert.Empty(t, f.ledger.rows, "failed activation must roll the ledger row back")
	assert.False(t, f.guard.Seen(context.Background(), Fingerprint(body)),
		"a failed delivery must stay retryable")

	// The gateway retries after the transient failure clears.
	f.activator.err = nil
	result, err := f.processor.Process(context.Background(), "alatpay", body, headers)
	require.NoError(t, err)

	assert.Equal(t, OutcomeProcessed, result.Outcome)
	assert.Equal(t, subscription.ActionCreated, result.Action)
	require.Len(t, f.activator.applied, 1, "the retry must activate exactly once")
	assert.Len(t, f.bus.published, 1)
}

// TestProcessor_ExactRedeliveryShortCircuits tests the replay guard path
func TestProcessor_ExactRedeliveryShortCircuits(t *testing.T) {
	f := newFixture()

	body, headers := alatBody("txn-101", "500", "COMPLETED")
	_, err := f.processor.Process(context.Background(), "alatpay", body, headers)
	require.NoError(t, err)

	result, err := f.processor.Process(context.Background(), "alatpay", body, headers)
	require.NoError(t, err)

	assert.Equal(t, OutcomeReplayed, result.Outcome)
	assert.Len(t, f.activator.applied, 1, "second delivery must not reach the state machine")
	assert.Len(t, f.bus.published, 1)
}

// TestProcessor_DuplicateAfterGuardExpiry tests that the ledger still
// suppresses duplicates when the cache has forgotten the body
func TestProcessor_DuplicateAfterGuardExpiry(t *testing.T) {
	f := newFixture()

	body, headers := alatBody("txn-102", "500", "COMPLETED")
	_, err := f.processor.Process(context.Background(), "alatpay", body, headers)
	require.NoError(t, err)

	// Simulate TTL expiry
	f.guard.seen = make(map[string]bool)

	result, err := f.processor.Process(context.Background(), "alatpay", body, headers)
	require.NoError(t, err)

	assert.Equal(t, OutcomeDuplicate, result.Outcome)
	assert.Len(t, f.activator.applied, 1)
	assert.Len(t, f.bus.published, 1)
}

// TestProcessor_PendingThenCompleted tests status progression across
// deliveries of the same business event
func TestProcessor_PendingThenCompleted(t *testing.T) {
	f := newFixture()

	pendingBody, pendingHeaders := alatBody("txn-103", "1000", "INITIATED")
	result, err := f.processor.Process(context.Background(), "alatpay", pendingBody, pendingHeaders)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, result.Outcome)
	assert.Empty(t, f.activator.applied, "pending must not touch subscriptions")

	completedBody, completedHeaders := alatBody("txn-103", "1000", "COMPLETED")
	result, err = f.processor.Process(context.Background(), "alatpay", completedBody, completedHeaders)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, result.Outcome)
	assert.Len(t, f.activator.applied, 1)
}

// TestProcessor_FailedAfterCompletedIgnored tests the anomaly path
func TestProcessor_FailedAfterCompletedIgnored(t *testing.T) {
	f := newFixture()

	completedBody, completedHeaders := alatBody("txn-104", "500", "COMPLETED")
	_, err := f.processor.Process(context.Background(), "alatpay", completedBody, completedHeaders)
	require.NoError(t, err)

	failedBody, failedHeaders := alatBody("txn-104", "500", "FAILED")
	result, err := f.processor.Process(context.Background(), "alatpay", failedBody, failedHeaders)
	require.NoError(t, err)

	assert.Equal(t, OutcomeStale, result.Outcome)
	assert.Len(t, f.activator.applied, 1, "the late failure must not reach the state machine")
}

// TestProcessor_UnknownGatewayRejected tests slug validation
func TestProcessor_UnknownGatewayRejected(t *testing.T) {
	f := newFixture()

	_, err := f.processor.Process(context.Background(), "stripe", []byte(`{}`), http.Header{})
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeGatewayUnknown))
}

// TestProcessor_UnresolvedUserKeepsLedgerRow tests that payments from
// unknown emails are recorded but produce no subscription
func TestProcessor_UnresolvedUserKeepsLedgerRow(t *testing.T) {
	f := newFixture()
	f.users.byEmail = map[string]uuid.UUID{} // nobody resolves

	body, headers := alatBody("txn-105", "500", "COMPLETED")
	result, err := f.processor.Process(context.Background(), "alatpay", body, headers)
	require.NoError(t, err)

	assert.Equal(t, OutcomeProcessed, result.Outcome)
	assert.Empty(t, f.activator.applied)

	txn, err := f.ledger.GetByGatewayRef(context.Background(), nil, domain.GatewayAlatPay, "txn-105")
	require.NoError(t, err)
	assert.Nil(t, txn.UserID)
	assert.Equal(t, "fan@example.com", txn.Email)
}

// TestProcessor_ConcurrentDuplicatesActivateOnce tests that simultaneous
// deliveries of the same event produce exactly one business effect
func TestProcessor_ConcurrentDuplicatesActivateOnce(t *testing.T) {
	f := newFixture()

	body, headers := alatBody("txn-106", "2100", "COMPLETED")

	const workers = 16
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.processor.Process(context.Background(), "alatpay", body, headers)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, f.activator.applied, 1, "exactly one delivery may win the upsert")
	assert.Len(t, f.bus.published, 1)
}

// TestProcessor_SignatureFailurePropagates tests that bad signatures never
// reach the ledger
func TestProcessor_SignatureFailurePropagates(t *testing.T) {
	f := newFixture()

	body, _ := alatBody("txn-107", "500", "COMPLETED")
	headers := http.Header{}
	headers.Set(gateways.SignatureHeaderAlatPay, "deadbeef")

	_, err := f.processor.Process(context.Background(), "alatpay", body, headers)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeSignatureInvalid))
	assert.Empty(t, f.ledger.rows)
}
