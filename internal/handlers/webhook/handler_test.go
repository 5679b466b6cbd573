package webhook

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
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
	webhooksvc "github.com/predictkings/billing-service/internal/services/webhook"
	"github.com/predictkings/billing-service/pkg/shutdown"
)

const testSecret = "whsec_handler_test"

type memLedger struct {
	mu   sync.Mutex
	rows map[string]*domain.StandardizedTransaction
}

func (m *memLedger) Upsert(ctx context.Context, db ports.DBTX, event *domain.NormalizedPaymentEvent, userID *uuid.UUID) (*domain.StandardizedTransaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(event.Gateway) + "|" + event.ExternalID
	if existing, ok := m.rows[key]; ok {
		if !domain.StatusAdvances(existing.Status, event.Status) {
			return existing, false, nil
		}
		existing.Status = event.Status
		return existing, true, nil
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
	}
	m.rows[key] = txn
	return txn, true, nil
}

func (m *memLedger) GetByGatewayRef(ctx context.Context, db ports.DBTX, gateway domain.Gateway, externalID string) (*domain.StandardizedTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[string(gateway)+"|"+externalID], nil
}

type failingLedger struct{}

func (failingLedger) Upsert(ctx context.Context, db ports.DBTX, event *domain.NormalizedPaymentEvent, userID *uuid.UUID) (*domain.StandardizedTransaction, bool, error) {
	return nil, false, domain.WrapError(domain.ErrorCodeStorageFailure, "upsert transaction", context.DeadlineExceeded)
}

func (failingLedger) GetByGatewayRef(ctx context.Context, db ports.DBTX, gateway domain.Gateway, externalID string) (*domain.StandardizedTransaction, error) {
	return nil, domain.ErrStorageFailure
}

// passthroughDB runs the transaction function directly; the in-memory
// fakes need no commit or rollback.
type passthroughDB struct{}

func (passthroughDB) GetDB() *pgxpool.Pool { return nil }

func (passthroughDB) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return fn(ctx, nil)
}

type noopGuard struct{}

func (noopGuard) Seen(ctx context.Context, fingerprint string) bool                 { return false }
func (noopGuard) MarkSeen(ctx context.Context, fingerprint string, d time.Duration) {}

type staticUsers struct{ id uuid.UUID }

func (s staticUsers) GetIDByEmail(ctx context.Context, email string) (*uuid.UUID, error) {
	return &s.id, nil
}

type noopActivator struct{}

func (noopActivator) Apply(ctx context.Context, tx pgx.Tx, txn *domain.StandardizedTransaction) (*subscription.ApplyResult, error) {
	return &subscription.ApplyResult{Action: subscription.ActionCreated}, nil
}

type noopBus struct{}

func (noopBus) Subscribe(eventType string, handler ports.EventHandler) {}
func (noopBus) Publish(ctx context.Context, event domain.Event) error { return nil }

func newTestServer(t *testing.T, ledger ports.TransactionLedger) *httptest.Server {
	t.Helper()

	plans := gateways.NewPlanTable([]gateways.PlanPrice{
		{Amount: decimal.RequireFromString("500"), Plan: domain.PlanDaily},
		{Amount: decimal.RequireFromString("2100"), Plan: domain.PlanMonthly},
	})
	registry := gateways.NewRegistry(gateways.NewCredo(testSecret, plans))

	logger := zap.NewNop()
	processor := webhooksvc.NewProcessor(
		registry,
		passthroughDB{},
		noopGuard{},
		ledger,
		staticUsers{id: uuid.New()},
		noopActivator{},
		noopBus{},
		logger,
		time.Minute,
	)

	handler := NewHandler(processor, shutdown.NewInFlightTracker("test", logger), logger)
	mux := http.NewServeMux()
	handler.Register(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func credoRequest(t *testing.T, serverURL, gateway string, body []byte, sign bool) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, serverURL+"/webhooks/"+gateway, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if sign {
		req.Header.Set(gateways.SignatureHeaderCredo, gateways.SignSHA256(testSecret, body))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func credoBody(ref string) []byte {
	return []byte(fmt.Sprintf(
		`{"event":"transaction.successful","data":{"transRef":"%s","transAmount":"500","currencyCode":"NGN","status":0,"customer":{"customerEmail":"fan@example.com"},"metadata":{}}}`,
		ref,
	))
}

// TestHandler_ValidDeliveryReturns200 tests the happy path status code
func TestHandler_ValidDeliveryReturns200(t *testing.T) {
	server := newTestServer(t, &memLedger{rows: map[string]*domain.StandardizedTransaction{}})

	resp := credoRequest(t, server.URL, "credo", credoBody("cr-200"), true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// TestHandler_DuplicateStillReturns200 tests that gateways are told to
// stop retrying even when nothing changed
func TestHandler_DuplicateStillReturns200(t *testing.T) {
	server := newTestServer(t, &memLedger{rows: map[string]*domain.StandardizedTransaction{}})

	body := credoBody("cr-dup")
	resp := credoRequest(t, server.URL, "credo", body, true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = credoRequest(t, server.URL, "credo", body, true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// TestHandler_MissingSignatureReturns401 tests authenticity rejection
func TestHandler_MissingSignatureReturns401(t *testing.T) {
	server := newTestServer(t, &memLedger{rows: map[string]*domain.StandardizedTransaction{}})

	resp := credoRequest(t, server.URL, "credo", credoBody("cr-401"), false)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// TestHandler_UnknownGatewayReturns400 tests slug rejection
func TestHandler_UnknownGatewayReturns400(t *testing.T) {
	server := newTestServer(t, &memLedger{rows: map[string]*domain.StandardizedTransaction{}})

	resp := credoRequest(t, server.URL, "stripe", credoBody("cr-400"), true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// TestHandler_StorageFailureReturns503 tests that transient failures ask
// the gateway to redeliver
func TestHandler_StorageFailureReturns503(t *testing.T) {
	server := newTestServer(t, failingLedger{})

	resp := credoRequest(t, server.URL, "credo", credoBody("cr-503"), true)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
