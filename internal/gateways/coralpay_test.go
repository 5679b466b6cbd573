package gateways

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predictkings/billing-service/internal/domain"
)

// TestCoralPay_NormalizeJSON tests the JSON channel with amount inference
func TestCoralPay_NormalizeJSON(t *testing.T) {
	adapter := NewCoralPay(testSecret, testPlanTable())

	body := []byte(`{"transactionId":"cp-001","amount":"1000","currency":"NGN","responseCode":"00","customerEmail":"fan@example.com","customerPhone":""}`)
	headers := signedHeaders(SignatureHeaderCoralPay, SignSHA256(testSecret, body))

	event, err := adapter.Normalize(body, headers)
	require.NoError(t, err)

	assert.Equal(t, domain.GatewayCoralPay, event.Gateway)
	assert.Equal(t, "cp-001", event.ExternalID)
	assert.Equal(t, domain.PaymentStatusCompleted, event.Status)
	assert.Equal(t, domain.PlanWeekly, event.Plan, "1000 NGN must infer the weekly plan")
	assert.True(t, event.Amount.Equal(decimal.RequireFromString("1000")))
}

// TestCoralPay_NormalizeXML tests the XML channel sniffed from the body
func TestCoralPay_NormalizeXML(t *testing.T) {
	adapter := NewCoralPay(testSecret, testPlanTable())

	body := []byte(`<?xml version="1.0"?>
<TransactionNotification>
  <TransactionId>cp-xml-001</TransactionId>
  <Amount>500</Amount>
  <Currency>NGN</Currency>
  <ResponseCode>00</ResponseCode>
  <CustomerEmail>fan@example.com</CustomerEmail>
  <CustomerPhone>+2348011111111</CustomerPhone>
</TransactionNotification>`)
	headers := signedHeaders(SignatureHeaderCoralPay, SignSHA256(testSecret, body))

	event, err := adapter.Normalize(body, headers)
	require.NoError(t, err)

	assert.Equal(t, "cp-xml-001", event.ExternalID)
	assert.Equal(t, domain.PaymentStatusCompleted, event.Status)
	assert.Equal(t, domain.PlanDaily, event.Plan)
	assert.Equal(t, "+2348011111111", event.CustomerPhone)
}

// TestCoralPay_ResponseCodes tests response code translation
func TestCoralPay_ResponseCodes(t *testing.T) {
	tests := []struct {
		code     string
		expected domain.PaymentStatus
	}{
		{"00", domain.PaymentStatusCompleted},
		{"05", domain.PaymentStatusFailed},
		{"51", domain.PaymentStatusFailed},
		{"91", domain.PaymentStatusFailed},
		{"09", domain.PaymentStatusPending},
		{"", domain.PaymentStatusPending},
	}

	for _, tt := range tests {
		t.Run("code "+tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, coralPayStatus(tt.code))
		})
	}
}

// TestCoralPay_MalformedXML tests parse failure on a signed but broken body
func TestCoralPay_MalformedXML(t *testing.T) {
	adapter := NewCoralPay(testSecret, testPlanTable())

	body := []byte(`<TransactionNotification><TransactionId>`)
	headers := signedHeaders(SignatureHeaderCoralPay, SignSHA256(testSecret, body))

	_, err := adapter.Normalize(body, headers)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodePayloadMalformed))
}

// TestAlatPay_StatusMapping tests ALATPay vocabulary translation
func TestAlatPay_StatusMapping(t *testing.T) {
	tests := []struct {
		status   string
		expected domain.PaymentStatus
	}{
		{"COMPLETED", domain.PaymentStatusCompleted},
		{"SUCCESSFUL", domain.PaymentStatusCompleted},
		{"FAILED", domain.PaymentStatusFailed},
		{"DECLINED", domain.PaymentStatusFailed},
		{"EXPIRED", domain.PaymentStatusFailed},
		{"PENDING", domain.PaymentStatusPending},
		{"INITIATED", domain.PaymentStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			assert.Equal(t, tt.expected, alatPayStatus(tt.status))
		})
	}
}

// TestCredo_Normalize tests Credo mapping with numeric status codes
func TestCredo_Normalize(t *testing.T) {
	adapter := NewCredo(testSecret, testPlanTable())

	body := []byte(`{"event":"transaction.successful","data":{"transRef":"cr-001","transAmount":"500","currencyCode":"NGN","status":0,"customer":{"customerEmail":"fan@example.com","customerPhoneNo":"+2348022222222"},"metadata":{"plan":""}}}`)
	headers := signedHeaders(SignatureHeaderCredo, SignSHA256(testSecret, body))

	event, err := adapter.Normalize(body, headers)
	require.NoError(t, err)

	assert.Equal(t, domain.GatewayCredo, event.Gateway)
	assert.Equal(t, "cr-001", event.ExternalID)
	assert.Equal(t, domain.PaymentStatusCompleted, event.Status)
	assert.Equal(t, domain.PlanDaily, event.Plan)
}

// TestCredo_StatusMapping tests event name and numeric code precedence
func TestCredo_StatusMapping(t *testing.T) {
	code := func(n int) *int { return &n }

	tests := []struct {
		name     string
		event    string
		code     *int
		expected domain.PaymentStatus
	}{
		{"successful event wins", "transaction.successful", code(2), domain.PaymentStatusCompleted},
		{"code zero completes", "transaction.update", code(0), domain.PaymentStatusCompleted},
		{"code two fails", "transaction.update", code(2), domain.PaymentStatusFailed},
		{"other codes pend", "transaction.update", code(1), domain.PaymentStatusPending},
		{"absent code pends", "transaction.update", nil, domain.PaymentStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, credoStatus(tt.event, tt.code))
		})
	}
}

// TestCredo_AbsentStatusStaysPending tests that a payload without a status
// field never normalizes to completed
func TestCredo_AbsentStatusStaysPending(t *testing.T) {
	adapter := NewCredo(testSecret, testPlanTable())

	body := []byte(`{"event":"transaction.pending","data":{"transRef":"cr-002","transAmount":"500","currencyCode":"NGN","customer":{"customerEmail":"fan@example.com"},"metadata":{}}}`)
	headers := signedHeaders(SignatureHeaderCredo, SignSHA256(testSecret, body))

	event, err := adapter.Normalize(body, headers)
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusPending, event.Status)
}

// TestParsePlan tests metadata plan alias handling
func TestParsePlan(t *testing.T) {
	tests := []struct {
		input    string
		expected domain.PlanType
	}{
		{"daily", domain.PlanDaily},
		{"Day", domain.PlanDaily},
		{"WEEKLY", domain.PlanWeekly},
		{"monthly", domain.PlanMonthly},
		{" monthly ", domain.PlanMonthly},
		{"annual", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run("input "+tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parsePlan(tt.input))
		})
	}
}
