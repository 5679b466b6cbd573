// Package webhook exposes the gateway notification endpoint.
package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/predictkings/billing-service/internal/domain"
	webhooksvc "github.com/predictkings/billing-service/internal/services/webhook"
	"github.com/predictkings/billing-service/pkg/observability"
	"github.com/predictkings/billing-service/pkg/shutdown"
)

// MaxBodyBytes caps webhook payload size. The largest real gateway payload
// observed is under 10KB.
const MaxBodyBytes = 1 << 20

// Handler receives POST /webhooks/{gateway} deliveries and maps processor
// outcomes to the status codes gateways key their retry behavior on:
// 200 stop, 4xx stop (bad request), 5xx retry.
type Handler struct {
	processor *webhooksvc.Processor
	inflight  *shutdown.InFlightTracker
	logger    *zap.Logger
}

// NewHandler creates a webhook HTTP handler
func NewHandler(processor *webhooksvc.Processor, inflight *shutdown.InFlightTracker, logger *zap.Logger) *Handler {
	return &Handler{
		processor: processor,
		inflight:  inflight,
		logger:    logger,
	}
}

// Register mounts the webhook route on the mux
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("POST /webhooks/{gateway}",
		observability.HTTPMetricsMiddleware("/webhooks/{gateway}", http.HandlerFunc(h.HandleDelivery)))
}

// HandleDelivery processes one gateway notification
func (h *Handler) HandleDelivery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	gateway := r.PathValue("gateway")

	if !h.inflight.Add() {
		// Shutting down; a 503 makes the gateway redeliver later.
		http.Error(w, "service shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.inflight.Done()

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	if err != nil {
		h.logger.Error("Failed to read webhook body",
			zap.String("gateway", gateway),
			zap.Error(err),
		)
		h.respondError(w, gateway, start, "rejected", http.StatusBadRequest, "unreadable body")
		return
	}
	if len(body) > MaxBodyBytes {
		h.respondError(w, gateway, start, "rejected", http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	result, err := h.processor.Process(r.Context(), gateway, body, r.Header)
	if err != nil {
		h.respondDomainError(w, gateway, start, err)
		return
	}

	observability.RecordWebhookEvent(gateway, string(result.Outcome), time.Since(start).Seconds())

	h.logger.Info("Webhook delivery handled",
		zap.String("gateway", gateway),
		zap.String("outcome", string(result.Outcome)),
		zap.String("action", string(result.Action)),
		zap.String("external_id", result.Event.ExternalID),
		zap.Duration("elapsed", time.Since(start)),
	)

	h.respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"outcome": string(result.Outcome),
	})
}

func (h *Handler) respondDomainError(w http.ResponseWriter, gateway string, start time.Time, err error) {
	switch {
	case domain.IsSignatureError(err):
		observability.RecordSignatureFailure(gateway)
		h.logger.Warn("Webhook delivery rejected, signature failure",
			zap.String("gateway", gateway),
			zap.Error(err),
		)
		h.respondError(w, gateway, start, "rejected", http.StatusUnauthorized, "signature verification failed")

	case domain.IsPayloadError(err):
		h.logger.Warn("Webhook delivery rejected, bad payload",
			zap.String("gateway", gateway),
			zap.Error(err),
		)
		h.respondError(w, gateway, start, "rejected", http.StatusBadRequest, "invalid payload")

	default:
		// Transient: the durable effect did not happen, so ask the
		// gateway to redeliver.
		h.logger.Error("Webhook delivery failed",
			zap.String("gateway", gateway),
			zap.Error(err),
		)
		h.respondError(w, gateway, start, "failed", http.StatusServiceUnavailable, "temporary failure, retry")
	}
}

func (h *Handler) respondError(w http.ResponseWriter, gateway string, start time.Time, outcome string, status int, message string) {
	observability.RecordWebhookEvent(gateway, outcome, time.Since(start).Seconds())
	h.respondJSON(w, status, map[string]string{
		"status":  "error",
		"message": message,
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
