package events

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/predictkings/billing-service/internal/domain"
)

// AnalyticsHandler logs activation facts in a shape the analytics pipeline
// scrapes from structured logs.
type AnalyticsHandler struct {
	logger *zap.Logger
}

// NewAnalyticsHandler creates the analytics event handler
func NewAnalyticsHandler(logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{logger: logger}
}

func (h *AnalyticsHandler) Name() string { return "analytics" }

func (h *AnalyticsHandler) Handle(ctx context.Context, event domain.Event) error {
	activated, ok := event.(domain.SubscriptionActivatedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %s", event.EventType())
	}

	h.logger.Info("Subscription activation",
		zap.String("event", "subscription_activated"),
		zap.String("user_id", activated.UserID.String()),
		zap.String("subscription_id", activated.SubscriptionID.String()),
		zap.String("plan", string(activated.Plan)),
		zap.String("amount", activated.AmountPaid.String()),
		zap.String("currency", activated.Currency),
		zap.Bool("renewal", activated.Renewal),
		zap.Time("expiry_date", activated.ExpiryDate),
	)

	return nil
}

// Notifier sends user-facing confirmation messages.
type Notifier interface {
	SendActivationNotice(ctx context.Context, userID string, plan domain.PlanType, renewal bool) error
}

// NotificationHandler pushes activation notices to the notification
// service. A nil notifier makes it log-only, which is how development
// environments run.
type NotificationHandler struct {
	notifier Notifier
	logger   *zap.Logger
}

// NewNotificationHandler creates the notification event handler
func NewNotificationHandler(notifier Notifier, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifier: notifier,
		logger:   logger,
	}
}

func (h *NotificationHandler) Name() string { return "notifications" }

func (h *NotificationHandler) Handle(ctx context.Context, event domain.Event) error {
	activated, ok := event.(domain.SubscriptionActivatedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %s", event.EventType())
	}

	if h.notifier == nil {
		h.logger.Info("Notification skipped, no notifier configured",
			zap.String("user_id", activated.UserID.String()),
			zap.Bool("renewal", activated.Renewal),
		)
		return nil
	}

	return h.notifier.SendActivationNotice(ctx, activated.UserID.String(), activated.Plan, activated.Renewal)
}
