package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"estate-access-backend/internal/models"
	"estate-access-backend/internal/services/billing"
)

// Envelope is the wire shape on the payment topic.
type Envelope struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
}

type Applier interface {
	ApplyEvent(ctx context.Context, ev billing.PaymentEvent) (*models.PaymentRecord, error)
}

var _ Applier = (*billing.Service)(nil)

// PaymentHandler feeds processor events into billing. Replays and bad
// payloads are logged and dropped; only store failures are returned.
type PaymentHandler struct {
	applier Applier
	timeout time.Duration
	logger  *slog.Logger
}

func NewPaymentHandler(applier Applier, logger *slog.Logger) *PaymentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaymentHandler{
		applier: applier,
		timeout: 10 * time.Second,
		logger:  logger.With("component", "payment-events"),
	}
}

func (h *PaymentHandler) Handle(ctx context.Context, msg []byte) error {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		h.logger.Warn("invalid payment event payload", "error", err)
		return nil
	}

	var ev billing.PaymentEvent
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			h.logger.Warn("invalid payment event data", "event_type", env.EventType, "error", err)
			return nil
		}
	}
	// processors emit both payment.paid and payment_paid
	ev.Type = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(env.EventType)), "_", ".")

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	p, err := h.applier.ApplyEvent(ctx, ev)
	switch {
	case err == nil:
		h.logger.Info("payment event applied", "event_type", ev.Type, "payment_id", p.ID, "status", p.Status)
		return nil
	case errors.Is(err, billing.ErrDuplicateReference):
		h.logger.Info("payment event replayed", "event_type", ev.Type, "reference", ev.Reference)
		return nil
	case errors.Is(err, billing.ErrInvalidPayment),
		errors.Is(err, billing.ErrInvalidTransition),
		errors.Is(err, billing.ErrNotFound),
		errors.Is(err, billing.ErrTenantNotFound):
		h.logger.Warn("payment event rejected", "event_type", ev.Type, "reference", ev.Reference, "error", err)
		return nil
	default:
		return fmt.Errorf("apply %s: %w", ev.Type, err)
	}
}
