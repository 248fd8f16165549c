package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"estate-access-backend/internal/models"

	"github.com/google/uuid"
)

const (
	EventPaymentCreated = "payment.created"
	EventPaymentPaid    = "payment.paid"
	EventPaymentOverdue = "payment.overdue"

	EventReceiptIssued = "receipt.issued"

	processorActor = "payment-processor"
)

// PaymentEvent is what the external payment processor reports. Records are
// addressed by PaymentID or, failing that, Reference.
type PaymentEvent struct {
	Type      string `json:"-"`
	PaymentID string `json:"payment_id"`
	Reference string `json:"reference"`
	TenantID  string `json:"tenant_id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Period    string `json:"period"`
	DueDate   string `json:"due_date"` // 2006-01-02
	PaidAt    string `json:"paid_at"`  // RFC3339
}

// ApplyEvent is idempotent for replays: re-created references are rejected
// with ErrDuplicateReference and re-paid records are returned unchanged.
func (s *Service) ApplyEvent(ctx context.Context, ev PaymentEvent) (*models.PaymentRecord, error) {
	switch ev.Type {
	case EventPaymentCreated:
		in, err := ev.createInput()
		if err != nil {
			return nil, err
		}
		return s.CreatePayment(ctx, in, processorActor)

	case EventPaymentPaid:
		p, err := s.resolve(ctx, ev.PaymentID, ev.Reference)
		if err != nil {
			return nil, err
		}
		var paidAt time.Time
		if ev.PaidAt != "" {
			if paidAt, err = time.Parse(time.RFC3339, ev.PaidAt); err != nil {
				return nil, fmt.Errorf("%w: bad paid_at %q", ErrInvalidPayment, ev.PaidAt)
			}
		}
		return s.MarkPaid(ctx, p.ID, paidAt, processorActor)

	case EventPaymentOverdue:
		p, err := s.resolve(ctx, ev.PaymentID, ev.Reference)
		if err != nil {
			return nil, err
		}
		return s.MarkOverdue(ctx, p.ID, processorActor)

	default:
		return nil, fmt.Errorf("%w: unknown event type %q", ErrInvalidPayment, ev.Type)
	}
}

func (ev PaymentEvent) createInput() (CreatePaymentInput, error) {
	in := CreatePaymentInput{
		Reference: ev.Reference,
		Amount:    ev.Amount,
		Currency:  strings.ToUpper(ev.Currency),
		Period:    ev.Period,
	}

	tenantID, err := uuid.Parse(ev.TenantID)
	if err != nil {
		return in, fmt.Errorf("%w: bad tenant id %q", ErrInvalidPayment, ev.TenantID)
	}
	in.TenantID = tenantID

	if ev.PaymentID != "" {
		if in.ID, err = uuid.Parse(ev.PaymentID); err != nil {
			return in, fmt.Errorf("%w: bad payment id %q", ErrInvalidPayment, ev.PaymentID)
		}
	}

	if in.DueDate, err = time.Parse(dateLayout, ev.DueDate); err != nil {
		return in, fmt.Errorf("%w: bad due_date %q", ErrInvalidPayment, ev.DueDate)
	}
	return in, nil
}
