// Package billing records service-charge payments and their status changes.
// It is the only writer of the receipt code mapping: a code is minted in the
// same transaction that moves a record to paid.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"estate-access-backend/internal/models"
	"estate-access-backend/internal/receipt"
	"estate-access-backend/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound           = errors.New("payment not found")
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrInvalidPayment     = errors.New("invalid payment")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrDuplicateReference = errors.New("payment reference already exists")
	ErrCodeExhausted      = errors.New("could not mint a unique receipt code")

	errConcurrentUpdate = errors.New("payment changed concurrently")
)

const (
	maxCodeDraws   = 10
	maxTxAttempts  = 3
	dateLayout     = "2006-01-02"
	referenceStart = "PAY-"
)

// ReceiptIssued is announced once a code has been committed.
type ReceiptIssued struct {
	PaymentID uuid.UUID `json:"payment_id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Code      string    `json:"code"`
	Period    string    `json:"period"`
	Amount    int64     `json:"amount"`
	PaidAt    time.Time `json:"paid_at"`
}

type Publisher interface {
	PublishReceiptIssued(ctx context.Context, r ReceiptIssued) error
}

type noopPublisher struct{}

func (noopPublisher) PublishReceiptIssued(context.Context, ReceiptIssued) error { return nil }

type Service struct {
	db        *gorm.DB
	payments  *repository.PaymentRepository
	tenants   *repository.TenantRepository
	codes     *receipt.Generator
	publisher Publisher
	currency  string
	logger    *slog.Logger
	now       func() time.Time
}

type Config struct {
	ReceiptPrefix string
	Currency      string
}

func NewService(
	payments *repository.PaymentRepository,
	tenants *repository.TenantRepository,
	publisher Publisher,
	cfg Config,
	logger *slog.Logger,
) *Service {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Currency == "" {
		cfg.Currency = "NGN"
	}
	return &Service{
		db:        payments.DB(),
		payments:  payments,
		tenants:   tenants,
		codes:     receipt.NewGenerator(cfg.ReceiptPrefix),
		publisher: publisher,
		currency:  cfg.Currency,
		logger:    logger.With("component", "billing"),
		now:       time.Now,
	}
}

type CreatePaymentInput struct {
	ID        uuid.UUID // optional; assigned by the processor when it owns ids
	Reference string    // optional; generated when empty
	TenantID  uuid.UUID
	Amount    int64 // minor units
	Currency  string
	Period    string
	DueDate   time.Time
}

// CreatePayment inserts a pending record.
func (s *Service) CreatePayment(ctx context.Context, in CreatePaymentInput, actor string) (*models.PaymentRecord, error) {
	in.Period = strings.TrimSpace(in.Period)
	in.Reference = strings.ToUpper(strings.TrimSpace(in.Reference))
	switch {
	case in.Amount <= 0:
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidPayment)
	case in.Period == "":
		return nil, fmt.Errorf("%w: period is required", ErrInvalidPayment)
	case in.DueDate.IsZero():
		return nil, fmt.Errorf("%w: due date is required", ErrInvalidPayment)
	}

	if _, err := s.tenants.GetByID(ctx, in.TenantID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}

	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	if in.Reference == "" {
		in.Reference = referenceStart + strings.ToUpper(strings.ReplaceAll(in.ID.String(), "-", "")[:10])
	}
	if in.Currency == "" {
		in.Currency = s.currency
	}

	now := s.now()
	p := &models.PaymentRecord{
		ID:        in.ID,
		Reference: in.Reference,
		TenantID:  in.TenantID,
		Amount:    in.Amount,
		Currency:  in.Currency,
		Period:    in.Period,
		DueDate:   in.DueDate,
		Status:    models.PaymentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(p).Error; err != nil {
			return err
		}
		return s.audit(tx, p.ID, "created", "", models.PaymentStatusPending, actor, map[string]interface{}{
			"reference": p.Reference,
			"amount":    p.Amount,
			"period":    p.Period,
		})
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrDuplicateReference
	}
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	s.logger.Info("payment created", "payment_id", p.ID, "reference", p.Reference, "tenant_id", p.TenantID)
	return p, nil
}

// MarkPaid moves a pending or overdue record to paid and assigns it a fresh
// receipt code. Marking an already paid record returns it unchanged.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID, paidAt time.Time, actor string) (*models.PaymentRecord, error) {
	if paidAt.IsZero() {
		paidAt = s.now()
	}

	var (
		p      *models.PaymentRecord
		issued bool
		err    error
	)
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		p, issued, err = s.markPaidOnce(ctx, id, paidAt, actor)
		if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, errConcurrentUpdate) {
			s.logger.Warn("mark paid retry", "payment_id", id, "attempt", attempt, "error", err)
			continue
		}
		break
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, errConcurrentUpdate) {
		return nil, ErrCodeExhausted
	}
	if err != nil {
		return nil, err
	}

	if issued {
		s.logger.Info("payment marked paid", "payment_id", p.ID, "reference", p.Reference)
		evt := ReceiptIssued{
			PaymentID: p.ID,
			TenantID:  p.TenantID,
			Code:      *p.ReceiptCode,
			Period:    p.Period,
			Amount:    p.Amount,
			PaidAt:    *p.PaidAt,
		}
		if err := s.publisher.PublishReceiptIssued(ctx, evt); err != nil {
			s.logger.Error("publish receipt issued failed", "payment_id", p.ID, "error", err)
		}
	}
	return p, nil
}

func (s *Service) markPaidOnce(ctx context.Context, id uuid.UUID, paidAt time.Time, actor string) (*models.PaymentRecord, bool, error) {
	var (
		p      models.PaymentRecord
		issued bool
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&p, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if p.IsPaid() {
			return nil
		}
		if !p.CanTransitionTo(models.PaymentStatusPaid) {
			return ErrInvalidTransition
		}

		code, err := s.uniqueCode(tx)
		if err != nil {
			return err
		}
		if err := tx.Create(&models.IssuedReceiptCode{Code: code, PaymentID: p.ID, IssuedAt: paidAt}).Error; err != nil {
			return err
		}

		from := p.Status
		now := s.now()
		res := tx.Model(&models.PaymentRecord{}).
			Where("id = ? AND status IN ?", p.ID, []models.PaymentStatus{models.PaymentStatusPending, models.PaymentStatusOverdue}).
			Updates(map[string]interface{}{
				"status":       models.PaymentStatusPaid,
				"receipt_code": code,
				"paid_at":      paidAt,
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errConcurrentUpdate
		}

		p.Status = models.PaymentStatusPaid
		p.ReceiptCode = &code
		p.PaidAt = &paidAt
		p.UpdatedAt = now
		issued = true

		return s.audit(tx, p.ID, "paid", from, models.PaymentStatusPaid, actor, map[string]interface{}{
			"receipt_code": code,
			"paid_at":      paidAt.UTC().Format(time.RFC3339),
		})
	})
	if err != nil {
		return nil, false, err
	}
	return &p, issued, nil
}

// uniqueCode draws codes until one has never been issued before.
func (s *Service) uniqueCode(tx *gorm.DB) (string, error) {
	for i := 0; i < maxCodeDraws; i++ {
		code, err := s.codes.Next()
		if err != nil {
			return "", err
		}
		var n int64
		if err := tx.Model(&models.IssuedReceiptCode{}).Where("code = ?", code).Count(&n).Error; err != nil {
			return "", err
		}
		if n == 0 {
			return code, nil
		}
	}
	return "", ErrCodeExhausted
}

// MarkOverdue moves a pending record to overdue. No code is assigned.
func (s *Service) MarkOverdue(ctx context.Context, id uuid.UUID, actor string) (*models.PaymentRecord, error) {
	var p models.PaymentRecord

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&p, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if p.Status == models.PaymentStatusOverdue {
			return nil
		}
		if !p.CanTransitionTo(models.PaymentStatusOverdue) {
			return ErrInvalidTransition
		}

		now := s.now()
		res := tx.Model(&models.PaymentRecord{}).
			Where("id = ? AND status = ?", p.ID, models.PaymentStatusPending).
			Updates(map[string]interface{}{
				"status":     models.PaymentStatusOverdue,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrInvalidTransition
		}
		p.Status = models.PaymentStatusOverdue
		p.UpdatedAt = now
		return s.audit(tx, p.ID, "overdue", models.PaymentStatusPending, models.PaymentStatusOverdue, actor, nil)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) audit(tx *gorm.DB, paymentID uuid.UUID, action string, from, to models.PaymentStatus, actor string, details map[string]interface{}) error {
	entry := &models.PaymentAuditLog{
		ID:          uuid.New(),
		PaymentID:   paymentID,
		Action:      action,
		FromStatus:  from,
		ToStatus:    to,
		PerformedBy: actor,
		CreatedAt:   s.now(),
	}
	if details != nil {
		data, err := json.Marshal(details)
		if err != nil {
			return err
		}
		entry.Details = data
	}
	return tx.Create(entry).Error
}

func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error) {
	p, err := s.payments.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *Service) ListPayments(ctx context.Context, f repository.PaymentFilter) ([]models.PaymentRecord, error) {
	return s.payments.Search(ctx, f)
}

func (s *Service) TenantPayments(ctx context.Context, tenantID uuid.UUID) ([]models.PaymentRecord, error) {
	return s.payments.ListByTenant(ctx, tenantID)
}

func (s *Service) AuditTrail(ctx context.Context, id uuid.UUID) ([]models.PaymentAuditLog, error) {
	if _, err := s.GetPayment(ctx, id); err != nil {
		return nil, err
	}
	return s.payments.AuditTrail(ctx, id)
}

// ReceiptCodes lists the active codes of a tenant.
func (s *Service) ReceiptCodes(ctx context.Context, tenantID uuid.UUID) ([]string, error) {
	return s.payments.ReceiptCodesForTenant(ctx, tenantID)
}

func (s *Service) resolve(ctx context.Context, paymentID, reference string) (*models.PaymentRecord, error) {
	if paymentID != "" {
		id, err := uuid.Parse(paymentID)
		if err != nil {
			return nil, fmt.Errorf("%w: bad payment id %q", ErrInvalidPayment, paymentID)
		}
		return s.GetPayment(ctx, id)
	}
	if reference != "" {
		p, err := s.payments.GetByReference(ctx, strings.ToUpper(strings.TrimSpace(reference)))
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return p, err
	}
	return nil, fmt.Errorf("%w: payment id or reference required", ErrInvalidPayment)
}
