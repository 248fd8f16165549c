package models

import (
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusOverdue PaymentStatus = "overdue"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusOverdue:
		return true
	}
	return false
}

// PaymentRecord is one service-charge billing period for a tenant.
// ReceiptCode is set only once the record is paid.
type PaymentRecord struct {
	ID          uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	Reference   string        `gorm:"uniqueIndex" json:"reference"`
	TenantID    uuid.UUID     `gorm:"type:uuid;index" json:"tenant_id"`
	Amount      int64         `json:"amount"` // minor currency units
	Currency    string        `json:"currency"`
	Period      string        `gorm:"index" json:"period"`
	DueDate     time.Time     `json:"due_date"`
	PaidAt      *time.Time    `json:"paid_at,omitempty"`
	Status      PaymentStatus `gorm:"index" json:"status"`
	ReceiptCode *string       `gorm:"uniqueIndex" json:"receipt_code,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// CanTransitionTo reports whether the payment processor may move the record
// into the given status. Paid is terminal.
func (p *PaymentRecord) CanTransitionTo(next PaymentStatus) bool {
	switch p.Status {
	case PaymentStatusPending:
		return next == PaymentStatusPaid || next == PaymentStatusOverdue
	case PaymentStatusOverdue:
		return next == PaymentStatusPaid
	default:
		return false
	}
}

func (p *PaymentRecord) IsPaid() bool {
	return p.Status == PaymentStatusPaid
}
