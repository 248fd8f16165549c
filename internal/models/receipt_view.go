package models

import (
	"time"

	"github.com/google/uuid"
)

// ReceiptView is the read model behind a gate verification: a paid payment
// joined with its tenant and household size.
type ReceiptView struct {
	Code           string    `db:"receipt_code"`
	PaymentID      uuid.UUID `db:"payment_id"`
	TenantID       uuid.UUID `db:"tenant_id"`
	FirstName      string    `db:"first_name"`
	LastName       string    `db:"last_name"`
	Unit           string    `db:"unit"`
	Phone          string    `db:"phone"`
	Period         string    `db:"period"`
	PaidAt         time.Time `db:"paid_at"`
	HouseholdCount int       `db:"household_count"`
}

func (v *ReceiptView) TenantName() string {
	t := Tenant{FirstName: v.FirstName, LastName: v.LastName}
	return t.FullName()
}
