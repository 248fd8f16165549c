package models

import (
	"time"

	"github.com/google/uuid"
)

// IssuedReceiptCode keeps every code ever minted so a code is never reused,
// even across billing periods.
type IssuedReceiptCode struct {
	Code      string    `gorm:"primaryKey"`
	PaymentID uuid.UUID `gorm:"type:uuid;index"`
	IssuedAt  time.Time
}
