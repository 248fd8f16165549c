package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type PaymentAuditLog struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	PaymentID   uuid.UUID      `gorm:"type:uuid;index" json:"payment_id"`
	Action      string         `json:"action"`
	FromStatus  PaymentStatus  `json:"from_status"`
	ToStatus    PaymentStatus  `json:"to_status"`
	PerformedBy string         `json:"performed_by"`
	Details     datatypes.JSON `json:"details"`
	CreatedAt   time.Time      `json:"created_at"`
}
