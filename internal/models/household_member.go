package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	MemberTypeFamily = "family"
	MemberTypeWorker = "worker"
)

// HouseholdMember is covered by the owning tenant's paid status at the gate.
// Family members carry a Relationship, workers a Role.
type HouseholdMember struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID     uuid.UUID `gorm:"type:uuid;index" json:"tenant_id"`
	Name         string    `json:"name"`
	Type         string    `gorm:"index" json:"type"`
	Relationship string    `json:"relationship,omitempty"`
	Role         string    `json:"role,omitempty"`
	Phone        string    `json:"phone"`
	CreatedAt    time.Time `json:"created_at"`
}
