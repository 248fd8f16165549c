package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleTenant = "tenant"
	RoleAdmin  = "admin"
)

type Account struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string     `gorm:"uniqueIndex" json:"email"`
	PasswordHash string     `json:"-"`
	Role         string     `gorm:"index" json:"role"`
	TenantID     *uuid.UUID `gorm:"type:uuid" json:"tenant_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
