package testutil

import (
	"testing"
	"time"

	"estate-access-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func CreateTenant(t *testing.T, db *gorm.DB, first, last, unit, phone string) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{
		ID:        uuid.New(),
		FirstName: first,
		LastName:  last,
		Email:     uuid.NewString()[:8] + "@example.com",
		Phone:     phone,
		Unit:      unit,
		Estate:    "Palm Gardens Estate",
	}
	if err := db.Create(tenant).Error; err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	return tenant
}

func CreateMember(t *testing.T, db *gorm.DB, tenantID uuid.UUID, name, memberType string) *models.HouseholdMember {
	t.Helper()
	m := &models.HouseholdMember{
		ID:       uuid.New(),
		TenantID: tenantID,
		Name:     name,
		Type:     memberType,
	}
	if err := db.Create(m).Error; err != nil {
		t.Fatalf("create member: %v", err)
	}
	return m
}

// CreatePayment inserts a record directly, bypassing billing rules. A non-empty
// code is only meaningful together with PaymentStatusPaid.
func CreatePayment(t *testing.T, db *gorm.DB, tenantID uuid.UUID, period string, status models.PaymentStatus, code string) *models.PaymentRecord {
	t.Helper()
	p := &models.PaymentRecord{
		ID:        uuid.New(),
		Reference: "PAY-" + uuid.NewString()[:8],
		TenantID:  tenantID,
		Amount:    5000000,
		Currency:  "NGN",
		Period:    period,
		DueDate:   time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
		Status:    status,
	}
	if code != "" {
		paidAt := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
		p.ReceiptCode = &code
		p.PaidAt = &paidAt
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("create payment: %v", err)
	}
	return p
}
