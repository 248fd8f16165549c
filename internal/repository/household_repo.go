package repository

import (
	"context"

	"estate-access-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type HouseholdRepository struct {
	db *gorm.DB
}

func NewHouseholdRepository(db *gorm.DB) *HouseholdRepository {
	return &HouseholdRepository{db: db}
}

func (r *HouseholdRepository) Create(ctx context.Context, m *models.HouseholdMember) error {
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *HouseholdRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.HouseholdMember, error) {
	var members []models.HouseholdMember
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&members).Error
	return members, err
}

func (r *HouseholdRepository) All(ctx context.Context) ([]models.HouseholdMember, error) {
	var members []models.HouseholdMember
	err := r.db.WithContext(ctx).Order("tenant_id, created_at ASC").Find(&members).Error
	return members, err
}

// Delete removes a member only if it belongs to the given tenant.
func (r *HouseholdRepository) Delete(ctx context.Context, tenantID, memberID uuid.UUID) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", memberID, tenantID).
		Delete(&models.HouseholdMember{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *HouseholdRepository) CountByTenant(ctx context.Context, tenantIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	out := make(map[uuid.UUID]int)
	if len(tenantIDs) == 0 {
		return out, nil
	}

	var rows []struct {
		TenantID uuid.UUID
		Count    int
	}
	err := r.db.WithContext(ctx).
		Model(&models.HouseholdMember{}).
		Select("tenant_id, COUNT(*) as count").
		Where("tenant_id IN ?", tenantIDs).
		Group("tenant_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.TenantID] = row.Count
	}
	return out, nil
}
