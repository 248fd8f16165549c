package repository

import (
	"context"
	"errors"
	"strings"

	"estate-access-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type TenantRepository struct {
	db *gorm.DB
}

func NewTenantRepository(db *gorm.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) DB() *gorm.DB {
	return r.db
}

func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	var t models.Tenant
	err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *TenantRepository) All(ctx context.Context) ([]models.Tenant, error) {
	var tenants []models.Tenant
	err := r.db.WithContext(ctx).Order("last_name ASC, first_name ASC").Find(&tenants).Error
	return tenants, err
}

// FindByUnit matches the unit label case-insensitively, ignoring surrounding spaces.
func (r *TenantRepository) FindByUnit(ctx context.Context, unit string) ([]models.Tenant, error) {
	var tenants []models.Tenant
	err := r.db.WithContext(ctx).
		Where("LOWER(unit) = ?", strings.ToLower(strings.TrimSpace(unit))).
		Find(&tenants).Error
	return tenants, err
}

// Search performs a simple LIKE over name and unit for the admin directory
func (r *TenantRepository) Search(ctx context.Context, query string) ([]models.Tenant, error) {
	var tenants []models.Tenant

	q := r.db.WithContext(ctx).Model(&models.Tenant{})
	if query = strings.TrimSpace(query); query != "" {
		like := "%" + strings.ToLower(query) + "%"
		q = q.Where(
			"LOWER(first_name || ' ' || last_name) LIKE ? OR LOWER(unit) LIKE ?",
			like, like,
		)
	}

	err := q.Order("last_name ASC, first_name ASC").Find(&tenants).Error
	return tenants, err
}

func (r *TenantRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.Tenant{}).Count(&n).Error
	return n, err
}
