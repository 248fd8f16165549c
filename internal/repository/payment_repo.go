package repository

import (
	"context"
	"errors"
	"strings"

	"estate-access-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Expose DB for services that need transactions
func (r *PaymentRepository) DB() *gorm.DB {
	return r.db
}

func (r *PaymentRepository) Create(ctx context.Context, p *models.PaymentRecord) error {
	return r.db.WithContext(ctx).Create(p).Error
}

// GetByID fetch a single payment by ID
func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PaymentRecord, error) {
	var p models.PaymentRecord
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*models.PaymentRecord, error) {
	var p models.PaymentRecord
	err := r.db.WithContext(ctx).First(&p, "reference = ?", reference).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListByTenant returns a tenant's records, newest due date first.
func (r *PaymentRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]models.PaymentRecord, error) {
	var payments []models.PaymentRecord
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("due_date DESC").
		Find(&payments).Error
	return payments, err
}

// ReceiptCodesForTenant lists every active code owned by the tenant.
func (r *PaymentRepository) ReceiptCodesForTenant(ctx context.Context, tenantID uuid.UUID) ([]string, error) {
	var codes []string
	err := r.db.WithContext(ctx).
		Model(&models.PaymentRecord{}).
		Where("tenant_id = ? AND status = ? AND receipt_code IS NOT NULL", tenantID, models.PaymentStatusPaid).
		Pluck("receipt_code", &codes).Error
	return codes, err
}

type PaymentFilter struct {
	TenantID *uuid.UUID
	Statuses []models.PaymentStatus
	Period   string
	Query    string // matches reference or receipt code
	Limit    int
	Offset   int
}

// Search used by the admin payment list with optional filters
func (r *PaymentRepository) Search(ctx context.Context, f PaymentFilter) ([]models.PaymentRecord, error) {
	var payments []models.PaymentRecord

	q := r.db.WithContext(ctx).Model(&models.PaymentRecord{})

	if f.TenantID != nil {
		q = q.Where("tenant_id = ?", *f.TenantID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if f.Period != "" {
		q = q.Where("period = ?", f.Period)
	}
	if f.Query != "" {
		like := "%" + strings.ToUpper(f.Query) + "%"
		q = q.Where("UPPER(reference) LIKE ? OR UPPER(receipt_code) LIKE ?", like, like)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	err := q.Order("due_date DESC, reference ASC").Find(&payments).Error
	return payments, err
}

type StatusTotal struct {
	Status models.PaymentStatus
	Count  int64
	Sum    int64
}

func (r *PaymentRepository) TotalsByStatus(ctx context.Context) ([]StatusTotal, error) {
	var rows []StatusTotal
	err := r.db.WithContext(ctx).
		Model(&models.PaymentRecord{}).
		Select("status, COUNT(*) as count, COALESCE(SUM(amount),0) as sum").
		Group("status").
		Scan(&rows).Error
	return rows, err
}

type TenantStatusCount struct {
	TenantID uuid.UUID
	Status   models.PaymentStatus
	Count    int64
}

func (r *PaymentRepository) StatusCountsByTenant(ctx context.Context, tenantIDs []uuid.UUID) ([]TenantStatusCount, error) {
	var rows []TenantStatusCount
	q := r.db.WithContext(ctx).
		Model(&models.PaymentRecord{}).
		Select("tenant_id, status, COUNT(*) as count")
	if tenantIDs != nil {
		if len(tenantIDs) == 0 {
			return rows, nil
		}
		q = q.Where("tenant_id IN ?", tenantIDs)
	}
	err := q.Group("tenant_id, status").Scan(&rows).Error
	return rows, err
}

// LastPaidPeriods maps each tenant to the period of its most recent payment.
func (r *PaymentRepository) LastPaidPeriods(ctx context.Context, tenantIDs []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string)
	if len(tenantIDs) == 0 {
		return out, nil
	}

	var paid []models.PaymentRecord
	err := r.db.WithContext(ctx).
		Select("tenant_id, period, paid_at").
		Where("tenant_id IN ? AND status = ?", tenantIDs, models.PaymentStatusPaid).
		Order("paid_at DESC").
		Find(&paid).Error
	if err != nil {
		return nil, err
	}
	for _, p := range paid {
		if _, ok := out[p.TenantID]; !ok {
			out[p.TenantID] = p.Period
		}
	}
	return out, nil
}

func (r *PaymentRepository) AuditTrail(ctx context.Context, paymentID uuid.UUID) ([]models.PaymentAuditLog, error) {
	var logs []models.PaymentAuditLog
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Find(&logs).Error
	return logs, err
}
