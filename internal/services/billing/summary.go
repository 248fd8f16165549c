package billing

import (
	"context"

	"estate-access-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TenantStatusActive  = "active"
	TenantStatusPending = "pending"
	TenantStatusOverdue = "overdue"
)

// minorUnitExponent converts minor units (kobo, cents) into major units.
const minorUnitExponent = -2

type Summary struct {
	TotalTenants   int64           `json:"total_tenants"`
	ActiveTenants  int             `json:"active_tenants"`
	PendingTenants int             `json:"pending_tenants"`
	OverdueTenants int             `json:"overdue_tenants"`
	PaidCount      int64           `json:"paid_count"`
	PendingCount   int64           `json:"pending_count"`
	OverdueCount   int64           `json:"overdue_count"`
	Collected      decimal.Decimal `json:"collected"`
	Outstanding    decimal.Decimal `json:"outstanding"`
	Currency       string          `json:"currency"`
}

func MajorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, minorUnitExponent)
}

func (s *Service) Summary(ctx context.Context) (Summary, error) {
	sum := Summary{
		Collected:   decimal.Zero,
		Outstanding: decimal.Zero,
		Currency:    s.currency,
	}

	totals, err := s.payments.TotalsByStatus(ctx)
	if err != nil {
		return sum, err
	}
	for _, row := range totals {
		switch row.Status {
		case models.PaymentStatusPaid:
			sum.PaidCount = row.Count
			sum.Collected = sum.Collected.Add(MajorUnits(row.Sum))
		case models.PaymentStatusPending:
			sum.PendingCount = row.Count
			sum.Outstanding = sum.Outstanding.Add(MajorUnits(row.Sum))
		case models.PaymentStatusOverdue:
			sum.OverdueCount = row.Count
			sum.Outstanding = sum.Outstanding.Add(MajorUnits(row.Sum))
		}
	}

	if sum.TotalTenants, err = s.tenants.Count(ctx); err != nil {
		return sum, err
	}

	statuses, err := s.TenantStatuses(ctx, nil)
	if err != nil {
		return sum, err
	}
	for _, st := range statuses {
		switch st {
		case TenantStatusOverdue:
			sum.OverdueTenants++
		case TenantStatusPending:
			sum.PendingTenants++
		}
	}
	sum.ActiveTenants = int(sum.TotalTenants) - sum.OverdueTenants - sum.PendingTenants

	return sum, nil
}

// TenantStatuses derives each tenant's standing: overdue if any record is
// overdue, else pending if any is pending, else active. A nil ids slice
// covers every tenant with at least one record; tenants without records are
// absent from the map and count as active.
func (s *Service) TenantStatuses(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	rows, err := s.payments.StatusCountsByTenant(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make(map[uuid.UUID]string)
	for _, row := range rows {
		if row.Count == 0 {
			continue
		}
		current := out[row.TenantID]
		switch row.Status {
		case models.PaymentStatusOverdue:
			out[row.TenantID] = TenantStatusOverdue
		case models.PaymentStatusPending:
			if current != TenantStatusOverdue {
				out[row.TenantID] = TenantStatusPending
			}
		default:
			if current == "" {
				out[row.TenantID] = TenantStatusActive
			}
		}
	}
	return out, nil
}
