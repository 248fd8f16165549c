package billing

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"estate-access-backend/internal/models"
	"estate-access-backend/internal/services/matching"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrImportNotFound = errors.New("import batch not found")

const progressEvery = 100

var requiredImportColumns = []string{"amount", "period", "due_date"}

// StartImport records a new batch in processing state.
func (s *Service) StartImport(ctx context.Context, filename string) (*models.ImportBatch, error) {
	now := s.now()
	batch := &models.ImportBatch{
		ID:        uuid.New(),
		Filename:  filename,
		Status:    models.ImportStatusProcessing,
		StartedAt: now,
		CreatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(batch).Error; err != nil {
		return nil, fmt.Errorf("create import batch: %w", err)
	}
	return batch, nil
}

func (s *Service) GetImport(ctx context.Context, id uuid.UUID) (*models.ImportBatch, error) {
	var batch models.ImportBatch
	err := s.db.WithContext(ctx).First(&batch, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrImportNotFound
	}
	if err != nil {
		return nil, err
	}
	return &batch, nil
}

type importCounts struct {
	total, processed, created, paid, skipped int
}

// RunImport reads payment rows from CSV with a header line naming the
// columns reference, tenant, unit, amount, period, due_date, status and
// paid_date. Amounts are in major units. Rows that cannot be tied to exactly
// one tenant, or that repeat an existing reference, are skipped.
func (s *Service) RunImport(ctx context.Context, batchID uuid.UUID, r io.Reader, actor string) (*models.ImportBatch, error) {
	br := bufio.NewReader(r)
	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	if sample, _ := br.Peek(1024); !strings.Contains(string(sample), ",") && strings.Contains(string(sample), "\t") {
		reader.Comma = '\t'
	}

	header, err := reader.Read()
	if err != nil {
		return s.failImport(ctx, batchID, fmt.Errorf("read header: %w", err))
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, c := range requiredImportColumns {
		if _, ok := cols[c]; !ok {
			return s.failImport(ctx, batchID, fmt.Errorf("missing column %q", c))
		}
	}
	_, hasTenant := cols["tenant"]
	_, hasUnit := cols["unit"]
	if !hasTenant && !hasUnit {
		return s.failImport(ctx, batchID, errors.New("missing tenant or unit column"))
	}

	resolver := &tenantResolver{svc: s}
	var n importCounts

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		n.total++
		if err != nil {
			s.logger.Warn("import: unreadable row", "batch_id", batchID, "row", n.total, "error", err)
			n.skipped++
			n.processed++
			continue
		}
		if strings.TrimSpace(strings.Join(record, "")) == "" {
			n.total--
			continue
		}

		field := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		created, paid, err := s.importRow(ctx, resolver, field, actor)
		n.processed++
		switch {
		case created:
			n.created++
			if paid {
				n.paid++
			}
			if err != nil {
				s.logger.Warn("import: row created but status not applied", "batch_id", batchID, "row", n.total, "error", err)
			}
		case err != nil:
			s.logger.Warn("import: row skipped", "batch_id", batchID, "row", n.total, "error", err)
			n.skipped++
		}

		if n.processed%progressEvery == 0 {
			s.updateImportProgress(ctx, batchID, n)
		}
	}

	return s.completeImport(ctx, batchID, n)
}

func (s *Service) importRow(ctx context.Context, resolver *tenantResolver, field func(string) string, actor string) (created, paid bool, err error) {
	amount, err := parseMajorAmount(field("amount"))
	if err != nil {
		return false, false, err
	}
	due, err := parseDate(field("due_date"))
	if err != nil {
		return false, false, fmt.Errorf("due_date: %w", err)
	}

	status := models.PaymentStatus(strings.ToLower(field("status")))
	if status == "" {
		status = models.PaymentStatusPending
	}
	if !status.Valid() {
		return false, false, fmt.Errorf("unknown status %q", status)
	}

	var paidAt time.Time
	if raw := field("paid_date"); raw != "" && status == models.PaymentStatusPaid {
		if paidAt, err = parseDate(raw); err != nil {
			return false, false, fmt.Errorf("paid_date: %w", err)
		}
	}

	tenant, err := resolver.resolve(ctx, field("unit"), field("tenant"))
	if err != nil {
		return false, false, err
	}

	p, err := s.CreatePayment(ctx, CreatePaymentInput{
		Reference: field("reference"),
		TenantID:  tenant.ID,
		Amount:    amount,
		Period:    field("period"),
		DueDate:   due,
	}, actor)
	if err != nil {
		return false, false, err
	}

	switch status {
	case models.PaymentStatusPaid:
		if _, err := s.MarkPaid(ctx, p.ID, paidAt, actor); err != nil {
			return true, false, err
		}
		return true, true, nil
	case models.PaymentStatusOverdue:
		if _, err := s.MarkOverdue(ctx, p.ID, actor); err != nil {
			return true, false, err
		}
	}
	return true, false, nil
}

func (s *Service) updateImportProgress(ctx context.Context, batchID uuid.UUID, n importCounts) {
	err := s.db.WithContext(ctx).Model(&models.ImportBatch{}).
		Where("id = ?", batchID).
		Updates(map[string]interface{}{
			"processed_rows": n.processed,
			"created_count":  n.created,
			"paid_count":     n.paid,
			"skipped_count":  n.skipped,
		}).Error
	if err != nil {
		s.logger.Warn("import: progress update failed", "batch_id", batchID, "error", err)
	}
}

func (s *Service) completeImport(ctx context.Context, batchID uuid.UUID, n importCounts) (*models.ImportBatch, error) {
	err := s.db.WithContext(ctx).Model(&models.ImportBatch{}).
		Where("id = ?", batchID).
		Updates(map[string]interface{}{
			"total_rows":     n.total,
			"processed_rows": n.processed,
			"created_count":  n.created,
			"paid_count":     n.paid,
			"skipped_count":  n.skipped,
			"status":         models.ImportStatusCompleted,
			"completed_at":   s.now(),
		}).Error
	if err != nil {
		return nil, fmt.Errorf("complete import: %w", err)
	}
	s.logger.Info("import completed", "batch_id", batchID, "rows", n.total, "created", n.created, "skipped", n.skipped)
	return s.GetImport(ctx, batchID)
}

func (s *Service) failImport(ctx context.Context, batchID uuid.UUID, cause error) (*models.ImportBatch, error) {
	err := s.db.WithContext(ctx).Model(&models.ImportBatch{}).
		Where("id = ?", batchID).
		Updates(map[string]interface{}{
			"status":       models.ImportStatusFailed,
			"error":        cause.Error(),
			"completed_at": s.now(),
		}).Error
	if err != nil {
		return nil, fmt.Errorf("mark import failed: %w", err)
	}
	s.logger.Warn("import failed", "batch_id", batchID, "error", cause)
	batch, err := s.GetImport(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return batch, cause
}

// tenantResolver ties an import row to a tenant: by exact unit first, then
// by fuzzy name match. The directory is loaded once per import.
type tenantResolver struct {
	svc    *Service
	all    []models.Tenant
	loaded bool
}

func (r *tenantResolver) resolve(ctx context.Context, unit, name string) (*models.Tenant, error) {
	if unit != "" {
		byUnit, err := r.svc.tenants.FindByUnit(ctx, unit)
		if err != nil {
			return nil, err
		}
		if len(byUnit) == 1 {
			return &byUnit[0], nil
		}
		if name == "" {
			return nil, fmt.Errorf("%w: %d tenants in unit %q", ErrTenantNotFound, len(byUnit), unit)
		}
		if len(byUnit) > 1 {
			return pick(name, byUnit)
		}
	}
	if name == "" {
		return nil, ErrTenantNotFound
	}

	if !r.loaded {
		all, err := r.svc.tenants.All(ctx)
		if err != nil {
			return nil, err
		}
		r.all, r.loaded = all, true
	}
	return pick(name, r.all)
}

func pick(name string, candidates []models.Tenant) (*models.Tenant, error) {
	m := matching.BestTenantMatch(name, candidates)
	if !m.Accepted() {
		return nil, fmt.Errorf("%w: no confident match for %q (score %.0f)", ErrTenantNotFound, name, m.Score)
	}
	return m.Tenant, nil
}

// parseMajorAmount turns "50,000" or "₦50000.50" into minor units.
func parseMajorAmount(raw string) (int64, error) {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return -1
		}
	}, raw)
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("%w: bad amount %q", ErrInvalidPayment, raw)
	}
	minor := d.Shift(-minorUnitExponent)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("%w: amount %q has sub-minor precision", ErrInvalidPayment, raw)
	}
	if !minor.IsPositive() {
		return 0, fmt.Errorf("%w: amount must be positive", ErrInvalidPayment)
	}
	return minor.IntPart(), nil
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range []string{dateLayout, "02-01-2006"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected yyyy-mm-dd or dd-mm-yyyy", raw)
}
