// Package directory owns tenant accounts and household membership.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"sort"
	"strings"
	"sync"
	"time"

	"estate-access-backend/internal/auth"
	"estate-access-backend/internal/models"
	"estate-access-backend/internal/repository"
	"estate-access-backend/internal/services/billing"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrEmailTaken     = errors.New("email already registered")
	ErrInvalidInput   = errors.New("invalid input")
	ErrTenantNotFound = errors.New("tenant not found")
	ErrMemberNotFound = errors.New("household member not found")
)

const minPasswordLength = 8

// Invalidator drops cached verification results for receipt codes.
type Invalidator interface {
	Forget(ctx context.Context, codes ...string) error
}

type Service struct {
	db        *gorm.DB
	tenants   *repository.TenantRepository
	accounts  *repository.AccountRepository
	household *repository.HouseholdRepository
	payments  *repository.PaymentRepository
	billing   *billing.Service
	verifier  Invalidator
	logger    *slog.Logger
}

type Deps struct {
	Tenants   *repository.TenantRepository
	Accounts  *repository.AccountRepository
	Household *repository.HouseholdRepository
	Payments  *repository.PaymentRepository
	Billing   *billing.Service
	Verifier  Invalidator
}

func NewService(d Deps, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:        d.Accounts.DB(),
		tenants:   d.Tenants,
		accounts:  d.Accounts,
		household: d.Household,
		payments:  d.Payments,
		billing:   d.Billing,
		verifier:  d.Verifier,
		logger:    logger.With("component", "directory"),
	}
}

type RegisterInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Unit      string `json:"unit"`
	Estate    string `json:"estate"`
	Password  string `json:"password"`
}

func (in *RegisterInput) normalize() error {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Phone = strings.TrimSpace(in.Phone)
	in.Unit = strings.TrimSpace(in.Unit)
	in.Estate = strings.TrimSpace(in.Estate)

	switch {
	case in.FirstName == "" || in.LastName == "":
		return fmt.Errorf("%w: first and last name are required", ErrInvalidInput)
	case in.Unit == "":
		return fmt.Errorf("%w: unit is required", ErrInvalidInput)
	case len(in.Password) < minPasswordLength:
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	return nil
}

// Register creates a tenant and its login account together.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.Account, *models.Tenant, error) {
	if err := in.normalize(); err != nil {
		return nil, nil, err
	}
	if _, err := s.accounts.GetByEmail(ctx, in.Email); err == nil {
		return nil, nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, err
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, nil, err
	}

	tenant := &models.Tenant{
		ID:        uuid.New(),
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Phone:     in.Phone,
		Unit:      in.Unit,
		Estate:    in.Estate,
	}
	account := &models.Account{
		ID:           uuid.New(),
		Email:        in.Email,
		PasswordHash: hash,
		Role:         models.RoleTenant,
		TenantID:     &tenant.ID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(tenant).Error; err != nil {
			return err
		}
		return tx.Create(account).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, nil, ErrEmailTaken
	}
	if err != nil {
		return nil, nil, fmt.Errorf("register tenant: %w", err)
	}

	s.logger.Info("tenant registered", "tenant_id", tenant.ID, "unit", tenant.Unit)
	return account, tenant, nil
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// Authenticate checks credentials. Unknown emails still pay for a bcrypt
// comparison so the two failures look the same.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.Account, error) {
	account, err := s.accounts.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		dummyHashOnce.Do(func() { dummyHash, _ = auth.HashPassword(uuid.NewString()) })
		_ = auth.CheckPassword(dummyHash, password)
		return nil, auth.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := auth.CheckPassword(account.PasswordHash, password); err != nil {
		return nil, err
	}
	return account, nil
}

// EnsureAdmin creates the bootstrap admin account if it does not exist yet.
// An existing account with that email is left untouched.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (*models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: admin email and password are required", ErrInvalidInput)
	}

	existing, err := s.accounts.GetByEmail(ctx, email)
	if err == nil {
		if existing.Role != models.RoleAdmin {
			s.logger.Warn("bootstrap admin email belongs to a non-admin account", "email", email)
		}
		return existing, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	admin := &models.Account{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleAdmin,
	}
	if err := s.accounts.Create(ctx, admin); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return s.accounts.GetByEmail(ctx, email)
		}
		return nil, err
	}
	s.logger.Info("admin account created", "email", email)
	return admin, nil
}

type Overview struct {
	Tenant      *models.Tenant           `json:"tenant"`
	Status      string                   `json:"status"`
	CurrentDue  *models.PaymentRecord    `json:"current_due,omitempty"`
	PaidHistory []models.PaymentRecord   `json:"paid_history"`
	Family      []models.HouseholdMember `json:"family"`
	Workers     []models.HouseholdMember `json:"workers"`
}

// TenantOverview is the tenant dashboard. CurrentDue is the oldest unpaid
// record, overdue before pending.
func (s *Service) TenantOverview(ctx context.Context, tenantID uuid.UUID) (*Overview, error) {
	tenant, err := s.tenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	payments, err := s.payments.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	members, err := s.household.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	ov := &Overview{
		Tenant:      tenant,
		Status:      billing.TenantStatusActive,
		PaidHistory: []models.PaymentRecord{},
		Family:      []models.HouseholdMember{},
		Workers:     []models.HouseholdMember{},
	}

	var unpaid []models.PaymentRecord
	for _, p := range payments {
		if p.IsPaid() {
			ov.PaidHistory = append(ov.PaidHistory, p)
			continue
		}
		unpaid = append(unpaid, p)
	}
	sort.SliceStable(unpaid, func(i, j int) bool {
		if unpaid[i].Status != unpaid[j].Status {
			return unpaid[i].Status == models.PaymentStatusOverdue
		}
		return unpaid[i].DueDate.Before(unpaid[j].DueDate)
	})
	if len(unpaid) > 0 {
		ov.CurrentDue = &unpaid[0]
		ov.Status = billing.TenantStatusPending
		if unpaid[0].Status == models.PaymentStatusOverdue {
			ov.Status = billing.TenantStatusOverdue
		}
	}

	for _, m := range members {
		if m.Type == models.MemberTypeWorker {
			ov.Workers = append(ov.Workers, m)
		} else {
			ov.Family = append(ov.Family, m)
		}
	}
	return ov, nil
}

type MemberInput struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	Relationship string `json:"relationship"`
	Role         string `json:"role"`
	Phone        string `json:"phone"`
}

func (s *Service) AddMember(ctx context.Context, tenantID uuid.UUID, in MemberInput) (*models.HouseholdMember, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Type = strings.ToLower(strings.TrimSpace(in.Type))
	if in.Name == "" {
		return nil, fmt.Errorf("%w: member name is required", ErrInvalidInput)
	}

	m := &models.HouseholdMember{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      in.Name,
		Type:      in.Type,
		Phone:     strings.TrimSpace(in.Phone),
		CreatedAt: time.Now(),
	}
	switch in.Type {
	case models.MemberTypeFamily:
		m.Relationship = strings.TrimSpace(in.Relationship)
	case models.MemberTypeWorker:
		m.Role = strings.TrimSpace(in.Role)
	default:
		return nil, fmt.Errorf("%w: member type must be %q or %q", ErrInvalidInput, models.MemberTypeFamily, models.MemberTypeWorker)
	}

	if _, err := s.tenant(ctx, tenantID); err != nil {
		return nil, err
	}
	if err := s.household.Create(ctx, m); err != nil {
		return nil, err
	}
	s.forgetTenant(ctx, tenantID)
	return m, nil
}

func (s *Service) ListMembers(ctx context.Context, tenantID uuid.UUID) ([]models.HouseholdMember, error) {
	return s.household.ListByTenant(ctx, tenantID)
}

func (s *Service) RemoveMember(ctx context.Context, tenantID, memberID uuid.UUID) error {
	err := s.household.Delete(ctx, tenantID, memberID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrMemberNotFound
	}
	if err != nil {
		return err
	}
	s.forgetTenant(ctx, tenantID)
	return nil
}

// forgetTenant drops cached verifications for the tenant's codes so the gate
// sees the new household count. Failures only cost staleness until TTL.
func (s *Service) forgetTenant(ctx context.Context, tenantID uuid.UUID) {
	if s.verifier == nil {
		return
	}
	codes, err := s.payments.ReceiptCodesForTenant(ctx, tenantID)
	if err == nil {
		err = s.verifier.Forget(ctx, codes...)
	}
	if err != nil {
		s.logger.Warn("verification cache invalidation failed", "tenant_id", tenantID, "error", err)
	}
}

type TenantRow struct {
	models.Tenant
	Status         string `json:"status"`
	LastPaidPeriod string `json:"last_paid_period,omitempty"`
	HouseholdCount int    `json:"household_count"`
}

// SearchTenants matches name or unit; an empty query lists everyone.
func (s *Service) SearchTenants(ctx context.Context, query string) ([]TenantRow, error) {
	tenants, err := s.tenants.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(tenants))
	for i, t := range tenants {
		ids[i] = t.ID
	}

	statuses, err := s.billing.TenantStatuses(ctx, ids)
	if err != nil {
		return nil, err
	}
	lastPaid, err := s.payments.LastPaidPeriods(ctx, ids)
	if err != nil {
		return nil, err
	}
	counts, err := s.household.CountByTenant(ctx, ids)
	if err != nil {
		return nil, err
	}

	rows := make([]TenantRow, len(tenants))
	for i, t := range tenants {
		status := statuses[t.ID]
		if status == "" {
			status = billing.TenantStatusActive
		}
		rows[i] = TenantRow{
			Tenant:         t,
			Status:         status,
			LastPaidPeriod: lastPaid[t.ID],
			HouseholdCount: counts[t.ID],
		}
	}
	return rows, nil
}

type MemberRow struct {
	models.HouseholdMember
	TenantName string `json:"tenant_name"`
	Unit       string `json:"unit"`
}

func (s *Service) AllMembers(ctx context.Context) ([]MemberRow, error) {
	members, err := s.household.All(ctx)
	if err != nil {
		return nil, err
	}
	tenants, err := s.tenants.All(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*models.Tenant, len(tenants))
	for i := range tenants {
		byID[tenants[i].ID] = &tenants[i]
	}

	rows := make([]MemberRow, 0, len(members))
	for _, m := range members {
		row := MemberRow{HouseholdMember: m}
		if t, ok := byID[m.TenantID]; ok {
			row.TenantName = t.FullName()
			row.Unit = t.Unit
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Unit < rows[j].Unit })
	return rows, nil
}

func (s *Service) tenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	t, err := s.tenants.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrTenantNotFound
	}
	return t, err
}
