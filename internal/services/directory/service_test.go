package directory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"estate-access-backend/internal/auth"
	"estate-access-backend/internal/cache"
	"estate-access-backend/internal/models"
	"estate-access-backend/internal/repository"
	"estate-access-backend/internal/services/billing"
	"estate-access-backend/internal/services/verification"
	"estate-access-backend/internal/testutil"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	svc      *Service
	billing  *billing.Service
	verifier *verification.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testutil.NewDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	payments := repository.NewPaymentRepository(db)
	tenants := repository.NewTenantRepository(db)
	billingSvc := billing.NewService(payments, tenants, nil, billing.Config{}, logger)

	lookup, err := repository.NewReceiptLookupFromGorm(db)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	verifier := verification.NewService(lookup, logger, verification.WithCache(cache.NewMemory(time.Hour)))

	svc := NewService(Deps{
		Tenants:   tenants,
		Accounts:  repository.NewAccountRepository(db),
		Household: repository.NewHouseholdRepository(db),
		Payments:  payments,
		Billing:   billingSvc,
		Verifier:  verifier,
	}, logger)

	return fixture{db: db, svc: svc, billing: billingSvc, verifier: verifier}
}

func validRegistration() RegisterInput {
	return RegisterInput{
		FirstName: " Amaka ",
		LastName:  "Obi",
		Email:     "Amaka.Obi@Example.com",
		Phone:     "+2348010000001",
		Unit:      "Block A, Unit 12",
		Estate:    "Palm Gardens Estate",
		Password:  "correct-horse",
	}
}

func TestRegisterAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	account, tenant, err := f.svc.Register(ctx, validRegistration())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if account.Role != models.RoleTenant || account.TenantID == nil || *account.TenantID != tenant.ID {
		t.Errorf("unexpected account: %+v", account)
	}
	if tenant.FirstName != "Amaka" || account.Email != "amaka.obi@example.com" {
		t.Errorf("input not normalised: tenant %+v account %+v", tenant, account)
	}

	got, err := f.svc.Authenticate(ctx, "AMAKA.OBI@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != account.ID {
		t.Errorf("authenticated %s, want %s", got.ID, account.ID)
	}

	if _, err := f.svc.Authenticate(ctx, "amaka.obi@example.com", "wrong-password"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Errorf("wrong password err = %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, "nobody@example.com", "correct-horse"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Errorf("unknown email err = %v", err)
	}

	if _, _, err := f.svc.Register(ctx, validRegistration()); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate register err = %v, want ErrEmailTaken", err)
	}
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(*RegisterInput)
	}{
		{"missing first name", func(in *RegisterInput) { in.FirstName = " " }},
		{"missing unit", func(in *RegisterInput) { in.Unit = "" }},
		{"bad email", func(in *RegisterInput) { in.Email = "not-an-email" }},
		{"short password", func(in *RegisterInput) { in.Password = "short" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validRegistration()
			tt.mutate(&in)
			if _, _, err := f.svc.Register(context.Background(), in); !errors.Is(err, ErrInvalidInput) {
				t.Errorf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestEnsureAdmin_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.EnsureAdmin(ctx, "admin@estate.test", "s3cret-pass")
	if err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	second, err := f.svc.EnsureAdmin(ctx, "ADMIN@estate.test", "other-pass")
	if err != nil {
		t.Fatalf("second EnsureAdmin: %v", err)
	}
	if first.ID != second.ID || second.Role != models.RoleAdmin {
		t.Errorf("admin changed: %+v vs %+v", first, second)
	}
	if _, err := f.svc.Authenticate(ctx, "admin@estate.test", "s3cret-pass"); err != nil {
		t.Errorf("original password should still work: %v", err)
	}
	if _, err := f.svc.EnsureAdmin(ctx, "", "x"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty email err = %v", err)
	}
}

func TestHouseholdChangesRefreshVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tenant := testutil.CreateTenant(t, f.db, "Amaka", "Obi", "A-12", "")
	testutil.CreatePayment(t, f.db, tenant.ID, "2024-01", models.PaymentStatusPaid, "EST-1234-ABCDEF")

	if res := f.verifier.Verify(ctx, "EST-1234-ABCDEF"); !res.Authorized || res.HouseholdCount != 0 {
		t.Fatalf("initial verify = %+v", res)
	}

	member, err := f.svc.AddMember(ctx, tenant.ID, MemberInput{Name: "Chidi Obi", Type: "Family", Relationship: "Son"})
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if member.Relationship != "Son" || member.Role != "" {
		t.Errorf("unexpected member: %+v", member)
	}
	if res := f.verifier.Verify(ctx, "EST-1234-ABCDEF"); res.HouseholdCount != 1 {
		t.Errorf("after add household count = %d, want 1", res.HouseholdCount)
	}

	if err := f.svc.RemoveMember(ctx, tenant.ID, member.ID); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if res := f.verifier.Verify(ctx, "EST-1234-ABCDEF"); res.HouseholdCount != 0 {
		t.Errorf("after remove household count = %d, want 0", res.HouseholdCount)
	}
}

func TestMembers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	amaka := testutil.CreateTenant(t, f.db, "Amaka", "Obi", "A-12", "")
	tunde := testutil.CreateTenant(t, f.db, "Tunde", "Bello", "B-03", "")

	if _, err := f.svc.AddMember(ctx, amaka.ID, MemberInput{Name: "Musa", Type: "worker", Role: "Driver"}); err != nil {
		t.Fatalf("AddMember worker: %v", err)
	}
	other, err := f.svc.AddMember(ctx, tunde.ID, MemberInput{Name: "Kemi Bello", Type: "family", Relationship: "Spouse"})
	if err != nil {
		t.Fatalf("AddMember family: %v", err)
	}

	badInputs := []MemberInput{
		{Name: "", Type: "family"},
		{Name: "Ghost", Type: "visitor"},
	}
	for _, in := range badInputs {
		if _, err := f.svc.AddMember(ctx, amaka.ID, in); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("AddMember(%+v) err = %v, want ErrInvalidInput", in, err)
		}
	}
	if _, err := f.svc.AddMember(ctx, uuid.New(), MemberInput{Name: "X", Type: "family"}); !errors.Is(err, ErrTenantNotFound) {
		t.Errorf("unknown tenant err = %v", err)
	}

	if err := f.svc.RemoveMember(ctx, amaka.ID, other.ID); !errors.Is(err, ErrMemberNotFound) {
		t.Errorf("removing another tenant's member err = %v, want ErrMemberNotFound", err)
	}

	all, err := f.svc.AllMembers(ctx)
	if err != nil {
		t.Fatalf("AllMembers: %v", err)
	}
	if len(all) != 2 || all[0].Unit != "A-12" || all[0].TenantName != "Amaka Obi" || all[1].Unit != "B-03" {
		t.Errorf("AllMembers = %+v", all)
	}
}

func TestTenantOverview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tenant := testutil.CreateTenant(t, f.db, "Amaka", "Obi", "A-12", "")
	testutil.CreatePayment(t, f.db, tenant.ID, "2024-01", models.PaymentStatusPaid, "EST-1111-AAAAAA")
	pending := testutil.CreatePayment(t, f.db, tenant.ID, "2024-02", models.PaymentStatusPending, "")
	testutil.CreateMember(t, f.db, tenant.ID, "Chidi Obi", models.MemberTypeFamily)
	testutil.CreateMember(t, f.db, tenant.ID, "Musa", models.MemberTypeWorker)

	ov, err := f.svc.TenantOverview(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("TenantOverview: %v", err)
	}
	if ov.Status != billing.TenantStatusPending || ov.CurrentDue == nil || ov.CurrentDue.ID != pending.ID {
		t.Errorf("current due = %+v status %s", ov.CurrentDue, ov.Status)
	}
	if len(ov.PaidHistory) != 1 || len(ov.Family) != 1 || len(ov.Workers) != 1 {
		t.Errorf("overview = %+v", ov)
	}

	overdue := testutil.CreatePayment(t, f.db, tenant.ID, "2024-03", models.PaymentStatusOverdue, "")
	ov, _ = f.svc.TenantOverview(ctx, tenant.ID)
	if ov.Status != billing.TenantStatusOverdue || ov.CurrentDue.ID != overdue.ID {
		t.Errorf("overdue record should be current due, got %+v", ov.CurrentDue)
	}

	if _, err := f.svc.TenantOverview(ctx, uuid.New()); !errors.Is(err, ErrTenantNotFound) {
		t.Errorf("unknown tenant err = %v", err)
	}
}

func TestSearchTenants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	amaka := testutil.CreateTenant(t, f.db, "Amaka", "Obi", "A-12", "")
	tunde := testutil.CreateTenant(t, f.db, "Tunde", "Bello", "B-03", "")
	fresh := testutil.CreateTenant(t, f.db, "Ngozi", "Eze", "C-07", "")

	testutil.CreatePayment(t, f.db, amaka.ID, "2024-01", models.PaymentStatusPaid, "EST-1111-AAAAAA")
	testutil.CreatePayment(t, f.db, tunde.ID, "2024-01", models.PaymentStatusOverdue, "")
	testutil.CreateMember(t, f.db, amaka.ID, "Chidi Obi", models.MemberTypeFamily)

	rows, err := f.svc.SearchTenants(ctx, "")
	if err != nil {
		t.Fatalf("SearchTenants: %v", err)
	}
	byID := make(map[uuid.UUID]TenantRow, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	if len(byID) != 3 {
		t.Fatalf("got %d rows, want 3", len(byID))
	}
	if r := byID[amaka.ID]; r.Status != billing.TenantStatusActive || r.LastPaidPeriod != "2024-01" || r.HouseholdCount != 1 {
		t.Errorf("amaka row = %+v", r)
	}
	if r := byID[tunde.ID]; r.Status != billing.TenantStatusOverdue || r.LastPaidPeriod != "" {
		t.Errorf("tunde row = %+v", r)
	}
	if r := byID[fresh.ID]; r.Status != billing.TenantStatusActive || r.HouseholdCount != 0 {
		t.Errorf("fresh row = %+v", r)
	}

	rows, err = f.svc.SearchTenants(ctx, "b-03")
	if err != nil {
		t.Fatalf("SearchTenants by unit: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != tunde.ID {
		t.Errorf("unit search = %+v", rows)
	}
}
