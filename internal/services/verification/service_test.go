package verification

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"estate-access-backend/internal/cache"
	"estate-access-backend/internal/models"
	"estate-access-backend/internal/repository"
	"estate-access-backend/internal/testutil"
)

type mapLookup struct {
	receipts map[string]*models.ReceiptView
	err      error
	delay    time.Duration
	calls    atomic.Int32
}

func (m *mapLookup) FindPaidReceipt(ctx context.Context, code string) (*models.ReceiptView, error) {
	m.calls.Add(1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.receipts[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return v, nil
}

func johnDoeLookup() *mapLookup {
	return &mapLookup{receipts: map[string]*models.ReceiptView{
		"EST-7834-XKL": {
			Code:           "EST-7834-XKL",
			FirstName:      "John",
			LastName:       "Doe",
			Unit:           "Block A, Unit 12",
			Phone:          "+234 801 234 5678",
			Period:         "January 2024",
			PaidAt:         time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC),
			HouseholdCount: 3,
		},
		"EST-9921-MNP": {
			Code:           "EST-9921-MNP",
			FirstName:      "Sarah",
			LastName:       "Smith",
			Unit:           "Block B, Unit 5",
			Phone:          "+234 802 345 6789",
			Period:         "February 2024",
			PaidAt:         time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC),
			HouseholdCount: 2,
		},
	}}
}

func TestVerify_AuthorizedScenario(t *testing.T) {
	svc := NewService(johnDoeLookup(), nil)

	res := svc.Verify(context.Background(), "est-7834-xkl")

	if res.Verdict != VerdictAuthorized || !res.Authorized {
		t.Fatalf("expected authorized, got %+v", res)
	}
	want := Details{
		Code:           "EST-7834-XKL",
		Tenant:         "John Doe",
		Unit:           "Block A, Unit 12",
		Period:         "January 2024",
		PaidDate:       "2024-01-15",
		HouseholdCount: 3,
		Phone:          "+234 801 234 5678",
	}
	if *res.Details != want {
		t.Errorf("unexpected details:\n got %+v\nwant %+v", *res.Details, want)
	}
	if res.QueriedCode != "" {
		t.Errorf("authorized result should not carry queriedCode, got %q", res.QueriedCode)
	}
}

func TestVerify_NotFoundScenario(t *testing.T) {
	svc := NewService(johnDoeLookup(), nil)

	res := svc.Verify(context.Background(), "EST-0000-ZZZ")

	if res.Verdict != VerdictNotFound {
		t.Fatalf("expected not_found, got %s", res.Verdict)
	}
	if res.Authorized || res.Details != nil {
		t.Errorf("not_found must not be authorized or carry details: %+v", res)
	}
	if res.QueriedCode != "EST-0000-ZZZ" {
		t.Errorf("expected queriedCode EST-0000-ZZZ, got %q", res.QueriedCode)
	}
}

func TestVerify_InvalidInputSkipsLookup(t *testing.T) {
	lookup := johnDoeLookup()
	svc := NewService(lookup, nil)

	for _, input := range []string{"", "   ", "\t\n", "　"} {
		res := svc.Verify(context.Background(), input)
		if res.Verdict != VerdictInvalidInput {
			t.Errorf("Verify(%q): expected invalid_input, got %s", input, res.Verdict)
		}
		if res.Authorized {
			t.Errorf("Verify(%q): invalid input must not be authorized", input)
		}
	}
	if n := lookup.calls.Load(); n != 0 {
		t.Errorf("expected no lookups for empty input, got %d", n)
	}
}

func TestVerify_NormalizationIdempotence(t *testing.T) {
	svc := NewService(johnDoeLookup(), nil)
	ctx := context.Background()

	for _, code := range []string{"EST-7834-XKL", "EST-9921-MNP"} {
		base := svc.Verify(ctx, code)
		variants := []string{
			strings.ToLower(code),
			" " + code + " ",
			"\t" + strings.ToLower(code) + "\n",
		}
		for _, v := range variants {
			if got := svc.Verify(ctx, v); !reflect.DeepEqual(got, base) {
				t.Errorf("Verify(%q) = %+v, want %+v", v, got, base)
			}
		}
	}
}

func TestVerify_UnknownCodesNeverAuthorized(t *testing.T) {
	svc := NewService(johnDoeLookup(), nil)
	rng := rand.New(rand.NewSource(42))
	alphabet := "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789- "

	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(16)
		b := make([]byte, n)
		for j := range b {
			b[j] = alphabet[rng.Intn(len(alphabet))]
		}
		s := string(b)
		norm := strings.ToUpper(strings.TrimSpace(s))
		if norm == "" || norm == "EST-7834-XKL" || norm == "EST-9921-MNP" {
			continue
		}

		res := svc.Verify(context.Background(), s)
		if res.Verdict != VerdictNotFound || res.Authorized {
			t.Fatalf("Verify(%q): expected not_found, got %+v", s, res)
		}
		if res.QueriedCode != norm {
			t.Fatalf("Verify(%q): expected queriedCode %q, got %q", s, norm, res.QueriedCode)
		}
	}
}

func TestVerify_StoreErrorIsUnavailable(t *testing.T) {
	lookup := johnDoeLookup()
	lookup.err = errors.New("connection refused")
	svc := NewService(lookup, nil)

	res := svc.Verify(context.Background(), "EST-7834-XKL")
	if res.Verdict != VerdictUnavailable {
		t.Fatalf("expected unavailable, got %s", res.Verdict)
	}
	if res.Authorized || res.Details != nil || res.QueriedCode != "" {
		t.Errorf("unavailable must carry nothing else: %+v", res)
	}
}

func TestVerify_TimeoutIsUnavailable(t *testing.T) {
	lookup := johnDoeLookup()
	lookup.delay = time.Second
	svc := NewService(lookup, nil, WithTimeout(20*time.Millisecond))

	start := time.Now()
	res := svc.Verify(context.Background(), "EST-7834-XKL")
	if res.Verdict != VerdictUnavailable {
		t.Fatalf("expected unavailable, got %s", res.Verdict)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("timeout not honoured, took %v", elapsed)
	}
}

func TestVerify_CachesOnlyAuthorized(t *testing.T) {
	lookup := johnDoeLookup()
	c := cache.NewMemory(time.Minute)
	svc := NewService(lookup, nil, WithCache(c))
	ctx := context.Background()

	first := svc.Verify(ctx, "EST-7834-XKL")
	second := svc.Verify(ctx, "est-7834-xkl")
	if !reflect.DeepEqual(first, second) {
		t.Errorf("cached result differs:\n%+v\n%+v", first, second)
	}
	if n := lookup.calls.Load(); n != 1 {
		t.Errorf("expected 1 store lookup, got %d", n)
	}

	svc.Verify(ctx, "EST-0000-ZZZ")
	svc.Verify(ctx, "EST-0000-ZZZ")
	if n := lookup.calls.Load(); n != 3 {
		t.Errorf("not_found must not be cached, expected 3 lookups, got %d", n)
	}
	if c.Len() != 1 {
		t.Errorf("expected exactly one cache entry, got %d", c.Len())
	}

	if err := svc.Forget(ctx, "est-7834-xkl"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	svc.Verify(ctx, "EST-7834-XKL")
	if n := lookup.calls.Load(); n != 4 {
		t.Errorf("expected lookup after Forget, got %d calls", n)
	}
}

// forgettingLookup invalidates the code mid-lookup, as a household change
// racing a gate check would.
type forgettingLookup struct {
	*mapLookup
	svc *Service
}

func (f *forgettingLookup) FindPaidReceipt(ctx context.Context, code string) (*models.ReceiptView, error) {
	view, err := f.mapLookup.FindPaidReceipt(ctx, code)
	if f.mapLookup.calls.Load() == 1 {
		if ferr := f.svc.Forget(ctx, code); ferr != nil {
			return nil, ferr
		}
	}
	return view, err
}

func TestVerify_ForgetDuringLookupSkipsCache(t *testing.T) {
	inner := johnDoeLookup()
	lookup := &forgettingLookup{mapLookup: inner}
	c := cache.NewMemory(time.Minute)
	svc := NewService(lookup, nil, WithCache(c))
	lookup.svc = svc
	ctx := context.Background()

	if res := svc.Verify(ctx, "EST-7834-XKL"); res.Verdict != VerdictAuthorized {
		t.Fatalf("verdict = %s, want authorized", res.Verdict)
	}
	if c.Len() != 0 {
		t.Errorf("result read before Forget was cached (%d entries)", c.Len())
	}

	svc.Verify(ctx, "EST-7834-XKL")
	if n := inner.calls.Load(); n != 2 {
		t.Errorf("expected a fresh lookup after the invalidated read, got %d calls", n)
	}
	if c.Len() != 1 {
		t.Errorf("expected the fresh result to be cached, got %d entries", c.Len())
	}
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]byte, error) { return nil, errors.New("down") }
func (failingCache) Set(context.Context, string, []byte) error   { return errors.New("down") }
func (failingCache) Delete(context.Context, ...string) error     { return errors.New("down") }

func TestVerify_CacheFailureFallsBackToStore(t *testing.T) {
	svc := NewService(johnDoeLookup(), nil, WithCache(failingCache{}))

	res := svc.Verify(context.Background(), "EST-7834-XKL")
	if res.Verdict != VerdictAuthorized {
		t.Fatalf("expected authorized despite cache failure, got %s", res.Verdict)
	}
}

func TestVerify_MalformedCacheEntryIgnored(t *testing.T) {
	lookup := johnDoeLookup()
	c := cache.NewMemory(time.Minute)
	_ = c.Set(context.Background(), "EST-7834-XKL", []byte(`{"verdict":"not_found"}`))
	svc := NewService(lookup, nil, WithCache(c))

	res := svc.Verify(context.Background(), "EST-7834-XKL")
	if res.Verdict != VerdictAuthorized {
		t.Fatalf("expected authorized, got %s", res.Verdict)
	}
	if lookup.calls.Load() != 1 {
		t.Errorf("expected store lookup after discarding bad entry")
	}
}

func TestResultJSONShape(t *testing.T) {
	svc := NewService(johnDoeLookup(), nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		input string
		keys  []string
	}{
		{"authorized", "EST-7834-XKL", []string{"verdict", "authorized", "code", "tenant", "unit", "period", "paidDate", "householdCount", "phone"}},
		{"not found", "EST-0000-ZZZ", []string{"verdict", "authorized", "queriedCode"}},
		{"invalid input", " ", []string{"verdict", "authorized"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(svc.Verify(ctx, tt.input))
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var m map[string]interface{}
			if err := json.Unmarshal(data, &m); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if len(m) != len(tt.keys) {
				t.Errorf("expected keys %v, got %s", tt.keys, data)
			}
			for _, k := range tt.keys {
				if _, ok := m[k]; !ok {
					t.Errorf("missing key %q in %s", k, data)
				}
			}
		})
	}
}

func TestVerify_AgainstDatabase(t *testing.T) {
	db := testutil.NewDB(t)
	john := testutil.CreateTenant(t, db, "John", "Doe", "Block A, Unit 12", "+234 801 234 5678")
	testutil.CreateMember(t, db, john.ID, "Jane Doe", models.MemberTypeFamily)
	testutil.CreatePayment(t, db, john.ID, "January 2024", models.PaymentStatusPaid, "EST-7834-XKL")
	pending := testutil.CreatePayment(t, db, john.ID, "March 2024", models.PaymentStatusPending, "")

	lookup, err := repository.NewReceiptLookupFromGorm(db)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	svc := NewService(lookup, nil)
	ctx := context.Background()

	res := svc.Verify(ctx, " est-7834-xkl ")
	if res.Verdict != VerdictAuthorized || res.Tenant != "John Doe" || res.HouseholdCount != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	// A pending record has no code, so nothing identifying it can authorize.
	for _, probe := range []string{pending.Reference, pending.ID.String(), "", "NULL"} {
		if got := svc.Verify(ctx, probe); got.Authorized {
			t.Errorf("Verify(%q) reached a pending record: %+v", probe, got)
		}
	}
}
