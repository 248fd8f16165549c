// Package verification answers gate-security receipt checks. It only reads
// the receipt mapping; billing is its sole writer.
package verification

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"estate-access-backend/internal/models"
	"estate-access-backend/internal/receipt"
	"estate-access-backend/internal/repository"
)

type Verdict string

const (
	VerdictAuthorized   Verdict = "authorized"
	VerdictNotFound     Verdict = "not_found"
	VerdictInvalidInput Verdict = "invalid_input"
	VerdictUnavailable  Verdict = "unavailable"
)

const paidDateLayout = "2006-01-02"

type Details struct {
	Code           string `json:"code"`
	Tenant         string `json:"tenant"`
	Unit           string `json:"unit"`
	Period         string `json:"period"`
	PaidDate       string `json:"paidDate"`
	HouseholdCount int    `json:"householdCount"`
	Phone          string `json:"phone"`
}

// Result is the tagged verification outcome. Details is set only for
// authorized results and QueriedCode only for not_found.
type Result struct {
	Verdict     Verdict `json:"verdict"`
	Authorized  bool    `json:"authorized"`
	QueriedCode string  `json:"queriedCode,omitempty"`
	*Details
}

// Lookup is the read-only receipt store. It returns repository.ErrNotFound
// when no paid record carries the code.
type Lookup interface {
	FindPaidReceipt(ctx context.Context, code string) (*models.ReceiptView, error)
}

var _ Lookup = (*repository.ReceiptLookup)(nil)

// Cache stores encoded authorized results. Get returns (nil, nil) on a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
}

type Service struct {
	lookup  Lookup
	cache   Cache
	timeout time.Duration
	logger  *slog.Logger

	// forgets counts Forget calls. A result read before an invalidation is
	// not cached; the write lock orders Forget against in-flight stores.
	mu      sync.RWMutex
	forgets uint64
}

type Option func(*Service)

func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func NewService(lookup Lookup, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		lookup:  lookup,
		timeout: 2 * time.Second,
		logger:  logger.With("component", "verification"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Verify never returns an error: every outcome, including a store failure,
// is a verdict the caller can render.
func (s *Service) Verify(ctx context.Context, raw string) Result {
	code := receipt.Normalize(raw)
	if code == "" {
		return Result{Verdict: VerdictInvalidInput}
	}

	if res, ok := s.cached(ctx, code); ok {
		return res
	}

	gen := s.generation()
	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	view, err := s.lookup.FindPaidReceipt(lookupCtx, code)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return Result{Verdict: VerdictNotFound, QueriedCode: code}
	case err != nil:
		s.logger.Error("receipt lookup failed", "error", err)
		return Result{Verdict: VerdictUnavailable}
	}

	res := Result{
		Verdict:    VerdictAuthorized,
		Authorized: true,
		Details: &Details{
			Code:           code,
			Tenant:         view.TenantName(),
			Unit:           view.Unit,
			Period:         view.Period,
			PaidDate:       view.PaidAt.UTC().Format(paidDateLayout),
			HouseholdCount: view.HouseholdCount,
			Phone:          view.Phone,
		},
	}
	s.store(ctx, code, gen, res)
	return res
}

// Forget drops cached results for the given codes, e.g. after a household
// change alters what a verification would return.
func (s *Service) Forget(ctx context.Context, codes ...string) error {
	if s.cache == nil || len(codes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(codes))
	for _, c := range codes {
		if c = receipt.Normalize(c); c != "" {
			keys = append(keys, c)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.forgets++
	return s.cache.Delete(ctx, keys...)
}

func (s *Service) generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.forgets
}

func (s *Service) cached(ctx context.Context, code string) (Result, bool) {
	if s.cache == nil {
		return Result{}, false
	}
	data, err := s.cache.Get(ctx, code)
	if err != nil {
		s.logger.Warn("cache read failed, falling back to store", "error", err)
		return Result{}, false
	}
	if data == nil {
		return Result{}, false
	}

	var res Result
	if err := json.Unmarshal(data, &res); err != nil || res.Verdict != VerdictAuthorized || res.Details == nil {
		s.logger.Warn("discarding malformed cache entry", "error", err)
		_ = s.cache.Delete(ctx, code)
		return Result{}, false
	}
	return res, true
}

// Only authorized results are cached; a not_found must not outlive the
// moment a record gets paid. gen is the Forget count seen before the lookup.
func (s *Service) store(ctx context.Context, code string, gen uint64, res Result) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.forgets != gen {
		s.logger.Debug("skipping cache write, invalidated during lookup", "code", code)
		return
	}
	if err := s.cache.Set(ctx, code, data); err != nil {
		s.logger.Warn("cache write failed", "error", err)
	}
}
