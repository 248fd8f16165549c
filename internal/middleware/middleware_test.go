package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"estate-access-backend/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(issuer *auth.Issuer, roles ...string) *gin.Engine {
	r := gin.New()
	r.GET("/private", AuthRequired(issuer), RoleRequired(roles...), func(c *gin.Context) {
		tenantID, _ := TenantID(c)
		accountID, _ := AccountID(c)
		c.JSON(http.StatusOK, gin.H{"tenant_id": tenantID.String(), "account_id": accountID.String()})
	})
	return r
}

func TestAuthRequired(t *testing.T) {
	issuer := newTestIssuer()
	tenantID := uuid.New()
	tenantToken, _ := issuer.Issue(uuid.New(), "tenant", &tenantID)
	adminToken, _ := issuer.Issue(uuid.New(), "admin", nil)

	tests := []struct {
		name   string
		header string
		roles  []string
		want   int
	}{
		{"no header", "", []string{"tenant"}, http.StatusUnauthorized},
		{"not bearer", "Basic abc", []string{"tenant"}, http.StatusUnauthorized},
		{"bad token", "Bearer nope", []string{"tenant"}, http.StatusUnauthorized},
		{"tenant ok", "Bearer " + tenantToken, []string{"tenant"}, http.StatusOK},
		{"tenant on admin route", "Bearer " + tenantToken, []string{"admin"}, http.StatusForbidden},
		{"admin ok", "Bearer " + adminToken, []string{"admin"}, http.StatusOK},
		{"multiple roles", "Bearer " + adminToken, []string{"tenant", "admin"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRouter(issuer, tt.roles...)
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func newTestIssuer() *auth.Issuer {
	return auth.NewIssuer("test-secret", time.Hour)
}

func TestIPRateLimiter(t *testing.T) {
	l := NewIPRateLimiter(60, 2)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	if !l.Allow("1.1.1.1") || !l.Allow("1.1.1.1") {
		t.Fatal("expected burst of 2 to be allowed")
	}
	if l.Allow("1.1.1.1") {
		t.Fatal("expected third request to be limited")
	}
	if !l.Allow("2.2.2.2") {
		t.Fatal("other clients must have their own bucket")
	}

	now = now.Add(time.Second)
	if !l.Allow("1.1.1.1") {
		t.Fatal("expected a token after one second at 60/min")
	}

	now = now.Add(time.Hour)
	l.Allow("3.3.3.3")
	if _, ok := l.limiters["1.1.1.1"]; ok {
		t.Error("expected idle visitor to be swept")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	r := gin.New()
	r.GET("/verify", RateLimit(NewIPRateLimiter(1, 1)), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/verify", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("expected [200 429], got %v", codes)
	}
}
