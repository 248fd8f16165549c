package routes

import (
	"context"
	"log/slog"
	"net/http"

	"estate-access-backend/internal/auth"
	handler "estate-access-backend/internal/handlers"
	"estate-access-backend/internal/middleware"
	"estate-access-backend/internal/models"
	"estate-access-backend/internal/services/billing"
	"estate-access-backend/internal/services/directory"
	"estate-access-backend/internal/services/verification"

	"github.com/gin-gonic/gin"
)

type Services struct {
	Verification  *verification.Service
	Billing       *billing.Service
	Directory     *directory.Service
	Issuer        *auth.Issuer
	VerifyLimiter *middleware.IPRateLimiter
	Logger        *slog.Logger
}

// RegisterRoutes mounts the API. ctx bounds background work such as CSV
// imports started by a request.
func RegisterRoutes(ctx context.Context, r *gin.Engine, s Services) {
	verifyHandler := handler.NewVerificationHandler(s.Verification)
	authHandler := handler.NewAuthHandler(s.Directory, s.Issuer, s.Logger)
	tenantHandler := handler.NewTenantHandler(s.Directory, s.Billing, s.Logger)
	adminHandler := handler.NewAdminHandler(ctx, s.Billing, s.Directory, s.Logger)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Gate verification is public and rate limited per client IP
	verify := api.Group("/verify")
	if s.VerifyLimiter != nil {
		verify.Use(middleware.RateLimit(s.VerifyLimiter))
	}
	verify.GET("", verifyHandler.Verify)

	authGroup := api.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)

	tenant := api.Group("/tenant", middleware.AuthRequired(s.Issuer), middleware.RoleRequired(models.RoleTenant))
	tenant.GET("/me", tenantHandler.Me)
	tenant.GET("/payments", tenantHandler.Payments)
	tenant.GET("/household", tenantHandler.ListHousehold)
	tenant.POST("/household", tenantHandler.AddMember)
	tenant.DELETE("/household/:id", tenantHandler.RemoveMember)

	admin := api.Group("/admin", middleware.AuthRequired(s.Issuer), middleware.RoleRequired(models.RoleAdmin))
	admin.GET("/summary", adminHandler.Summary)
	admin.GET("/tenants", adminHandler.Tenants)
	admin.GET("/household", adminHandler.Household)

	payments := admin.Group("/payments")
	{
		payments.GET("", adminHandler.ListPayments)
		payments.POST("", adminHandler.CreatePayment)
		payments.POST("/upload", adminHandler.Upload)
		payments.POST("/:id/paid", adminHandler.MarkPaid)
		payments.POST("/:id/overdue", adminHandler.MarkOverdue)
		payments.GET("/:id/audit", adminHandler.AuditTrail)
	}
	admin.GET("/imports/:batchId", adminHandler.GetImport)
}
