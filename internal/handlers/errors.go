package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"estate-access-backend/internal/auth"
	"estate-access-backend/internal/services/billing"
	"estate-access-backend/internal/services/directory"

	"github.com/gin-gonic/gin"
)

// statusFor maps service sentinels onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, billing.ErrInvalidPayment),
		errors.Is(err, directory.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, billing.ErrNotFound),
		errors.Is(err, billing.ErrImportNotFound),
		errors.Is(err, billing.ErrTenantNotFound),
		errors.Is(err, directory.ErrTenantNotFound),
		errors.Is(err, directory.ErrMemberNotFound):
		return http.StatusNotFound
	case errors.Is(err, billing.ErrInvalidTransition),
		errors.Is(err, billing.ErrDuplicateReference),
		errors.Is(err, directory.ErrEmailTaken):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, logger *slog.Logger, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
