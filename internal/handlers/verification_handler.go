package handler

import (
	"net/http"

	"estate-access-backend/internal/services/verification"

	"github.com/gin-gonic/gin"
)

type VerificationHandler struct {
	service *verification.Service
}

func NewVerificationHandler(s *verification.Service) *VerificationHandler {
	return &VerificationHandler{service: s}
}

// Verify answers the gate. The body is always the verification result; only
// the status code differs per verdict.
func (h *VerificationHandler) Verify(c *gin.Context) {
	res := h.service.Verify(c.Request.Context(), c.Query("code"))
	c.JSON(verdictStatus(res.Verdict), res)
}

func verdictStatus(v verification.Verdict) int {
	switch v {
	case verification.VerdictInvalidInput:
		return http.StatusBadRequest
	case verification.VerdictUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusOK
	}
}
