package handler

import (
	"log/slog"
	"net/http"

	"estate-access-backend/internal/middleware"
	"estate-access-backend/internal/services/billing"
	"estate-access-backend/internal/services/directory"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type TenantHandler struct {
	directory *directory.Service
	billing   *billing.Service
	logger    *slog.Logger
}

func NewTenantHandler(d *directory.Service, b *billing.Service, logger *slog.Logger) *TenantHandler {
	return &TenantHandler{directory: d, billing: b, logger: logger}
}

func (h *TenantHandler) tenantID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.TenantID(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "account is not linked to a tenant"})
	}
	return id, ok
}

func (h *TenantHandler) Me(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	ov, err := h.directory.TenantOverview(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ov)
}

func (h *TenantHandler) Payments(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	payments, err := h.billing.TenantPayments(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": payments})
}

func (h *TenantHandler) ListHousehold(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	members, err := h.directory.ListMembers(c.Request.Context(), tenantID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": members})
}

func (h *TenantHandler) AddMember(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	var payload directory.MemberInput
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	member, err := h.directory.AddMember(c.Request.Context(), tenantID, payload)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, member)
}

func (h *TenantHandler) RemoveMember(c *gin.Context) {
	tenantID, ok := h.tenantID(c)
	if !ok {
		return
	}
	memberID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid member ID"})
		return
	}

	if err := h.directory.RemoveMember(c.Request.Context(), tenantID, memberID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
