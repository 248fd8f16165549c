package handler

import (
	"log/slog"
	"net/http"

	"estate-access-backend/internal/auth"
	"estate-access-backend/internal/models"
	"estate-access-backend/internal/services/directory"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	directory *directory.Service
	issuer    *auth.Issuer
	logger    *slog.Logger
}

func NewAuthHandler(d *directory.Service, issuer *auth.Issuer, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{directory: d, issuer: issuer, logger: logger}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var payload directory.RegisterInput
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	account, tenant, err := h.directory.Register(c.Request.Context(), payload)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	token, err := h.issuer.Issue(account.ID, account.Role, account.TenantID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"token": token, "account": loginView(account), "tenant": tenant})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil || payload.Email == "" || payload.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password required"})
		return
	}

	account, err := h.directory.Authenticate(c.Request.Context(), payload.Email, payload.Password)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	token, err := h.issuer.Issue(account.ID, account.Role, account.TenantID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "account": loginView(account)})
}

func loginView(a *models.Account) gin.H {
	out := gin.H{"id": a.ID, "email": a.Email, "role": a.Role}
	if a.TenantID != nil {
		out["tenant_id"] = a.TenantID
	}
	return out
}
