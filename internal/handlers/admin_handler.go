package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"estate-access-backend/internal/middleware"
	"estate-access-backend/internal/models"
	"estate-access-backend/internal/repository"
	"estate-access-backend/internal/services/billing"
	"estate-access-backend/internal/services/directory"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
	maxUploadBytes  = 10 << 20
)

type AdminHandler struct {
	billing   *billing.Service
	directory *directory.Service
	logger    *slog.Logger

	// imports outlive the request that started them
	background context.Context
}

func NewAdminHandler(ctx context.Context, b *billing.Service, d *directory.Service, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{billing: b, directory: d, logger: logger, background: ctx}
}

func actor(c *gin.Context) string {
	if id, ok := middleware.AccountID(c); ok {
		return "account:" + id.String()
	}
	return "unknown"
}

func (h *AdminHandler) Summary(c *gin.Context) {
	sum, err := h.billing.Summary(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *AdminHandler) Tenants(c *gin.Context) {
	rows, err := h.directory.SearchTenants(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows})
}

func (h *AdminHandler) Household(c *gin.Context) {
	rows, err := h.directory.AllMembers(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows})
}

// ListPayments pages with limit/offset and over-fetches one row to report
// has_more.
func (h *AdminHandler) ListPayments(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	offset, _ := strconv.Atoi(c.Query("offset"))
	if offset < 0 {
		offset = 0
	}

	f := repository.PaymentFilter{
		Period: c.Query("period"),
		Query:  c.Query("q"),
		Limit:  limit + 1,
		Offset: offset,
	}
	if status := c.Query("status"); status != "" && status != "all" {
		for _, s := range strings.Split(status, ",") {
			st := models.PaymentStatus(strings.TrimSpace(s))
			if !st.Valid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status " + string(st)})
				return
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	if raw := c.Query("tenant_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant ID"})
			return
		}
		f.TenantID = &id
	}

	items, err := h.billing.ListPayments(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}
	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"has_more":    hasMore,
		"next_offset": offset + len(items),
	})
}

func (h *AdminHandler) CreatePayment(c *gin.Context) {
	var payload struct {
		Reference string `json:"reference"`
		TenantID  string `json:"tenant_id"`
		Amount    int64  `json:"amount"` // minor units
		Currency  string `json:"currency"`
		Period    string `json:"period"`
		DueDate   string `json:"due_date"` // yyyy-mm-dd
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant ID"})
		return
	}
	dueDate, err := time.Parse("2006-01-02", payload.DueDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid due date format, expected yyyy-mm-dd"})
		return
	}

	p, err := h.billing.CreatePayment(c.Request.Context(), billing.CreatePaymentInput{
		Reference: payload.Reference,
		TenantID:  tenantID,
		Amount:    payload.Amount,
		Currency:  payload.Currency,
		Period:    payload.Period,
		DueDate:   dueDate,
	}, actor(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *AdminHandler) MarkPaid(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment ID"})
		return
	}

	var payload struct {
		PaidAt string `json:"paid_at"` // RFC3339, optional
	}
	if err := c.ShouldBindJSON(&payload); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var paidAt time.Time
	if payload.PaidAt != "" {
		if paidAt, err = time.Parse(time.RFC3339, payload.PaidAt); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid paid_at, expected RFC3339"})
			return
		}
	}

	p, err := h.billing.MarkPaid(c.Request.Context(), id, paidAt, actor(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "payment marked paid", "payment": p})
}

func (h *AdminHandler) MarkOverdue(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment ID"})
		return
	}

	p, err := h.billing.MarkOverdue(c.Request.Context(), id, actor(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "payment marked overdue", "payment": p})
}

func (h *AdminHandler) AuditTrail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment ID"})
		return
	}

	trail, err := h.billing.AuditTrail(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": trail})
}

// Upload accepts a CSV of payment records, creates an import batch and
// processes it in the background.
func (h *AdminHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	defer file.Close()

	// the multipart file is gone once the handler returns
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}
	if len(data) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	batch, err := h.billing.StartImport(c.Request.Context(), header.Filename)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	who := actor(c)
	go func() {
		if _, err := h.billing.RunImport(h.background, batch.ID, bytes.NewReader(data), who); err != nil {
			h.logger.Warn("import did not complete", "batch_id", batch.ID, "error", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"batch_id": batch.ID.String(),
		"status":   batch.Status,
	})
}

func (h *AdminHandler) GetImport(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("batchId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch ID"})
		return
	}

	batch, err := h.billing.GetImport(c.Request.Context(), batchID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}
