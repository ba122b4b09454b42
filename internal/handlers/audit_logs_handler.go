package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/BruksfildServices01/marketplace-exchange/internal/httperr"
	"github.com/BruksfildServices01/marketplace-exchange/internal/httpresp"
	"github.com/BruksfildServices01/marketplace-exchange/internal/middleware"
	"github.com/BruksfildServices01/marketplace-exchange/internal/models"
	ucTransaction "github.com/BruksfildServices01/marketplace-exchange/internal/usecase/transaction"
)

// ======================================================
// HANDLER
// ======================================================

// AuditLogsHandler lists the recorded events of one transaction to its
// parties. Only mounted with database storage.
type AuditLogsHandler struct {
	db  *gorm.DB
	get *ucTransaction.GetTransaction
}

func NewAuditLogsHandler(db *gorm.DB, get *ucTransaction.GetTransaction) *AuditLogsHandler {
	return &AuditLogsHandler{db: db, get: get}
}

func (h *AuditLogsHandler) List(c *gin.Context) {
	id := c.Param("id")

	// party check
	if _, err := h.get.Execute(c.Request.Context(), id, middleware.PersonID(c)); err != nil {
		writeError(c, err)
		return
	}

	action := c.Query("action")
	fromStr := c.Query("from")
	toStr := c.Query("to")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page <= 0 {
		page = 1
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	offset := (page - 1) * limit

	q := h.db.WithContext(c.Request.Context()).
		Model(&models.AuditLog{}).
		Where("entity = ? AND entity_id = ?", "transaction", id)

	if action != "" {
		q = q.Where("action = ?", action)
	}

	if fromStr != "" {
		if from, err := time.Parse("2006-01-02", fromStr); err == nil {
			q = q.Where("created_at >= ?", from)
		}
	}

	if toStr != "" {
		if to, err := time.Parse("2006-01-02", toStr); err == nil {
			q = q.Where("created_at < ?", to.Add(24*time.Hour))
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		_ = c.Error(err)
		httperr.Internal(c, "audit_count_failed", "Could not count events.")
		return
	}

	var logs []models.AuditLog
	if err := q.
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error; err != nil {

		_ = c.Error(err)
		httperr.Internal(c, "audit_list_failed", "Could not list events.")
		return
	}

	httpresp.Page(c, logs, page, limit, total)
}
