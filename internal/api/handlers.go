// Package api is the HTTP surface of the transfer service. Handlers decode
// requests, resolve the acting principal and delegate to the export/import
// core; all policy lives below this package.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sitesync/porter/internal/auth"
	"github.com/sitesync/porter/internal/importer"
	"github.com/sitesync/porter/internal/logger"
	"github.com/sitesync/porter/internal/metrics"
	"github.com/sitesync/porter/internal/models"
	"github.com/sitesync/porter/internal/snapshot"
)

// ExportService is the export surface the handlers call.
type ExportService interface {
	ExportOne(ctx context.Context, principal auth.Principal, recordID int64) (*models.ContentSnapshot, error)
	ExportBatch(ctx context.Context, principal auth.Principal, recordIDs []int64) (*models.BatchEnvelope, error)
}

// ImportService is the import surface the handlers call.
type ImportService interface {
	Validate(payload *models.Payload) (*importer.Report, error)
	ImportAll(ctx context.Context, principal auth.Principal, payload *models.Payload) *models.BatchResult
}

// Handlers provides the HTTP handlers for the API
type Handlers struct {
	exporter ExportService
	importer ImportService
	codec    *snapshot.Codec
	tracker  metrics.ActivityTracker
	logger   logger.Logger
}

// NewHandlers creates a new handlers instance. tracker may be nil when Redis
// is disabled; the activity endpoints then serve empty data.
func NewHandlers(exp ExportService, imp ImportService, codec *snapshot.Codec, tracker metrics.ActivityTracker, log logger.Logger) *Handlers {
	return &Handlers{
		exporter: exp,
		importer: imp,
		codec:    codec,
		tracker:  tracker,
		logger:   log,
	}
}

type exportRequest struct {
	RecordID int64 `json:"post_id"`
}

type exportBatchRequest struct {
	RecordIDs []int64 `json:"post_ids"`
}

// ExportOne handles POST /api/v1/exports
func (h *Handlers) ExportOne(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request body must carry post_id")
		return
	}

	principal := mustPrincipal(c)
	snap, err := h.exporter.ExportOne(c.Request.Context(), principal, req.RecordID)
	if err != nil {
		h.renderError(c, err, "export")
		return
	}

	doc, err := h.codec.EncodeSnapshot(snap)
	if err != nil {
		h.renderError(c, err, "export")
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", doc)
}

// ExportBatch handles POST /api/v1/exports/batch
func (h *Handlers) ExportBatch(c *gin.Context) {
	var req exportBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "request body must carry post_ids")
		return
	}

	principal := mustPrincipal(c)
	batch, err := h.exporter.ExportBatch(c.Request.Context(), principal, req.RecordIDs)
	if err != nil {
		h.renderError(c, err, "export batch")
		return
	}

	doc, err := h.codec.EncodeBatch(batch)
	if err != nil {
		h.renderError(c, err, "export batch")
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", doc)
}

// Import handles POST /api/v1/imports. The request body is a transfer
// document in either wire shape.
func (h *Handlers) Import(c *gin.Context) {
	payload, ok := h.decodeBody(c)
	if !ok {
		return
	}

	principal := mustPrincipal(c)
	result := h.importer.ImportAll(c.Request.Context(), principal, payload)

	if !payload.IsBatch() {
		// Single documents get a single answer: the item or its error
		if len(result.Failed) > 0 {
			failure := result.Failed[0]
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"code":    models.CodeImportFailed,
				"message": failure.Error,
			})
			return
		}
		c.JSON(http.StatusOK, result.Succeeded[0])
		return
	}

	c.JSON(http.StatusOK, result)
}

// ValidateImport handles POST /api/v1/imports/validate. Nothing is written.
func (h *Handlers) ValidateImport(c *gin.Context) {
	payload, ok := h.decodeBody(c)
	if !ok {
		return
	}

	report, err := h.importer.Validate(payload)
	if err != nil {
		h.renderError(c, err, "validate")
		return
	}
	c.JSON(http.StatusOK, report)
}

// RecentImports handles GET /api/v1/imports/recent
func (h *Handlers) RecentImports(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		limit = 50
	}

	if h.tracker == nil {
		c.JSON(http.StatusOK, gin.H{"imports": []metrics.RecentImport{}, "count": 0})
		return
	}

	items, err := h.tracker.GetRecentImports(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to get recent imports",
			logger.Error(err),
			logger.Int("limit", limit),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "activity_unavailable",
			"message": "failed to retrieve recent imports",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"imports": items, "count": len(items)})
}

// Stats handles GET /api/v1/stats
func (h *Handlers) Stats(c *gin.Context) {
	if h.tracker == nil {
		c.JSON(http.StatusOK, &metrics.Stats{ContentTypes: []metrics.ContentTypeStats{}})
		return
	}

	stats, err := h.tracker.GetStats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to get stats", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "activity_unavailable",
			"message": "failed to retrieve statistics",
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handlers) decodeBody(c *gin.Context) (*models.Payload, bool) {
	body, err := c.GetRawData()
	if err != nil || len(body) == 0 {
		badRequest(c, "request body must carry a transfer document")
		return nil, false
	}

	payload, err := snapshot.Decode(body)
	if err != nil {
		h.renderError(c, err, "decode")
		return nil, false
	}
	return payload, true
}

func (h *Handlers) renderError(c *gin.Context, err error, operation string) {
	code := models.ErrorCode(err)
	status := statusForCode(code)

	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			logger.String("operation", operation),
			logger.Error(err),
		)
	}

	message := err.Error()
	var coded *models.Error
	if errors.As(err, &coded) {
		message = coded.Message
	}
	c.JSON(status, gin.H{"code": code, "message": message})
}

func statusForCode(code string) int {
	switch code {
	case models.CodePermissionDenied:
		return http.StatusForbidden
	case models.CodeNotFound:
		return http.StatusNotFound
	case models.CodeMissingField,
		models.CodeInvalidContentType,
		models.CodeDecodeFailed,
		models.CodeEmptyBatch,
		models.CodeInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":    models.CodeInvalidRequest,
		"message": message,
	})
}

// mustPrincipal reads the principal the auth middleware attached. Routes
// using this helper are always behind that middleware.
func mustPrincipal(c *gin.Context) auth.Principal {
	principal, _ := auth.FromContext(c.Request.Context())
	return principal
}
