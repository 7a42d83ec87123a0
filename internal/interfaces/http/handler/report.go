package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openground/backend/internal/application/report"
	"github.com/openground/backend/internal/interfaces/http/dto"
)

// ReportHandler handles abuse reports and the admin moderation queue
type ReportHandler struct {
	BaseHandler
	reports *report.ReportService
}

// NewReportHandler creates a new report handler
func NewReportHandler(reports *report.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Create handles POST /reports
func (h *ReportHandler) Create(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req report.CreateReportRequest
	if !h.bindJSON(c, &req) {
		return
	}

	resp, err := h.reports.Create(c.Request.Context(), userID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// ListMine handles GET /reports/mine
func (h *ReportHandler) ListMine(c *gin.Context) {
	userID, ok := h.currentUser(c)
	if !ok {
		return
	}
	var q dto.PageQuery
	if !h.bindQuery(c, &q) {
		return
	}

	page, err := h.reports.ListMine(c.Request.Context(), userID, q.Page, q.PageSize)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	successPage(&h.BaseHandler, c, page)
}

// List handles GET /admin/reports
func (h *ReportHandler) List(c *gin.Context) {
	var req report.ListReportsRequest
	if !h.bindQuery(c, &req) {
		return
	}

	page, err := h.reports.List(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	successPage(&h.BaseHandler, c, page)
}

// Resolve handles POST /admin/reports/:id/resolve
func (h *ReportHandler) Resolve(c *gin.Context) {
	h.close(c, h.reports.Resolve)
}

// Dismiss handles POST /admin/reports/:id/dismiss
func (h *ReportHandler) Dismiss(c *gin.Context) {
	h.close(c, h.reports.Dismiss)
}

func (h *ReportHandler) close(c *gin.Context, apply func(ctx context.Context, id, adminID uuid.UUID, req report.CloseReportRequest) (*report.ReportResponse, error)) {
	adminID, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := h.uuidParam(c, "id")
	if !ok {
		return
	}
	var req report.CloseReportRequest
	if c.Request.ContentLength != 0 {
		if !h.bindJSON(c, &req) {
			return
		}
	}

	resp, err := apply(c.Request.Context(), id, adminID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
