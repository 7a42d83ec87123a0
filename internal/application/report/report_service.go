package report

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openground/backend/internal/domain/report"
	"github.com/openground/backend/internal/domain/shared"
	"github.com/openground/backend/internal/infrastructure/logger"
)

// CreateReportRequest is the body of POST /reports
type CreateReportRequest struct {
	TargetType string `json:"target_type" binding:"required,oneof=listing user message"`
	TargetID   string `json:"target_id" binding:"required,uuid"`
	Reason     string `json:"reason" binding:"required,oneof=spam scam prohibited offensive duplicate other"`
	Details    string `json:"details" binding:"max=2000"`
}

// CloseReportRequest is the body of the resolve and dismiss endpoints
type CloseReportRequest struct {
	Note string `json:"note" binding:"max=1000"`
}

// ListReportsRequest holds the query of GET /admin/reports
type ListReportsRequest struct {
	Status     string `form:"status" binding:"omitempty,oneof=open resolved dismissed"`
	TargetType string `form:"target_type" binding:"omitempty,oneof=listing user message"`
	Page       int    `form:"page" binding:"omitempty,min=1"`
	PageSize   int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// ReportResponse is a report as returned by the API
type ReportResponse struct {
	ID             uuid.UUID  `json:"id"`
	ReporterID     uuid.UUID  `json:"reporter_id"`
	TargetType     string     `json:"target_type"`
	TargetID       uuid.UUID  `json:"target_id"`
	Reason         string     `json:"reason"`
	Details        string     `json:"details,omitempty"`
	Status         string     `json:"status"`
	ResolverID     *uuid.UUID `json:"resolver_id,omitempty"`
	ResolutionNote string     `json:"resolution_note,omitempty"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func toResponse(r *report.Report) ReportResponse {
	return ReportResponse{
		ID:             r.ID,
		ReporterID:     r.ReporterID,
		TargetType:     string(r.TargetType),
		TargetID:       r.TargetID,
		Reason:         string(r.Reason),
		Details:        r.Details,
		Status:         string(r.Status),
		ResolverID:     r.ResolverID,
		ResolutionNote: r.ResolutionNote,
		ResolvedAt:     r.ResolvedAt,
		CreatedAt:      r.CreatedAt,
	}
}

// ReportService files reports and runs the moderation queue
type ReportService struct {
	reports report.ReportRepository
	targets report.TargetChecker
	events  shared.EventPublisher
	logger  *zap.Logger
}

// NewReportService creates a new ReportService
func NewReportService(reports report.ReportRepository, targets report.TargetChecker, events shared.EventPublisher, logger *zap.Logger) *ReportService {
	return &ReportService{
		reports: reports,
		targets: targets,
		events:  events,
		logger:  logger,
	}
}

// Create files a report. A reporter may only have one open report per target.
func (s *ReportService) Create(ctx context.Context, reporterID uuid.UUID, req CreateReportRequest) (*ReportResponse, error) {
	targetID, err := uuid.Parse(req.TargetID)
	if err != nil {
		return nil, shared.NewDomainError("INVALID_INPUT", "target_id must be a UUID")
	}
	r, err := report.NewReport(reporterID, report.TargetType(req.TargetType), targetID, report.Reason(req.Reason), req.Details)
	if err != nil {
		return nil, err
	}

	exists, err := s.targets.TargetExists(ctx, r.TargetType, r.TargetID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, shared.NewDomainError("NOT_FOUND", "The reported "+req.TargetType+" does not exist")
	}
	open, err := s.reports.HasOpenReport(ctx, reporterID, r.TargetType, r.TargetID)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "You already reported this and it is being reviewed")
	}

	if err := s.reports.Create(ctx, r); err != nil {
		return nil, err
	}
	logger.Or(ctx, s.logger).Info("Report filed",
		zap.String("report_id", r.ID.String()),
		zap.String("target_type", string(r.TargetType)),
		zap.String("reason", string(r.Reason)),
	)
	s.publish(ctx, r)
	resp := toResponse(r)
	return &resp, nil
}

// ListMine returns the reports the user filed, any status
func (s *ReportService) ListMine(ctx context.Context, reporterID uuid.UUID, page, pageSize int) (shared.Paginated[ReportResponse], error) {
	return s.list(ctx, report.Filter{ReporterID: &reporterID, Page: page, PageSize: pageSize})
}

// List returns the moderation queue. Status defaults to open.
func (s *ReportService) List(ctx context.Context, req ListReportsRequest) (shared.Paginated[ReportResponse], error) {
	status := report.Status(req.Status)
	if status == "" {
		status = report.StatusOpen
	}
	return s.list(ctx, report.Filter{
		Status:     status,
		TargetType: report.TargetType(req.TargetType),
		Page:       req.Page,
		PageSize:   req.PageSize,
	})
}

func (s *ReportService) list(ctx context.Context, f report.Filter) (shared.Paginated[ReportResponse], error) {
	norm := shared.Filter{Page: f.Page, PageSize: f.PageSize}.Normalize(100)
	f.Page, f.PageSize = norm.Page, norm.PageSize

	items, total, err := s.reports.List(ctx, f)
	if err != nil {
		return shared.Paginated[ReportResponse]{}, err
	}
	out := make([]ReportResponse, 0, len(items))
	for _, r := range items {
		out = append(out, toResponse(r))
	}
	return shared.NewPaginated(out, total, f.Page, f.PageSize), nil
}

// Resolve closes an open report as acted upon
func (s *ReportService) Resolve(ctx context.Context, id, adminID uuid.UUID, req CloseReportRequest) (*ReportResponse, error) {
	return s.close(ctx, id, adminID, req.Note, (*report.Report).Resolve)
}

// Dismiss closes an open report without action
func (s *ReportService) Dismiss(ctx context.Context, id, adminID uuid.UUID, req CloseReportRequest) (*ReportResponse, error) {
	return s.close(ctx, id, adminID, req.Note, (*report.Report).Dismiss)
}

func (s *ReportService) close(ctx context.Context, id, adminID uuid.UUID, note string, transition func(*report.Report, uuid.UUID, string) error) (*ReportResponse, error) {
	r, err := s.reports.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := transition(r, adminID, note); err != nil {
		return nil, err
	}
	if err := s.reports.Update(ctx, r); err != nil {
		return nil, err
	}
	logger.Or(ctx, s.logger).Info("Report closed",
		zap.String("report_id", r.ID.String()),
		zap.String("status", string(r.Status)),
		zap.String("admin_id", adminID.String()),
	)
	s.publish(ctx, r)
	resp := toResponse(r)
	return &resp, nil
}

func (s *ReportService) publish(ctx context.Context, r *report.Report) {
	if err := shared.PublishAndClear(ctx, s.events, r); err != nil {
		logger.Or(ctx, s.logger).Warn("Failed to publish report events", zap.Error(err))
	}
}
