package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/openground/backend/internal/domain/identity"
	"github.com/openground/backend/internal/domain/listing"
	"github.com/openground/backend/internal/domain/messaging"
	"github.com/openground/backend/internal/domain/report"
	"github.com/openground/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// GormReportRepository implements report.ReportRepository using GORM
type GormReportRepository struct {
	db *gorm.DB
}

// NewGormReportRepository creates a new GormReportRepository
func NewGormReportRepository(db *gorm.DB) *GormReportRepository {
	return &GormReportRepository{db: db}
}

// Create inserts a report
func (r *GormReportRepository) Create(ctx context.Context, rp *report.Report) error {
	return r.db.WithContext(ctx).Create(rp).Error
}

// Update writes the moderation outcome using the version as an optimistic lock
func (r *GormReportRepository) Update(ctx context.Context, rp *report.Report) error {
	result := r.db.WithContext(ctx).Model(&report.Report{}).
		Where("id = ? AND version = ?", rp.ID, rp.Version-1).
		Updates(map[string]any{
			"status":          rp.Status,
			"resolver_id":     rp.ResolverID,
			"resolution_note": rp.ResolutionNote,
			"resolved_at":     rp.ResolvedAt,
			"version":         rp.Version,
			"updated_at":      rp.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// FindByID finds a report by ID
func (r *GormReportRepository) FindByID(ctx context.Context, id uuid.UUID) (*report.Report, error) {
	var rp report.Report
	if err := r.db.WithContext(ctx).First(&rp, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &rp, nil
}

// HasOpenReport reports whether the reporter already has an open report on the target
func (r *GormReportRepository) HasOpenReport(ctx context.Context, reporterID uuid.UUID, targetType report.TargetType, targetID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&report.Report{}).
		Where("reporter_id = ? AND target_type = ? AND target_id = ? AND status = ?",
			reporterID, targetType, targetID, report.StatusOpen).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// List returns one page of reports, oldest first so the moderation queue is FIFO
func (r *GormReportRepository) List(ctx context.Context, f report.Filter) ([]*report.Report, int64, error) {
	page, size := f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}

	query := r.db.WithContext(ctx).Model(&report.Report{})
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.TargetType != "" {
		query = query.Where("target_type = ?", f.TargetType)
	}
	if f.ReporterID != nil {
		query = query.Where("reporter_id = ?", *f.ReporterID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []*report.Report
	if err := query.Order("created_at ASC, id ASC").
		Offset((page - 1) * size).
		Limit(size).
		Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// GormTargetChecker implements report.TargetChecker against the main tables
type GormTargetChecker struct {
	db *gorm.DB
}

// NewGormTargetChecker creates a new GormTargetChecker
func NewGormTargetChecker(db *gorm.DB) *GormTargetChecker {
	return &GormTargetChecker{db: db}
}

// TargetExists reports whether the reported entity exists
func (c *GormTargetChecker) TargetExists(ctx context.Context, targetType report.TargetType, targetID uuid.UUID) (bool, error) {
	var model any
	switch targetType {
	case report.TargetListing:
		model = &listing.Listing{}
	case report.TargetUser:
		model = &identity.User{}
	case report.TargetMessage:
		model = &messaging.Message{}
	default:
		return false, nil
	}
	var count int64
	if err := c.db.WithContext(ctx).Model(model).Where("id = ?", targetID).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
