// Package report models user complaints about listings, users and messages.
package report

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/openground/backend/internal/domain/shared"
)

// TargetType is the kind of object being reported
type TargetType string

const (
	TargetListing TargetType = "listing"
	TargetUser    TargetType = "user"
	TargetMessage TargetType = "message"
)

// IsValid reports whether t is a known target type
func (t TargetType) IsValid() bool {
	return t == TargetListing || t == TargetUser || t == TargetMessage
}

// Reason classifies a report
type Reason string

const (
	ReasonSpam       Reason = "spam"
	ReasonScam       Reason = "scam"
	ReasonProhibited Reason = "prohibited"
	ReasonOffensive  Reason = "offensive"
	ReasonDuplicate  Reason = "duplicate"
	ReasonOther      Reason = "other"
)

// IsValid reports whether r is a known reason
func (r Reason) IsValid() bool {
	switch r {
	case ReasonSpam, ReasonScam, ReasonProhibited, ReasonOffensive, ReasonDuplicate, ReasonOther:
		return true
	}
	return false
}

// Status is the moderation state of a report
type Status string

const (
	StatusOpen      Status = "open"
	StatusResolved  Status = "resolved"
	StatusDismissed Status = "dismissed"
)

// Report is a complaint filed by a user
type Report struct {
	shared.BaseAggregateRoot
	ReporterID     uuid.UUID  `gorm:"type:uuid;not null;index"`
	TargetType     TargetType `gorm:"type:varchar(20);not null;index:idx_reports_target,priority:1"`
	TargetID       uuid.UUID  `gorm:"type:uuid;not null;index:idx_reports_target,priority:2"`
	Reason         Reason     `gorm:"type:varchar(20);not null"`
	Details        string     `gorm:"type:text"`
	Status         Status     `gorm:"type:varchar(20);not null;index"`
	ResolverID     *uuid.UUID `gorm:"type:uuid"`
	ResolutionNote string     `gorm:"type:varchar(1000)"`
	ResolvedAt     *time.Time
}

// TableName returns the table name for GORM
func (Report) TableName() string {
	return "reports"
}

// NewReport validates and files a report
func NewReport(reporterID uuid.UUID, targetType TargetType, targetID uuid.UUID, reason Reason, details string) (*Report, error) {
	if reporterID == uuid.Nil || targetID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_REPORT", "Reporter and target are required")
	}
	if !targetType.IsValid() {
		return nil, shared.NewDomainError("INVALID_TARGET_TYPE", "Target type must be listing, user or message")
	}
	if targetType == TargetUser && targetID == reporterID {
		return nil, shared.NewDomainError("CANNOT_REPORT_SELF", "You cannot report yourself")
	}
	if !reason.IsValid() {
		return nil, shared.NewDomainError("INVALID_REASON", "Unknown report reason")
	}
	details = strings.TrimSpace(details)
	if reason == ReasonOther && details == "" {
		return nil, shared.NewDomainError("DETAILS_REQUIRED", "Please describe the problem")
	}
	if utf8.RuneCountInString(details) > 2000 {
		return nil, shared.NewDomainError("INVALID_DETAILS", "Details cannot exceed 2000 characters")
	}

	r := &Report{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		ReporterID:        reporterID,
		TargetType:        targetType,
		TargetID:          targetID,
		Reason:            reason,
		Details:           details,
		Status:            StatusOpen,
	}
	r.AddDomainEvent(NewReportEvent(EventTypeReportFiled, r))
	return r, nil
}

// Resolve closes the report as acted upon
func (r *Report) Resolve(resolverID uuid.UUID, note string) error {
	return r.close(StatusResolved, resolverID, note)
}

// Dismiss closes the report without action
func (r *Report) Dismiss(resolverID uuid.UUID, note string) error {
	return r.close(StatusDismissed, resolverID, note)
}

func (r *Report) close(status Status, resolverID uuid.UUID, note string) error {
	if r.Status != StatusOpen {
		return shared.NewDomainError("INVALID_STATE", "Only open reports can be closed")
	}
	note = strings.TrimSpace(note)
	if len(note) > 1000 {
		return shared.NewDomainError("INVALID_NOTE", "Resolution note cannot exceed 1000 characters")
	}
	now := time.Now()
	r.Status = status
	r.ResolverID = &resolverID
	r.ResolutionNote = note
	r.ResolvedAt = &now
	r.IncrementVersion()
	r.AddDomainEvent(NewReportEvent(EventTypeReportClosed, r))
	return nil
}

// Event types
const (
	AggregateTypeReport   = "Report"
	EventTypeReportFiled  = "report.filed"
	EventTypeReportClosed = "report.closed"
)

// ReportEvent is published when a report is filed or closed
type ReportEvent struct {
	shared.BaseDomainEvent
	TargetType TargetType `json:"target_type"`
	TargetID   uuid.UUID  `json:"target_id"`
	Reason     Reason     `json:"reason"`
	Status     Status     `json:"status"`
}

// NewReportEvent creates a report event of the given type
func NewReportEvent(eventType string, r *Report) *ReportEvent {
	return &ReportEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, AggregateTypeReport, r.ID),
		TargetType:      r.TargetType,
		TargetID:        r.TargetID,
		Reason:          r.Reason,
		Status:          r.Status,
	}
}

// Filter narrows report listings
type Filter struct {
	Status     Status
	TargetType TargetType
	ReporterID *uuid.UUID
	Page       int
	PageSize   int
}

// ReportRepository defines the interface for report persistence
type ReportRepository interface {
	Create(ctx context.Context, r *Report) error
	Update(ctx context.Context, r *Report) error
	FindByID(ctx context.Context, id uuid.UUID) (*Report, error)
	HasOpenReport(ctx context.Context, reporterID uuid.UUID, targetType TargetType, targetID uuid.UUID) (bool, error)
	List(ctx context.Context, filter Filter) ([]*Report, int64, error)
}

// TargetChecker verifies that a reported object exists
type TargetChecker interface {
	TargetExists(ctx context.Context, targetType TargetType, targetID uuid.UUID) (bool, error)
}
