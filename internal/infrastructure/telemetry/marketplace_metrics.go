package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/metric"

	"github.com/openground/backend/internal/domain/listing"
	"github.com/openground/backend/internal/domain/messaging"
	"github.com/openground/backend/internal/domain/report"
	"github.com/openground/backend/internal/domain/shared"
)

// MarketplaceMetrics turns domain events into OTEL instruments. It is
// subscribed to the event bus for every event type.
type MarketplaceMetrics struct {
	events        *Counter
	listingStatus *Counter
	messages      *Counter
	reports       *Counter
	streams       *UpDownCounter
}

// NewMarketplaceMetrics registers the marketplace instruments on meter.
func NewMarketplaceMetrics(meter metric.Meter) (*MarketplaceMetrics, error) {
	events, err1 := NewCounter(meter, "openground.domain.events", "Domain events published", "{event}")
	listingStatus, err2 := NewCounter(meter, "openground.listing.transitions", "Listing status transitions", "{transition}")
	messages, err3 := NewCounter(meter, "openground.messages.sent", "Messages posted to threads", "{message}")
	reports, err4 := NewCounter(meter, "openground.reports.filed", "Abuse reports filed", "{report}")
	streams, err5 := NewUpDownCounter(meter, "openground.realtime.streams", "Open realtime streams", "{stream}")
	if err := errors.Join(err1, err2, err3, err4, err5); err != nil {
		return nil, err
	}
	return &MarketplaceMetrics{
		events:        events,
		listingStatus: listingStatus,
		messages:      messages,
		reports:       reports,
		streams:       streams,
	}, nil
}

// EventTypes subscribes to everything.
func (m *MarketplaceMetrics) EventTypes() []string { return nil }

// Handle counts the event.
func (m *MarketplaceMetrics) Handle(ctx context.Context, event shared.DomainEvent) error {
	m.events.Inc(ctx, AttrEventType.String(event.EventType()))

	switch e := event.(type) {
	case *listing.ListingCreatedEvent:
		m.listingStatus.Inc(ctx, AttrStatus.String(string(e.Status)), AttrCategory.String(string(e.Category)))
	case *listing.ListingStatusChangedEvent:
		m.listingStatus.Inc(ctx, AttrStatus.String(string(e.NewStatus)))
	case *report.ReportEvent:
		if e.EventType() == report.EventTypeReportFiled {
			m.reports.Inc(ctx, AttrTargetType.String(string(e.TargetType)))
		}
	case *messaging.MessageSentEvent:
		m.messages.Inc(ctx)
	}
	return nil
}

// StreamOpened records a new realtime subscriber.
func (m *MarketplaceMetrics) StreamOpened(ctx context.Context) { m.streams.Add(ctx, 1) }

// StreamClosed records a subscriber going away.
func (m *MarketplaceMetrics) StreamClosed(ctx context.Context) { m.streams.Add(ctx, -1) }
