package telemetry

import (
	"context"
	"errors"

	"github.com/openfroyo/stowage/pkg/engine"
)

// EngineObserver turns engine notifications into log lines, metrics, span
// events and published events. The engine calls it with its lock held, so
// it must never call back into the engine.
type EngineObserver struct {
	log     *Logger
	metrics *Metrics
	events  *EventPublisher
}

var _ engine.Observer = (*EngineObserver)(nil)

// NewEngineObserver creates an observer. Nil arguments are replaced by
// no-op stand-ins.
func NewEngineObserver(logger *Logger, metrics *Metrics, events *EventPublisher) *EngineObserver {
	if logger == nil {
		logger = NopLogger()
	}
	if metrics == nil {
		metrics = &Metrics{}
	}
	if events == nil {
		events = &EventPublisher{}
	}
	return &EngineObserver{log: logger.NewComponentLogger("engine"), metrics: metrics, events: events}
}

func (o *EngineObserver) ItemPlaced(ctx context.Context, r engine.PlacementResult) {
	o.log.Info().
		Str("item_id", r.ItemID).
		Str("container_id", r.ContainerID).
		Int("score", r.Score).
		Msg("Item placed")
	o.metrics.RecordPlacement("placed", float64(r.Score))
	AddEvent(SpanFromContext(ctx), EventTypeItemPlaced,
		AttrItemID.String(r.ItemID), AttrContainerID.String(r.ContainerID), AttrScore.Int(r.Score))
	o.published(o.events.PublishItemPlaced(r.ItemID, r.ContainerID, float64(r.Score), r.PreviousContainerID))
}

func (o *EngineObserver) PlacementRejected(ctx context.Context, itemID string, err error) {
	kind, code := classify(err)
	o.log.Warn().Str("item_id", itemID).Str("kind", kind).Msg("Placement rejected")

	outcome := "error"
	switch engine.ErrorKind(kind) {
	case engine.ErrorKindNotFound:
		outcome = "not_found"
	case engine.ErrorKindIneligible:
		outcome = "ineligible"
	}
	o.metrics.RecordPlacement(outcome, 0)
	AddEvent(SpanFromContext(ctx), EventTypePlacementRejected, AttrItemID.String(itemID), AttrErrorKind.String(kind))

	reason := err.Error()
	var ee *engine.EngineError
	if errors.As(err, &ee) {
		reason = ee.Reason()
	}
	o.published(o.events.PublishPlacementRejected(itemID, reason, code))
}

func (o *EngineObserver) ItemRetrieved(ctx context.Context, r engine.RetrievalResult) {
	o.log.Info().Str("item_id", r.ItemID).Str("container_id", r.ContainerID).Msg("Item retrieved")
	o.metrics.RecordRetrieval("retrieved")
	AddEvent(SpanFromContext(ctx), EventTypeItemRetrieved,
		AttrItemID.String(r.ItemID), AttrContainerID.String(r.ContainerID))
	o.published(o.events.PublishItemRetrieved(r.ItemID, r.ContainerID))
}

func (o *EngineObserver) WasteRemoved(ctx context.Context, operation string, removed []engine.Removal) {
	o.log.Info().Str("operation", operation).Int("removed", len(removed)).Msg("Expired items removed")
	o.metrics.RecordWasteRemoved(operation, len(removed))
	AddEvent(SpanFromContext(ctx), EventTypeWasteRemoved,
		AttrOperation.String(operation), AttrRemoved.Int(len(removed)))
	for _, r := range removed {
		o.published(o.events.PublishWasteRemoved(operation, r.ItemID, r.ContainerID))
	}
}

func (o *EngineObserver) MalformedExpiry(ctx context.Context, itemID string, err *engine.EngineError) {
	value, _ := err.Details["value"].(string)
	o.log.Warn().Str("item_id", itemID).Str("value", value).Msg("Skipping malformed expiry date")
	o.metrics.RecordMalformedExpiry()
	AddEvent(SpanFromContext(ctx), EventTypeExpiryMalformed, AttrItemID.String(itemID))
	o.published(o.events.PublishMalformedExpiry(itemID, value))
}

func (o *EngineObserver) CatalogueImported(ctx context.Context, kind engine.ImportKind, r engine.ImportResult) {
	o.log.Info().
		Str("kind", string(kind)).
		Int("imported", r.Imported).
		Int("created", r.Created).
		Int("replaced", r.Replaced).
		Int("evicted", len(r.Evicted)).
		Msg("Catalogue imported")
	for _, w := range r.Warnings {
		o.log.Warn().Str("kind", string(kind)).Str("warning", w).Msg("Import policy warning")
	}

	o.metrics.RecordImport(string(kind), string(r.Status))
	AddEvent(SpanFromContext(ctx), EventTypeCatalogueImported, AttrImportKind.String(string(kind)))
	o.published(o.events.PublishCatalogueImported(string(kind), r.Imported, r.Created, r.Replaced, len(r.Evicted)))

	for _, ev := range r.Evicted {
		o.metrics.RecordEviction(ev.Reason)
		o.published(o.events.PublishItemEvicted(ev.ItemID, ev.ContainerID, ev.Reason))
	}
}

func (o *EngineObserver) published(err error) {
	if err != nil {
		o.log.Debug().Err(err).Msg("Event not published")
	}
}
