package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/openfroyo/stowage/pkg/telemetry"
)

// EventSink returns an event subscriber that appends every telemetry event to
// the store's event log. Failures are logged and the event dropped.
func EventSink(store Store, logger zerolog.Logger) telemetry.EventSubscriber {
	return func(ev telemetry.Event) {
		record := &Event{
			EventID:   ev.ID,
			Type:      ev.Type,
			Level:     EventLevel(ev.Level),
			Message:   ev.Message,
			Timestamp: ev.Timestamp,
		}
		if ev.ItemID != "" {
			itemID := ev.ItemID
			record.ItemID = &itemID
		}
		if ev.ContainerID != "" {
			containerID := ev.ContainerID
			record.ContainerID = &containerID
		}
		if len(ev.Data) > 0 {
			data, err := json.Marshal(ev.Data)
			if err != nil {
				logger.Warn().Err(err).Str("event_type", ev.Type).Msg("Failed to encode event details")
			} else {
				details := string(data)
				record.Details = &details
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := store.AppendEvent(ctx, record); err != nil {
			logger.Warn().Err(err).Str("event_type", ev.Type).Msg("Failed to record event")
		}
	}
}
