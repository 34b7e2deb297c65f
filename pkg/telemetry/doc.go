// Package telemetry wires zerolog, OpenTelemetry tracing, Prometheus metrics
// and an in-process event publisher into one Telemetry value built from the
// telemetry section of stowage.yaml.
//
// The engine reports through EngineObserver, obtained from
// Telemetry.Observer. The observer runs under the engine lock and only
// touches its own collaborators; with EventsConfig.Async set, subscribers
// such as the SQLite event log run on the publisher goroutine instead.
//
// Callers wrap engine calls with InstrumentOperation to get a span named
// "stowage.<operation>", an operation-scoped logger in the context and the
// operation counters:
//
//	err := telemetry.InstrumentOperation(ctx, engine.OpPlace, func(ctx context.Context) error {
//		_, err := eng.Place(ctx, itemID)
//		return err
//	}, telemetry.AttrItemID.String(itemID))
//
// Metric names carry the configured namespace, "stowage" by default:
//
//	placements_total{outcome}            placement_score
//	retrievals_total{outcome}            waste_removed_total{operation}
//	malformed_expiry_total               imports_total{kind,status}
//	evictions_total{reason}              operations_total{operation,status}
//	operation_duration_seconds           http_requests_total{method,route,status}
//	errors_by_kind_total{kind}           errors_by_code_total{code}
//	catalogue_containers                 catalogue_items
//	catalogue_assigned_items             container_mass_kg{container_id}
//
// Shutdown delivers every queued event before it returns.
package telemetry
