// Package api serves the placement engine over HTTP.
//
// Routes:
//
//	GET  /api/placement                 usage hint
//	POST /api/placement                 place {"item_id": "..."}
//	GET  /api/search?query=...          search items by id or name
//	POST /api/retrieve                  retrieve {"item_id": "..."}
//	GET  /api/waste/identify            list waste items
//	GET  /api/waste/return-plan         waste items to return
//	POST /api/waste/complete-undocking  unassign all waste
//	POST /api/import/items              import item records (JSON)
//	POST /api/import/containers         import container records (JSON)
//	GET  /api/export/arrangement        container contents
//	POST /api/simulate/day              advance a day, removing waste
//	GET  /api/logs                      placement log
//	GET  /healthz                       liveness and store health
//	GET  /metrics                       Prometheus metrics
//
// Errors are returned as {"status": "error", "message": "..."} with a status
// code derived from the engine error kind. When a store is attached, every
// mutating request saves a snapshot and an audit entry.
package api
