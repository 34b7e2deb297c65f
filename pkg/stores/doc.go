// Package stores persists stowage workspaces. It includes SQLite-based storage
// with WAL mode and embedded migrations for catalogue snapshots, the
// append-only engine event log and the operator audit trail.
package stores
