// Package ingest reads container and item catalogues from files.
//
// Three formats are understood, chosen by file extension:
//
//   - .csv: the bootstrap layout with headers
//     container_id,zone,width_cm,depth_cm,height_cm and
//     item_id,name,width_cm,depth_cm,height_cm,mass_kg,priority,expiry_date,usage_limit,preferred_zone
//   - .json: a bare array of records or an object wrapping one under
//     "containers" or "items"
//   - .cue: a CUE file declaring `containers` and/or `items` lists
//
// Identifiers are always kept as strings so "000001" stays "000001".
// Records can be checked against CUE schemas (SchemaRegistry); CUE files are
// always checked and report errors with file positions.
//
// Watcher observes the catalogue files with fsnotify and calls back after a
// debounce period so a running server can re-import edited catalogues.
package ingest
