// Package config loads the stowage workspace configuration.
//
// A workspace is a directory holding a stowage.yaml file and a data directory
// with the SQLite database. The file is YAML; every key is optional and
// falls back to Default:
//
//	workspace:
//	  name: station-alpha
//	  data_dir: data
//	  database: stowage.db
//	server:
//	  address: ":8000"
//	catalogue:
//	  containers_file: containers.csv
//	  items_file: input_items.csv
//	  watch: true
//	limits:
//	  max_items: 10
//	  max_mass: 100
//	  zone_bonus: 100
//	policy:
//	  enabled: true
//	  mode: enforcing
//	  paths: [policies/]
//	telemetry:
//	  logging:
//	    level: debug
//
// Load resolves relative paths against the directory of the file and
// validates the result with go-playground/validator struct tags, the limit
// rules of the engine and the telemetry rules.
package config
