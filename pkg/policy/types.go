package policy

import (
	"time"

	"github.com/openfroyo/stowage/pkg/catalogue"
	"github.com/openfroyo/stowage/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that reject an import.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that reject an import even in
	// advisory mode.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation of this severity rejects an import.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Mode controls what happens to error-severity violations.
type Mode string

const (
	// ModeEnforcing rejects imports with error or critical violations.
	ModeEnforcing Mode = "enforcing"

	// ModeAdvisory downgrades error violations to warnings. Critical
	// violations still reject the import.
	ModeAdvisory Mode = "advisory"
)

// Policy is one admission rule.
type Policy struct {
	// Name identifies the policy. A custom policy with a built-in name
	// replaces the built-in one.
	Name string `json:"name"`

	Description string `json:"description,omitempty"`

	// Rego is the policy source. Its package defines a `deny` set whose
	// members are strings or objects with message, severity and record keys.
	Rego string `json:"rego"`

	// Severity applies to deny entries that carry none.
	Severity Severity `json:"severity"`

	Enabled bool `json:"enabled"`

	// Builtin is set on policies compiled into the engine.
	Builtin bool `json:"builtin,omitempty"`

	Tags []string `json:"tags,omitempty"`

	// Source is the file the policy was read from, empty for built-ins.
	Source string `json:"source,omitempty"`

	// LoadedAt is when the policy was read.
	LoadedAt time.Time `json:"loaded_at"`
}

// PolicyInput is the document policies see as `input`.
type PolicyInput struct {
	// Kind is "items" or "containers".
	Kind engine.ImportKind `json:"kind"`

	// Items holds the records of an item import.
	Items []catalogue.Item `json:"items,omitempty"`

	// Containers holds the records of a container import.
	Containers []catalogue.Container `json:"containers,omitempty"`

	// Limits are the engine capacity limits.
	Limits engine.Limits `json:"limits"`

	// Context provides additional evaluation context.
	Context *PolicyContext `json:"context"`
}

// PolicyContext provides context information for policy evaluation.
type PolicyContext struct {
	// Timestamp is the engine clock at evaluation time.
	Timestamp time.Time `json:"timestamp"`

	// Today is Timestamp's date in YYYY-MM-DD form, comparable with expiry dates.
	Today string `json:"today"`

	// Operation is the engine operation being admitted.
	Operation string `json:"operation"`

	// Mode is the enforcement mode.
	Mode Mode `json:"mode"`
}

// PolicyBundle is a JSON file carrying several policies.
type PolicyBundle struct {
	Name        string   `json:"name"`
	Version     string   `json:"version,omitempty"`
	Description string   `json:"description,omitempty"`
	Policies    []Policy `json:"policies"`
}
