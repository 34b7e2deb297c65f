package ingest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/openfroyo/stowage/pkg/catalogue"
)

// Schema names.
const (
	SchemaContainer = "container"
	SchemaItem      = "item"
)

// SchemaRegistry holds the CUE definitions records are checked against.
// A cue.Context is not safe for concurrent use, so every use of cuectx
// happens under mu.
type SchemaRegistry struct {
	mu     sync.RWMutex
	cuectx *cue.Context
	defs   map[string]cue.Value
}

// NewSchemaRegistry returns a registry holding the container and item
// record schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{cuectx: cuecontext.New(), defs: map[string]cue.Value{}}

	for name, def := range map[string]string{SchemaContainer: "#Container", SchemaItem: "#Item"} {
		if err := sr.Register(name, def, recordSchemas); err != nil {
			panic(err)
		}
	}
	return sr
}

// Register compiles source and stores its definition under name, replacing
// any earlier schema of that name.
func (sr *SchemaRegistry) Register(name, definition, source string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	compiled := sr.cuectx.CompileString(source, cue.Filename(name+".cue"))
	if compiled.Err() != nil {
		return fmt.Errorf("schema %s: %w", name, compiled.Err())
	}
	def := compiled.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return fmt.Errorf("schema %s: %s is not declared", name, definition)
	}

	sr.defs[name] = def
	return nil
}

// Schema returns the definition registered under name.
func (sr *SchemaRegistry) Schema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	def, ok := sr.defs[name]
	sr.mu.RUnlock()
	return def, ok
}

// Names lists the registered schemas in order.
func (sr *SchemaRegistry) Names() []string {
	sr.mu.RLock()
	names := make([]string, 0, len(sr.defs))
	for n := range sr.defs {
		names = append(names, n)
	}
	sr.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Validate checks one record against the named schema. The record is
// encoded through its JSON tags, so field names match the wire format.
func (sr *SchemaRegistry) Validate(_ context.Context, name string, record interface{}) error {
	def, ok := sr.Schema(name)
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}

	sr.mu.RLock()
	encoded := sr.cuectx.Encode(record)
	sr.mu.RUnlock()
	if encoded.Err() != nil {
		return fmt.Errorf("encode record: %w", encoded.Err())
	}

	if err := def.Unify(encoded).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s", cueerrors.Details(err, nil))
	}
	return nil
}

// ValidateContainers checks every container and reports each failing record
// by position.
func (sr *SchemaRegistry) ValidateContainers(ctx context.Context, records []catalogue.Container) ValidationErrors {
	return validateEach(ctx, sr, SchemaContainer, records, func(c catalogue.Container) string { return c.ID })
}

// ValidateItems checks every item and reports each failing record by
// position.
func (sr *SchemaRegistry) ValidateItems(ctx context.Context, records []catalogue.Item) ValidationErrors {
	return validateEach(ctx, sr, SchemaItem, records, func(it catalogue.Item) string { return it.ID })
}

func validateEach[T any](ctx context.Context, sr *SchemaRegistry, schema string, records []T, id func(T) string) ValidationErrors {
	var errs ValidationErrors
	for i, rec := range records {
		if err := sr.Validate(ctx, schema, rec); err != nil {
			errs = append(errs, ValidationError{Record: i, Message: fmt.Sprintf("%s %q: %v", schema, id(rec), err)})
		}
	}
	return errs
}

const recordSchemas = `
#Container: {
	container_id: string & != ""
	zone:         string
	width:        number & >0
	depth:        number & >0
	height:       number & >0

	// membership belongs to the engine; ignored on import
	items?: [...string] | null
}

#Item: {
	item_id: string & != ""
	name:    string
	width:   number & >0
	depth:   number & >0
	height:  number & >0
	mass:    number & >0

	priority:       int
	expiry_date?:   "" | "N/A" | =~"^[0-9]{4}-[0-9]{2}-[0-9]{2}$"
	usage_limit:    int & >=0
	preferred_zone: string

	// assignment belongs to the engine; ignored on import
	container?: string
	placed_at?: _
}
`
