package ingest

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"

	"github.com/openfroyo/stowage/pkg/catalogue"
)

// LoadCUE reads a CUE catalogue file. The file declares a `containers` list,
// an `items` list, or both:
//
//	containers: [{container_id: "contA", zone: "Crew Quarters", width: 100, depth: 85, height: 200}]
//	items: [{item_id: "000001", name: "Food Packet", ...}]
//
// Every element is checked against the built-in schemas and all problems are
// reported with their file positions.
func (sr *SchemaRegistry) LoadCUE(path string) (*Catalogue, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return sr.DecodeCUE(content, path)
}

// DecodeCUE decodes CUE catalogue content; file names the source in errors.
func (sr *SchemaRegistry) DecodeCUE(content []byte, file string) (*Catalogue, error) {
	sr.mu.Lock()
	val := sr.cuectx.CompileBytes(content, cue.Filename(file))
	sr.mu.Unlock()
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err, file)
	}

	containerDef, _ := sr.Schema(SchemaContainer)
	itemDef, _ := sr.Schema(SchemaItem)

	var (
		out  Catalogue
		errs ValidationErrors
	)

	errs = append(errs, decodeList(val, "containers", containerDef, file, func(v cue.Value) error {
		var c catalogue.Container
		if err := v.Decode(&c); err != nil {
			return err
		}
		c.Items = nil
		out.Containers = append(out.Containers, c)
		return nil
	})...)

	errs = append(errs, decodeList(val, "items", itemDef, file, func(v cue.Value) error {
		var item catalogue.Item
		if err := v.Decode(&item); err != nil {
			return err
		}
		item.ContainerID = ""
		item.PlacedAt = nil
		out.Items = append(out.Items, item)
		return nil
	})...)

	if len(errs) > 0 {
		return nil, errs
	}
	return &out, nil
}

// decodeList validates each element of the list at field against def and
// hands the unified value to fn. A missing field is not an error.
func decodeList(root cue.Value, field string, def cue.Value, file string, fn func(cue.Value) error) ValidationErrors {
	list := root.LookupPath(cue.ParsePath(field))
	if !list.Exists() {
		return nil
	}

	iter, err := list.List()
	if err != nil {
		return convertCUEErrors(err, file)
	}

	var errs ValidationErrors
	for i := 0; iter.Next(); i++ {
		elem := def.Unify(iter.Value())
		if err := elem.Validate(cue.Concrete(true)); err != nil {
			for _, ve := range convertCUEErrors(err, file) {
				ve.Record = i
				errs = append(errs, ve)
			}
			continue
		}
		if err := fn(elem); err != nil {
			errs = append(errs, ValidationError{File: file, Record: i, Message: err.Error()})
		}
	}
	return errs
}

// convertCUEErrors converts CUE errors to a ValidationErrors list.
func convertCUEErrors(err error, file string) ValidationErrors {
	var out ValidationErrors

	for _, e := range errors.Errors(err) {
		ve := ValidationError{File: file, Record: -1, Message: errors.Details(e, nil)}

		// Prefer the position inside the catalogue file over schema positions.
		for _, pos := range errors.Positions(e) {
			if pos.Filename() == file {
				ve.Line = pos.Line()
				ve.Column = pos.Column()
				break
			}
		}
		out = append(out, ve)
	}

	return out
}
