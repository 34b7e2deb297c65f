package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/openfroyo/stowage/pkg/catalogue"
)

// ReadContainersJSON decodes containers from either a bare JSON array or an
// object of the form {"containers": [...]}, the shape the import endpoint takes.
func ReadContainersJSON(r io.Reader, file string) ([]catalogue.Container, error) {
	var out []catalogue.Container
	if err := decodeRecords(r, file, "containers", &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Items = nil
	}
	return out, nil
}

// ReadItemsJSON decodes items from either a bare JSON array or an object of
// the form {"items": [...]}. Assignment fields are discarded.
func ReadItemsJSON(r io.Reader, file string) ([]catalogue.Item, error) {
	var out []catalogue.Item
	if err := decodeRecords(r, file, "items", &out); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].ContainerID = ""
		out[i].PlacedAt = nil
	}
	return out, nil
}

func decodeRecords(r io.Reader, file, key string, dst interface{}) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file, err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	if data[0] == '{' {
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return jsonError(file, data, err)
		}
		raw, ok := wrapper[key]
		if !ok {
			return nil
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return ValidationError{File: file, Record: -1, Message: fmt.Sprintf("%s: %v", key, err)}
		}
		return nil
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return jsonError(file, data, err)
	}
	return nil
}

// jsonError locates syntax errors by line.
func jsonError(file string, data []byte, err error) error {
	ve := ValidationError{File: file, Record: -1, Message: err.Error()}

	var offset int64 = -1
	switch e := err.(type) {
	case *json.SyntaxError:
		offset = e.Offset
	case *json.UnmarshalTypeError:
		offset = e.Offset
	}
	if offset >= 0 && offset <= int64(len(data)) {
		ve.Line = bytes.Count(data[:offset], []byte("\n")) + 1
	}
	return ve
}
