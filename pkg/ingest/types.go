package ingest

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/openfroyo/stowage/pkg/catalogue"
)

// Format is the encoding of a catalogue file.
type Format string

const (
	// FormatCSV is the bootstrap CSV layout.
	FormatCSV Format = "csv"

	// FormatJSON is a JSON array of records, or an object wrapping one.
	FormatJSON Format = "json"

	// FormatCUE is a CUE file declaring `containers` or `items` lists.
	FormatCUE Format = "cue"
)

// FormatOf returns the format implied by a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", fmt.Errorf("unsupported catalogue file type: %s", path)
	}
}

// Catalogue is a decoded pair of container and item records.
type Catalogue struct {
	Containers []catalogue.Container `json:"containers"`
	Items      []catalogue.Item      `json:"items"`
}

// ValidationError represents a record problem with location information.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Record is the position of the record in its list (0-indexed), or -1.
	Record int `json:"record"`

	// Message is the error message.
	Message string `json:"message"`
}

// Error implements the error interface.
func (v ValidationError) Error() string {
	var loc string
	switch {
	case v.File != "" && v.Line > 0:
		loc = fmt.Sprintf("%s:%d: ", v.File, v.Line)
	case v.File != "":
		loc = v.File + ": "
	}
	if v.Record >= 0 {
		loc += fmt.Sprintf("record %d: ", v.Record)
	}
	return loc + v.Message
}

// ValidationErrors collects every problem found in a file.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}
