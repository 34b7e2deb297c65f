package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/openfroyo/stowage/pkg/catalogue"
)

// Column names of the bootstrap CSV files.
var (
	ContainerColumns = []string{"container_id", "zone", "width_cm", "depth_cm", "height_cm"}
	ItemColumns      = []string{
		"item_id", "name", "width_cm", "depth_cm", "height_cm", "mass_kg",
		"priority", "expiry_date", "usage_limit", "preferred_zone",
	}
)

// csvTable maps header names to column positions.
type csvTable struct {
	file    string
	reader  *csv.Reader
	columns map[string]int
}

func newCSVTable(r io.Reader, file string, required []string) (*csvTable, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ValidationError{File: file, Record: -1, Message: "missing header row"}
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}

	var missing []string
	for _, name := range required {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, ValidationError{
			File:    file,
			Line:    1,
			Record:  -1,
			Message: "missing columns: " + strings.Join(missing, ", "),
		}
	}

	return &csvTable{file: file, reader: reader, columns: columns}, nil
}

// each calls fn for every data row with its 1-indexed line number.
func (t *csvTable) each(fn func(row csvRow) error) error {
	for {
		fields, err := t.reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read row: %w", err)
		}
		line, _ := t.reader.FieldPos(0)
		if isBlank(fields) {
			continue
		}
		if err := fn(csvRow{table: t, fields: fields, line: line}); err != nil {
			return err
		}
	}
}

type csvRow struct {
	table  *csvTable
	fields []string
	line   int
}

func (r csvRow) str(name string) string {
	i := r.table.columns[name]
	if i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func (r csvRow) float(name string) (float64, error) {
	v := r.str(name)
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, r.errorf("invalid %s %q", name, v)
	}
	return f, nil
}

// int accepts integral floats such as "5.0", which spreadsheet exports emit.
func (r csvRow) int(name string) (int, error) {
	v := r.str(name)
	if v == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, r.errorf("invalid %s %q", name, v)
	}
	return int(f), nil
}

func (r csvRow) errorf(format string, args ...interface{}) error {
	return ValidationError{
		File:    r.table.file,
		Line:    r.line,
		Record:  -1,
		Message: fmt.Sprintf(format, args...),
	}
}

// ReadContainersCSV decodes container records from the bootstrap CSV layout.
func ReadContainersCSV(r io.Reader, file string) ([]catalogue.Container, error) {
	table, err := newCSVTable(r, file, ContainerColumns)
	if err != nil {
		return nil, err
	}

	var out []catalogue.Container
	err = table.each(func(row csvRow) error {
		c := catalogue.Container{
			ID:   row.str("container_id"),
			Zone: row.str("zone"),
		}
		if c.ID == "" {
			return row.errorf("container_id is empty")
		}
		var err error
		if c.Width, err = row.float("width_cm"); err != nil {
			return err
		}
		if c.Depth, err = row.float("depth_cm"); err != nil {
			return err
		}
		if c.Height, err = row.float("height_cm"); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReadItemsCSV decodes item records from the bootstrap CSV layout. Item ids
// are kept verbatim, leading zeros included.
func ReadItemsCSV(r io.Reader, file string) ([]catalogue.Item, error) {
	table, err := newCSVTable(r, file, ItemColumns)
	if err != nil {
		return nil, err
	}

	var out []catalogue.Item
	err = table.each(func(row csvRow) error {
		item := catalogue.Item{
			ID:            row.str("item_id"),
			Name:          row.str("name"),
			ExpiryDate:    row.str("expiry_date"),
			PreferredZone: row.str("preferred_zone"),
		}
		if item.ID == "" {
			return row.errorf("item_id is empty")
		}
		var err error
		if item.Width, err = row.float("width_cm"); err != nil {
			return err
		}
		if item.Depth, err = row.float("depth_cm"); err != nil {
			return err
		}
		if item.Height, err = row.float("height_cm"); err != nil {
			return err
		}
		if item.Mass, err = row.float("mass_kg"); err != nil {
			return err
		}
		if item.Priority, err = row.int("priority"); err != nil {
			return err
		}
		if item.UsageLimit, err = row.int("usage_limit"); err != nil {
			return err
		}
		out = append(out, item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// WriteContainersCSV encodes containers in the bootstrap layout.
func WriteContainersCSV(w io.Writer, containers []catalogue.Container) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ContainerColumns); err != nil {
		return err
	}
	for _, c := range containers {
		if err := cw.Write([]string{c.ID, c.Zone, fmtFloat(c.Width), fmtFloat(c.Depth), fmtFloat(c.Height)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteItemsCSV encodes items in the bootstrap layout.
func WriteItemsCSV(w io.Writer, items []catalogue.Item) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ItemColumns); err != nil {
		return err
	}
	for _, i := range items {
		expiry := i.ExpiryDate
		if expiry == "" {
			expiry = catalogue.NoExpiry
		}
		record := []string{
			i.ID, i.Name, fmtFloat(i.Width), fmtFloat(i.Depth), fmtFloat(i.Height), fmtFloat(i.Mass),
			strconv.Itoa(i.Priority), expiry, strconv.Itoa(i.UsageLimit), i.PreferredZone,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
