// Package table reads input rows from CSV and writes them back annotated with
// their resolved coordinates.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/UnknownOlympus/waypoint/internal/models"
)

// Default street columns.
const (
	DefaultPrimaryColumn   = "als"
	DefaultSecondaryColumn = "alsb"
)

var (
	// ErrMissingColumn is returned when a required column is absent from the header.
	ErrMissingColumn = errors.New("missing required column")
	// ErrExtraFields is returned when a record has more cells than the header.
	ErrExtraFields = errors.New("record has more fields than the header")
	// ErrResultMismatch is returned by Write when results do not line up with rows.
	ErrResultMismatch = errors.New("results do not match rows")
)

// nullTokens are the cell values read as a missing street name. They follow
// the defaults of common dataframe readers so exports load unchanged.
var nullTokens = map[string]struct{}{
	"":     {},
	"NA":   {},
	"N/A":  {},
	"n/a":  {},
	"NaN":  {},
	"nan":  {},
	"null": {},
	"NULL": {},
	"None": {},
	"<NA>": {},
}

// Columns names the street columns of the input.
type Columns struct {
	Primary   string
	Secondary string
}

func (c Columns) withDefaults() Columns {
	if c.Primary == "" {
		c.Primary = DefaultPrimaryColumn
	}
	if c.Secondary == "" {
		c.Secondary = DefaultSecondaryColumn
	}
	return c
}

// Table is an ordered set of input rows with their header.
type Table struct {
	Header []string
	Rows   []models.Row
}

// Read parses a CSV with a header line. Row keys are the 0-based record
// positions. Extra columns are kept untouched in Row.Fields. Short records
// are padded with missing cells; records longer than the header are rejected.
func Read(r io.Reader, cols Columns) (*Table, error) {
	cols = cols.withDefaults()

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		header[i] = name
		index[name] = i
	}
	for _, name := range []string{cols.Primary, cols.Secondary} {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("%w %q", ErrMissingColumn, name)
		}
	}

	get := func(rec []string, col string) string {
		i := index[col]
		if i >= len(rec) {
			return ""
		}
		return cell(rec[i])
	}

	table := &Table{Header: header}
	for key := 0; ; key++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return table, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record %d: %w", key, err)
		}
		if len(rec) > len(header) {
			return nil, fmt.Errorf("%w: record %d has %d fields, header has %d", ErrExtraFields, key, len(rec), len(header))
		}

		table.Rows = append(table.Rows, models.Row{
			Key:       key,
			Primary:   get(rec, cols.Primary),
			Secondary: get(rec, cols.Secondary),
			Fields:    rec,
		})
	}
}

func cell(v string) string {
	v = strings.TrimSpace(v)
	if _, ok := nullTokens[v]; ok {
		return ""
	}
	return v
}

// WriteOptions controls Write.
type WriteOptions struct {
	// DropUnresolved leaves rows without coordinates out of the output.
	DropUnresolved bool
}

// Write emits the table with latitude and longitude columns appended. results
// must hold one entry per row in row order. Unresolved rows get empty cells.
func Write(w io.Writer, table *Table, results []models.Result, opts WriteOptions) error {
	if len(results) != len(table.Rows) {
		return fmt.Errorf("%w: %d rows, %d results", ErrResultMismatch, len(table.Rows), len(results))
	}

	cw := csv.NewWriter(w)
	header := append(append([]string{}, table.Header...), "latitude", "longitude")
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, row := range table.Rows {
		result := results[i]
		if result.Key != row.Key {
			return fmt.Errorf("%w: row %d got result for %d", ErrResultMismatch, row.Key, result.Key)
		}
		if opts.DropUnresolved && !result.IsResolved() {
			continue
		}

		record := make([]string, len(table.Header), len(table.Header)+2)
		copy(record, row.Fields)
		lat, lon := "", ""
		if result.IsResolved() {
			lat = strconv.FormatFloat(result.Coordinates.Latitude, 'f', -1, 64)
			lon = strconv.FormatFloat(result.Coordinates.Longitude, 'f', -1, 64)
		}
		if err := cw.Write(append(record, lat, lon)); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
