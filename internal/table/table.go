// Package table is the small CSV table used for upstream responses, per-station files and aggregates.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"geoclim/internal/models"
)

// Table is a header plus string rows of equal width
type Table struct {
	Header []string
	Rows   [][]string
}

// New creates an empty table with the given header
func New(header ...string) *Table {
	return &Table{Header: append([]string(nil), header...)}
}

// Read parses CSV from r. A header without rows is a valid, empty table.
func Read(r io.Reader, source string) (*Table, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = false
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &models.ParseError{Source: source, Reason: "empty payload, no header row"}
	}
	if err != nil {
		return nil, toParseError(source, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	t := &Table{Header: header}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, toParseError(source, err)
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

func toParseError(source string, err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &models.ParseError{Source: source, Line: pe.Line, Reason: pe.Err.Error()}
	}
	return &models.ParseError{Source: source, Reason: err.Error()}
}

// ReadFile parses the CSV file at path
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f, path)
}

// Len returns the number of data rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// Index returns the position of column name, or -1
func (t *Table) Index(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Column returns all values of column name
func (t *Table) Column(name string) ([]string, error) {
	idx := t.Index(name)
	if idx < 0 {
		return nil, &models.ParseError{Source: "table", Reason: fmt.Sprintf("missing column %q (have %s)", name, strings.Join(t.Header, ","))}
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out, nil
}

// Append adds a row; it must match the header width.
func (t *Table) Append(row ...string) error {
	if len(row) != len(t.Header) {
		return fmt.Errorf("row has %d fields, header has %d", len(row), len(t.Header))
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// Partition is the result of SplitBy
type Partition map[string]*Table

// Keys returns partition keys in ascending order, numeric keys compared as numbers.
func (p Partition) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	SortIDs(keys)
	return keys
}

// SortIDs sorts ids numerically where both parse as integers, lexically otherwise.
func SortIDs(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, errA := strconv.ParseInt(ids[i], 10, 64)
		b, errB := strconv.ParseInt(ids[j], 10, 64)
		if errA == nil && errB == nil {
			return a < b
		}
		return ids[i] < ids[j]
	})
}

// SplitBy groups rows by the value of column, keeping row order inside each group.
func (t *Table) SplitBy(column string) (Partition, error) {
	idx := t.Index(column)
	if idx < 0 {
		return nil, &models.ParseError{Source: "table", Reason: fmt.Sprintf("missing column %q", column)}
	}
	parts := make(Partition)
	for _, row := range t.Rows {
		key := strings.TrimSpace(row[idx])
		p, ok := parts[key]
		if !ok {
			p = New(t.Header...)
			parts[key] = p
		}
		p.Rows = append(p.Rows, row)
	}
	return parts, nil
}

// Write encodes the table as CSV
func (t *Table) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// WriteFileAtomic writes the table to path through a temporary file
func (t *Table) WriteFileAtomic(path string) error {
	return WriteAtomic(path, t.Write)
}
