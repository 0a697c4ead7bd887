// Package source provides the in-memory table abstraction the extraction
// engine consumes, plus loaders that fill it from CSV files or Postgres.
// Cells are held as strings; the empty string is a null cell. Column
// presence is best-effort: callers probe with HasColumn and degrade
// instead of failing when an optional column is absent.
package source

import (
	"fmt"
)

// Table is a column-oriented, fully materialized table. Rows are dense:
// every row has one cell per column, in column order.
type Table struct {
	name  string
	cols  []string
	index map[string]int
	rows  [][]string
}

// NewTable creates an empty table with the given column set. Duplicate
// column names are rejected.
func NewTable(name string, cols []string) (*Table, error) {
	index := make(map[string]int, len(cols))
	for i, c := range cols {
		if _, ok := index[c]; ok {
			return nil, fmt.Errorf("table %s: duplicate column %q", name, c)
		}
		index[c] = i
	}
	return &Table{
		name:  name,
		cols:  append([]string(nil), cols...),
		index: index,
	}, nil
}

// Name returns the table's name, used in log and error messages.
func (t *Table) Name() string { return t.name }

// Columns returns the column names in declaration order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.cols...)
}

// HasColumn reports whether the named column is present.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return len(t.rows) }

// AppendRow adds one row. The row must have exactly one cell per column.
func (t *Table) AppendRow(row []string) error {
	if len(row) != len(t.cols) {
		return fmt.Errorf("table %s: row has %d cells, want %d", t.name, len(row), len(t.cols))
	}
	t.rows = append(t.rows, append([]string(nil), row...))
	return nil
}

// Value returns the cell at (row, col). The second return is false when
// the column does not exist or the cell is null (empty).
func (t *Table) Value(row int, col string) (string, bool) {
	i, ok := t.index[col]
	if !ok {
		return "", false
	}
	v := t.rows[row][i]
	if v == "" {
		return "", false
	}
	return v, true
}

// Project returns a new table containing only the wanted columns that are
// actually present, in wanted order. Absent columns are skipped, not an
// error; the caller decides whether a missing column is fatal.
func (t *Table) Project(wanted []string) *Table {
	var keep []string
	var keepIdx []int
	for _, w := range wanted {
		if i, ok := t.index[w]; ok {
			keep = append(keep, w)
			keepIdx = append(keepIdx, i)
		}
	}
	out, _ := NewTable(t.name, keep)
	for _, row := range t.rows {
		cells := make([]string, len(keepIdx))
		for j, i := range keepIdx {
			cells[j] = row[i]
		}
		out.rows = append(out.rows, cells)
	}
	return out
}
