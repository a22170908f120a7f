package cleave

import (
	"fmt"
	"slices"
	"sort"
)

// Table is an ordered set of records with an ordered column list.
//
// Tables are treated as immutable: Slice and Where share records with the
// receiver, and Concat returns a new table. Rows may omit columns; a missing
// value reads as nil.
type Table struct {
	columns []string
	rows    []Record
}

// NewTable creates a table with the given column order and rows.
func NewTable(columns []string, rows ...Record) *Table {
	return &Table{
		columns: slices.Clone(columns),
		rows:    rows,
	}
}

// TableFromRecords creates a table whose columns are the sorted union of the
// records' keys.
func TableFromRecords(records []Record) *Table {
	seen := make(map[string]bool)
	var columns []string
	for _, r := range records {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	sort.Strings(columns)
	return &Table{columns: columns, rows: records}
}

// Columns returns a copy of the column order.
func (t *Table) Columns() []string {
	return slices.Clone(t.columns)
}

// HasColumn reports whether name is one of the table's columns.
func (t *Table) HasColumn(name string) bool {
	return slices.Contains(t.columns, name)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// At returns row i, or ErrOutOfRange.
func (t *Table) At(i int) (Record, error) {
	if i < 0 || i >= len(t.rows) {
		return nil, fmt.Errorf("%w: row %d, table has %d rows", ErrOutOfRange, i, len(t.rows))
	}
	return t.rows[i], nil
}

// Rows returns the rows in order. The slice must not be modified.
func (t *Table) Rows() []Record {
	return t.rows
}

// Slice returns rows [start, end) as a table with the same columns.
// Bounds are clamped to the table.
func (t *Table) Slice(start, end int) *Table {
	start = max(0, min(start, len(t.rows)))
	end = max(start, min(end, len(t.rows)))
	return &Table{columns: t.columns, rows: t.rows[start:end:end]}
}

// Concat returns a new table holding t's rows followed by other's rows.
// Column order is t's columns followed by any columns only other has.
func (t *Table) Concat(other *Table) *Table {
	if other == nil {
		return &Table{columns: t.columns, rows: slices.Clone(t.rows)}
	}

	columns := slices.Clone(t.columns)
	for _, c := range other.columns {
		if !slices.Contains(columns, c) {
			columns = append(columns, c)
		}
	}

	rows := make([]Record, 0, len(t.rows)+len(other.rows))
	rows = append(rows, t.rows...)
	rows = append(rows, other.rows...)

	return &Table{columns: columns, rows: rows}
}

// Ensure Table implements Indexed
var _ Indexed[Record] = (*Table)(nil)
