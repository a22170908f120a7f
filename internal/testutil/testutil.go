// Package testutil provides fixtures and cleanup helpers for examples and tests.
package testutil

import (
	"fmt"
	"os"
	"sort"

	"github.com/pithecene-io/cleave/cleave"
)

// LabeledTable builds a table with columns id and column holding counts[label]
// rows per label. Labels are laid out in sorted order and ids count up from 0.
func LabeledTable(column string, counts map[string]int) *cleave.Table {
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	var rows []cleave.Record
	for _, l := range labels {
		for range counts[l] {
			rows = append(rows, cleave.Record{"id": len(rows), column: l})
		}
	}
	return cleave.NewTable([]string{"id", column}, rows...)
}

// CountBy tallies the rows of t by the string form of column.
func CountBy(t *cleave.Table, column string) map[string]int {
	out := make(map[string]int)
	for _, r := range t.Rows() {
		out[fmt.Sprint(r[column])]++
	}
	return out
}

// RemoveAll removes path and its children, ignoring errors. Use with defer in
// examples that write to a temporary store root.
func RemoveAll(path string) { _ = os.RemoveAll(path) }
