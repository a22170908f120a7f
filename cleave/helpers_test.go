package cleave

import "testing"

// labeled builds a table with columns id and label: n rows for each
// (label, n) pair, ids numbered from 0 in order.
func labeled(t *testing.T, groups ...any) *Table {
	t.Helper()
	if len(groups)%2 != 0 {
		t.Fatalf("labeled: odd number of arguments")
	}
	var rows []Record
	id := 0
	for i := 0; i < len(groups); i += 2 {
		n, ok := groups[i+1].(int)
		if !ok {
			t.Fatalf("labeled: count for %v is %T, want int", groups[i], groups[i+1])
		}
		for range n {
			rows = append(rows, Record{"id": id, "label": groups[i]})
			id++
		}
	}
	return NewTable([]string{"id", "label"}, rows...)
}

// ids returns the id column of t.
func ids(t *Table) []int {
	out := make([]int, 0, t.Len())
	for _, r := range t.Rows() {
		out = append(out, r["id"].(int))
	}
	return out
}

func seq(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}
