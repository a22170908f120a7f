package cleave

import (
	"errors"
	"fmt"
	"sort"
)

// -----------------------------------------------------------------------------
// Partitions accumulator
// -----------------------------------------------------------------------------

// Partitions maps a partition key to an accumulated table.
//
// Keys are split indices plus a caller-chosen offset, so several stratified
// splits over different category batches can share one Partitions without
// colliding. Partitions is not safe for concurrent use.
type Partitions struct {
	tables map[int]*Table
}

// NewPartitions creates an empty partition set.
func NewPartitions() *Partitions {
	return &Partitions{tables: make(map[int]*Table)}
}

// Initialize sets the table at key, replacing any previous value.
func (p *Partitions) Initialize(key int, t *Table) {
	p.tables[key] = t
}

// Append adds t's rows after the rows already stored at key. A missing key is
// created.
func (p *Partitions) Append(key int, t *Table) {
	existing, ok := p.tables[key]
	if !ok {
		p.tables[key] = t
		return
	}
	p.tables[key] = existing.Concat(t)
}

// Get returns the table at key.
func (p *Partitions) Get(key int) (*Table, bool) {
	t, ok := p.tables[key]
	return t, ok
}

// Keys returns the partition keys in ascending order.
func (p *Partitions) Keys() []int {
	keys := make([]int, 0, len(p.tables))
	for k := range p.tables {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// Len returns the number of partition keys.
func (p *Partitions) Len() int {
	return len(p.tables)
}

// Counts returns the row count per partition key.
func (p *Partitions) Counts() map[int]int {
	counts := make(map[int]int, len(p.tables))
	for k, t := range p.tables {
		counts[k] = t.Len()
	}
	return counts
}

// -----------------------------------------------------------------------------
// Stratified split
// -----------------------------------------------------------------------------

// StratifyMode selects how a stratified split writes into existing keys.
type StratifyMode int

const (
	// InitializeFirst makes the first category of the request replace the
	// table at every key; later categories append.
	InitializeFirst StratifyMode = iota

	// AppendAll makes every category append, leaving existing rows in place.
	AppendAll
)

// String returns the mode name used in configuration.
func (m StratifyMode) String() string {
	switch m {
	case InitializeFirst:
		return "initialize"
	case AppendAll:
		return "append"
	default:
		return fmt.Sprintf("StratifyMode(%d)", int(m))
	}
}

// ParseStratifyMode parses "initialize" or "append". An empty string selects
// InitializeFirst.
func ParseStratifyMode(s string) (StratifyMode, error) {
	switch s {
	case "", "initialize":
		return InitializeFirst, nil
	case "append":
		return AppendAll, nil
	default:
		return 0, fmt.Errorf("cleave: unknown stratify mode %q", s)
	}
}

// StratifyRequest describes one stratified split.
type StratifyRequest struct {
	// Categories lists the category values to process, in order.
	Categories []any

	// Column names the column holding each row's category.
	Column string

	// Fractions gives one fraction per split; they must be positive and sum to 1.
	Fractions []float64

	// KeyOffset is added to each split index to form its partition key.
	KeyOffset int

	// Mode selects initialize-then-append or append-only accumulation.
	Mode StratifyMode
}

// Stratify splits every requested category of t across len(req.Fractions)
// splits and accumulates the pieces into p under keys KeyOffset+i.
//
// Within a category rows keep their original order. Every split but the last
// receives floor(fraction * count) rows and the last receives the remainder,
// so each category is covered exactly. A category that does not occur in t
// contributes empty tables.
//
// The request is validated before anything is written; on error p is
// unchanged. A nil p is replaced by a new Partitions. Stratify returns p.
func Stratify(p *Partitions, t *Table, req StratifyRequest) (*Partitions, error) {
	if t == nil {
		return p, errors.New("cleave: stratify: table is nil")
	}
	if !t.HasColumn(req.Column) {
		return p, fmt.Errorf("cleave: stratify: %w: %q", ErrColumnNotFound, req.Column)
	}
	if err := validateFractions(req.Fractions); err != nil {
		return p, fmt.Errorf("cleave: stratify: %w", err)
	}
	if req.Mode != InitializeFirst && req.Mode != AppendAll {
		return p, fmt.Errorf("cleave: stratify: unknown mode %d", int(req.Mode))
	}

	keys := make([]string, len(req.Categories))
	wanted := make(map[string]bool, len(req.Categories))
	for i, c := range req.Categories {
		k := categoryKey(c)
		if wanted[k] {
			return p, fmt.Errorf("cleave: stratify: %w: %v", ErrDuplicateCategory, c)
		}
		wanted[k] = true
		keys[i] = k
	}

	groups := groupRows(t, req.Column, wanted)

	if p == nil {
		p = NewPartitions()
	}

	for ci, key := range keys {
		subset := &Table{columns: t.columns, rows: groups[key]}
		counts := allocate(subset.Len(), req.Fractions)

		start := 0
		for si, n := range counts {
			piece := subset.Slice(start, start+n)
			start += n

			partKey := si + req.KeyOffset
			if ci == 0 && req.Mode == InitializeFirst {
				p.Initialize(partKey, piece)
			} else {
				p.Append(partKey, piece)
			}
		}
	}

	return p, nil
}

// groupRows buckets rows by category key in one pass, keeping only wanted keys.
func groupRows(t *Table, column string, wanted map[string]bool) map[string][]Record {
	groups := make(map[string][]Record, len(wanted))
	for _, r := range t.rows {
		k := categoryKey(r[column])
		if wanted[k] {
			groups[k] = append(groups[k], r)
		}
	}
	return groups
}
