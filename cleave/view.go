package cleave

import "fmt"

// -----------------------------------------------------------------------------
// Slice adapter
// -----------------------------------------------------------------------------

// Slice adapts a Go slice to Indexed.
type Slice[T any] []T

// Len returns the number of elements.
func (s Slice[T]) Len() int {
	return len(s)
}

// At returns the element at position i, or ErrOutOfRange.
func (s Slice[T]) At(i int) (T, error) {
	if i < 0 || i >= len(s) {
		var zero T
		return zero, fmt.Errorf("%w: position %d, length %d", ErrOutOfRange, i, len(s))
	}
	return s[i], nil
}

// -----------------------------------------------------------------------------
// View
// -----------------------------------------------------------------------------

// View is a read-only projection of a base collection through a list of
// positions. It does not copy or own the base data.
type View[T any] struct {
	base    Indexed[T]
	indices []int
}

// NewView creates a view selecting base[indices[0]], base[indices[1]], ...
//
// Indices are not validated against the base; an entry outside the base's
// range surfaces the base's own lookup error when accessed.
func NewView[T any](base Indexed[T], indices []int) *View[T] {
	return &View[T]{base: base, indices: indices}
}

// Len returns the number of selected positions.
func (v *View[T]) Len() int {
	return len(v.indices)
}

// At returns base[indices[i]].
func (v *View[T]) At(i int) (T, error) {
	if i < 0 || i >= len(v.indices) {
		var zero T
		return zero, fmt.Errorf("%w: view position %d, length %d", ErrOutOfRange, i, len(v.indices))
	}
	return v.base.At(v.indices[i])
}

// Indices returns a copy of the base positions this view selects.
func (v *View[T]) Indices() []int {
	out := make([]int, len(v.indices))
	copy(out, v.indices)
	return out
}

// Collect materializes the view in order. It stops at the first lookup error.
func (v *View[T]) Collect() ([]T, error) {
	out := make([]T, 0, len(v.indices))
	for i := range v.indices {
		item, err := v.At(i)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// Ensure adapters implement Indexed
var (
	_ Indexed[int] = Slice[int](nil)
	_ Indexed[int] = (*View[int])(nil)
)
