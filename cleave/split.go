package cleave

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// fractionTolerance bounds how far split fractions may drift from summing to 1.
const fractionTolerance = 1e-6

// -----------------------------------------------------------------------------
// Permuters
// -----------------------------------------------------------------------------

// Permuter returns a permutation of [0, n).
type Permuter func(n int) []int

// RandomPermuter draws from the process-wide generator. It is the default.
func RandomPermuter() Permuter {
	return rand.Perm
}

// SeededPermuter returns a Permuter that yields the same sequence of
// permutations for the same seed.
func SeededPermuter(seed uint64) Permuter {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return rng.Perm
}

// IdentityPermuter returns positions in their original order.
func IdentityPermuter() Permuter {
	return func(n int) []int {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
}

// -----------------------------------------------------------------------------
// Split options
// -----------------------------------------------------------------------------

type splitConfig struct {
	indices  []int
	permuter Permuter
}

// SplitOption configures Split.
type SplitOption func(*splitConfig)

// WithIndices makes Split use the given ordering verbatim instead of drawing a
// permutation. The ordering is not checked to be a permutation.
func WithIndices(indices []int) SplitOption {
	return func(c *splitConfig) {
		c.indices = indices
	}
}

// WithPermuter sets the permutation source used when no indices are supplied.
func WithPermuter(p Permuter) SplitOption {
	return func(c *splitConfig) {
		c.permuter = p
	}
}

// -----------------------------------------------------------------------------
// Uniform split
// -----------------------------------------------------------------------------

// Split partitions base into disjoint views of the given lengths.
//
// The lengths must be non-negative and sum to base.Len(); otherwise
// ErrLengthMismatch is returned and nothing is computed. The permutation used
// is returned alongside the views so callers can record or replay it: view k
// covers permutation[sum(lengths[:k]) : sum(lengths[:k+1])].
func Split[T any](base Indexed[T], lengths []int, opts ...SplitOption) ([]int, []*View[T], error) {
	if base == nil {
		return nil, nil, fmt.Errorf("cleave: split: base collection is nil")
	}

	cfg := &splitConfig{permuter: RandomPermuter()}
	for _, opt := range opts {
		opt(cfg)
	}

	total := 0
	for i, n := range lengths {
		if n < 0 {
			return nil, nil, fmt.Errorf("cleave: split: %w: length %d is negative (%d)", ErrLengthMismatch, i, n)
		}
		total += n
	}
	if total != base.Len() {
		return nil, nil, fmt.Errorf("cleave: split: %w: lengths sum to %d, dataset has %d", ErrLengthMismatch, total, base.Len())
	}

	indices := cfg.indices
	if indices == nil {
		if cfg.permuter == nil {
			return nil, nil, fmt.Errorf("cleave: split: permuter is nil")
		}
		indices = cfg.permuter(total)
	}
	if len(indices) != total {
		return nil, nil, fmt.Errorf("cleave: split: %w: %d indices for %d positions", ErrLengthMismatch, len(indices), total)
	}

	views := make([]*View[T], 0, len(lengths))
	offset := 0
	for _, n := range lengths {
		views = append(views, NewView(base, indices[offset:offset+n:offset+n]))
		offset += n
	}

	return indices, views, nil
}

// Lengths converts fractions into split lengths for a collection of the given
// size. Every split but the last receives floor(fraction * total); the last
// receives whatever remains, so the lengths always sum to total.
func Lengths(total int, fractions []float64) ([]int, error) {
	if total < 0 {
		return nil, fmt.Errorf("cleave: lengths: total %d is negative", total)
	}
	if err := validateFractions(fractions); err != nil {
		return nil, err
	}
	return allocate(total, fractions), nil
}

// allocate applies the floor-then-remainder rule. fractions must be validated.
func allocate(total int, fractions []float64) []int {
	counts := make([]int, len(fractions))
	used := 0
	last := len(fractions) - 1
	for i, f := range fractions {
		if i == last {
			counts[i] = total - used
			break
		}
		n := int(math.Floor(f * float64(total)))
		// Tolerance slack must never push the remainder below zero.
		if n > total-used {
			n = total - used
		}
		counts[i] = n
		used += n
	}
	return counts
}

func validateFractions(fractions []float64) error {
	if len(fractions) == 0 {
		return fmt.Errorf("%w: no fractions given", ErrInvalidFractions)
	}
	sum := 0.0
	for i, f := range fractions {
		if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
			return fmt.Errorf("%w: fraction %d is %v, must be positive", ErrInvalidFractions, i, f)
		}
		sum += f
	}
	if math.Abs(sum-1) > fractionTolerance {
		return fmt.Errorf("%w: fractions sum to %v, want 1", ErrInvalidFractions, sum)
	}
	return nil
}
