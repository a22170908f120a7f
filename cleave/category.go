package cleave

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// categoryKey renders a category value into a comparison key. Numbers of any
// Go type compare by value, so an int from configuration matches a float64
// decoded from JSON. Integers are keyed exactly; a float matches an integer
// only when it is integral and within the exact float64 range.
func categoryKey(v any) string {
	if k, ok := numericKey(v); ok {
		return "n:" + k
	}
	switch val := v.(type) {
	case nil:
		return "nil"
	case string:
		return "s:" + val
	case bool:
		return "b:" + strconv.FormatBool(val)
	case time.Time:
		return "t:" + val.UTC().Format(time.RFC3339Nano)
	case []byte:
		return "s:" + string(val)
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}

func numericKey(v any) (string, bool) {
	switch n := v.(type) {
	case int:
		return strconv.FormatInt(int64(n), 10), true
	case int8:
		return strconv.FormatInt(int64(n), 10), true
	case int16:
		return strconv.FormatInt(int64(n), 10), true
	case int32:
		return strconv.FormatInt(int64(n), 10), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case uint:
		return strconv.FormatUint(uint64(n), 10), true
	case uint8:
		return strconv.FormatUint(uint64(n), 10), true
	case uint16:
		return strconv.FormatUint(uint64(n), 10), true
	case uint32:
		return strconv.FormatUint(uint64(n), 10), true
	case uint64:
		return strconv.FormatUint(n, 10), true
	case float32:
		return floatKey(float64(n)), true
	case float64:
		return floatKey(n), true
	default:
		return "", false
	}
}

func floatKey(f float64) string {
	if math.Trunc(f) == f && f >= -maxSafeInt64 && f <= maxSafeInt64 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// Categories returns the distinct values of column in order of first
// appearance.
func Categories(t *Table, column string) ([]any, error) {
	if t == nil {
		return nil, fmt.Errorf("cleave: categories: table is nil")
	}
	if !t.HasColumn(column) {
		return nil, fmt.Errorf("cleave: categories: %w: %q", ErrColumnNotFound, column)
	}

	seen := make(map[string]bool)
	var out []any
	for _, r := range t.rows {
		v := r[column]
		key := categoryKey(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out, nil
}
