package report

import (
	"cmp"
	"strconv"
	"strings"
)

// NullFilterValue selects rows whose nullable key is absent
const NullFilterValue = "null"

// Count bucket filter values
const (
	CountBucketZero = "0"
	CountBucketAny  = "1+"
)

// Contains matches rows whose field contains the filter value as a
// substring. Matching is case-sensitive.
func Contains[T any](field func(T) string) FilterFunc[T] {
	return func(value string) (Predicate[T], bool) {
		if strings.TrimSpace(value) == "" {
			return nil, false
		}
		return func(row T) bool {
			return strings.Contains(field(row), value)
		}, true
	}
}

// NullableInt filters a nullable integer key: "null" matches absent values,
// an integer matches equal values, anything else is ignored.
func NullableInt[T any](field func(T) *int64) FilterFunc[T] {
	return func(value string) (Predicate[T], bool) {
		value = strings.TrimSpace(value)
		if value == NullFilterValue {
			return func(row T) bool {
				return field(row) == nil
			}, true
		}

		want, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, false
		}
		return func(row T) bool {
			got := field(row)
			return got != nil && *got == want
		}, true
	}
}

// CountBucket filters a count field into "0" (exactly zero) and "1+" (positive)
func CountBucket[T any](field func(T) int) FilterFunc[T] {
	return func(value string) (Predicate[T], bool) {
		switch strings.TrimSpace(value) {
		case CountBucketZero:
			return func(row T) bool { return field(row) == 0 }, true
		case CountBucketAny:
			return func(row T) bool { return field(row) > 0 }, true
		default:
			return nil, false
		}
	}
}

// CompareBy builds a Column.Compare from an ordered field accessor
func CompareBy[T any, V cmp.Ordered](field func(T) V) func(a, b T) int {
	return func(a, b T) int {
		return cmp.Compare(field(a), field(b))
	}
}

// CompareNullable orders absent values first, then by the value itself
func CompareNullable[T any, V cmp.Ordered](field func(T) *V) func(a, b T) int {
	return func(a, b T) int {
		va, vb := field(a), field(b)
		switch {
		case va == nil && vb == nil:
			return 0
		case va == nil:
			return -1
		case vb == nil:
			return 1
		default:
			return cmp.Compare(*va, *vb)
		}
	}
}
