package urlstate

import (
	"fmt"
	"slices"
	"strconv"
)

// Codec converts a value to and from its query-string form.
type Codec[T any] struct {
	Encode func(T) string
	Decode func(string) (T, error)
}

func String() Codec[string] {
	return Codec[string]{
		Encode: func(s string) string { return s },
		Decode: func(s string) (string, error) { return s, nil },
	}
}

func Int() Codec[int] {
	return Codec[int]{
		Encode: strconv.Itoa,
		Decode: strconv.Atoi,
	}
}

// Enum accepts only the listed values.
func Enum[T ~string](values ...T) Codec[T] {
	return Codec[T]{
		Encode: func(v T) string { return string(v) },
		Decode: func(s string) (T, error) {
			v := T(s)
			if !slices.Contains(values, v) {
				var zero T
				return zero, fmt.Errorf("unknown value %q", s)
			}
			return v, nil
		},
	}
}
