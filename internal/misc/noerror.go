package misc

import "fmt"

// Unwrap the result of a call which cannot fail for the given arguments, such
// as resolving a constant address. Panics if it fails anyway.
func NoError[T any](value T, err error) T {
	if err != nil {
		panic(fmt.Errorf("cannot discard non-nil error: %w", err))
	}
	return value
}
