package common

import "fmt"

// Assert checks a condition and panics if it is false.
//
// Use it for internal invariants whose violation means the engine's own bookkeeping is broken
// (a negative hold count, a header bit without a tuple behind it). Conditions that can
// reasonably happen, such as bad user input or a failed disk write, return errors instead.
func Assert(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

// CeilDiv returns ceil(a/b) for non-negative a and positive b.
func CeilDiv(a, b int) int {
	return (a + b - 1) / b
}
