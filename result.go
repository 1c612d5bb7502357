package saga

// Result is the tagged outcome of a single step: either a value or an
// *Error, never both. The engine never reads the value without checking
// the tag first, and steps return Results instead of panicking so no
// exception-like control flow crosses a step boundary.
type Result[T any] struct {
	value T
	err   *Error
}

// Ok wraps a successful value.
func Ok[T any](value T) Result[T] {
	return Result[T]{value: value}
}

// Err wraps a failure. A nil error is normalized to KindUnknown so the
// failure tag can never be lost.
func Err[T any](err *Error) Result[T] {
	if err == nil {
		err = NewError(KindUnknown, "unspecified error")
	}
	return Result[T]{err: err}
}

// Errf is shorthand for Err with a freshly formatted Error.
func Errf[T any](kind ErrorKind, format string, args ...any) Result[T] {
	return Err[T](Errorf(kind, format, args...))
}

// IsOk reports whether the result carries a value.
func (r Result[T]) IsOk() bool { return r.err == nil }

// Value returns the carried value, or the zero value on failure.
func (r Result[T]) Value() T { return r.value }

// Err returns the carried error, or nil on success.
func (r Result[T]) Err() *Error { return r.err }

// Unpack splits the result into its value and error.
func (r Result[T]) Unpack() (T, *Error) { return r.value, r.err }
