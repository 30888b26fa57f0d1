package options

// Option configures a value of type T when applied. Unlike an
// interface-wrapped function, this is just `func(T) error`, so a
// With* constructor can return one directly without an allocation for
// the wrapper struct.
type Option[T any] func(T) error

// Apply runs every option against target in order, stopping at (and
// returning) the first error. A nil option is skipped, which lets
// With* constructors return a nil Option for a no-op case without the
// caller needing to filter it out of the slice.
func Apply[T any](target T, opts ...Option[T]) error {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(target); err != nil {
			return err
		}
	}

	return nil
}

// NoError wraps a setter that cannot fail into an Option.
func NoError[T any](fn func(T)) Option[T] {
	return func(target T) error {
		fn(target)
		return nil
	}
}
