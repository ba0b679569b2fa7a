package ioc

// Unmanaged wraps a supplier function and defers calling it to Get,
// grounded on the teacher's own Unmanaged[T] in the now-removed
// unmanaged.go. It adds no disposal tracking and no scope handling of its
// own: whether a result is tracked depends only on what the supplier does.
type Unmanaged[T any] struct {
	supplier func() (T, error)
}

// NewUnmanaged wraps a resolve call, deferring it to Get.
func NewUnmanaged[T any](supplier func() (T, error)) Unmanaged[T] {
	return Unmanaged[T]{supplier: supplier}
}

// Get resolves and returns a fresh instance; the caller owns disposal.
func (u Unmanaged[T]) Get() (T, error) {
	return u.supplier()
}

// ResolveUnmanaged builds an Unmanaged[T] bound to c. Get simply delegates
// to Resolve, so whatever lifetime the registration declares still governs
// caching and tracking exactly as it does for Resolve (a Transient
// registration yields a fresh instance per Get, a PerContainer one the same
// cached instance). In particular a PerRequest or PerScope disposable is
// still tracked by the current scope, and a PerRequest disposable with no
// current scope still fails.
func ResolveUnmanaged[T any](c Container, name ServiceName) Unmanaged[T] {
	return NewUnmanaged(func() (T, error) {
		return Resolve[T](c, name)
	})
}
