package ioc

// Resolve is the generic convenience wrapper around Container.Resolve,
// grounded on the teacher's own Get[T](ctn Container, ...) helper in
// utils.go: callers get a typed result instead of an any plus a manual
// type assertion.
func Resolve[T any](c Container, name ...ServiceName) (T, error) {
	v, err := c.Resolve(IdentityOf[T](), resolveName(name))
	return castOrZero[T](v, err)
}

// MustResolve panics if Resolve fails, mirroring the teacher's MustGet.
func MustResolve[T any](c Container, name ...ServiceName) T {
	v, err := Resolve[T](c, name...)
	if err != nil {
		panic(err)
	}
	return v
}

// TryResolve resolves T and reports whether it succeeded. It delegates to
// Container.TryResolve, so only NotRegisteredError (and its fallthroughs)
// is suppressed into (zero, false); every other error still propagates as
// a panic (spec.md §7).
func TryResolve[T any](c Container, name ...ServiceName) (T, bool) {
	v, ok := c.TryResolve(IdentityOf[T](), resolveName(name))
	if !ok {
		var zero T
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		panic(&NotRegisteredError{Identity: IdentityOf[T]()})
	}
	return typed, true
}

// ResolveAll returns every registration assignable to T, grounded on the
// teacher's AllOf[T] helper in utils.go — here backed by Container.ResolveAll
// plus the variance-aware collectAssignable rather than a Filter/Sort/Foreach
// walk over *Factory nodes.
func ResolveAll[T any](c Container) ([]T, error) {
	values, err := c.ResolveAll(IdentityOf[T]())
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(values))
	for _, v := range values {
		if typed, ok := v.(T); ok {
			out = append(out, typed)
		}
	}
	return out, nil
}

func resolveName(names []ServiceName) ServiceName {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func castOrZero[T any](v any, err error) (T, error) {
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, &NotRegisteredError{Identity: IdentityOf[T]()}
	}
	return typed, nil
}
