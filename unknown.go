package ioc

import "reflect"

// compileUnknownServiceDelegate is the container's last-resort synthesis
// step (spec.md §4.3.1): given an identity no registration, fallback rule,
// or open generic matched, decide whether its *shape* is still something
// this container knows how to produce — a func-returning-(T,error) request
// (the reflect-level shape of Func0/Func1/Func2/Func3) or a slice/array
// aggregate of some other identity (the reflect-level shape of an
// enumerable request, with variance via collectAssignable).
//
// Lazy[T] deliberately is not synthesized here: unlike a func signature or
// a slice element type, Lazy[T]'s backing field types are only known once
// T is already fixed at compile time, and Go's reflect package cannot
// instantiate a generic struct for a T discovered only at runtime (the
// same MakeGenericType gap documented in generics.go). A Lazy[T] exists
// only where a caller builds one explicitly with NewLazy[T], for example
// inside a registered factory; a constructor parameter of type *Lazy[T] is
// not satisfied automatically.
func compileUnknownServiceDelegate(identity reflect.Type) (resolveDelegate, bool) {
	switch identity.Kind() {
	case reflect.Func:
		return compileFuncSynthesis(identity)
	case reflect.Slice:
		return compileSliceSynthesis(identity), true
	case reflect.Array:
		return compileArraySynthesis(identity), true
	default:
		return nil, false
	}
}

// compileFuncSynthesis handles any func(...) (T, error) shape: a reflect
// function built with reflect.MakeFunc that forwards its call-time
// arguments to the underlying factory as per-request runtime arguments.
func compileFuncSynthesis(identity reflect.Type) (resolveDelegate, bool) {
	if identity.NumOut() != 2 || !isErrorType(identity.Out(1)) {
		return nil, false
	}
	resultType := identity.Out(0)
	errType := identity.Out(1)

	return func(f ServiceFactory, _ *Scope, _ []any) (any, error) {
		fn := reflect.MakeFunc(identity, func(in []reflect.Value) []reflect.Value {
			callArgs := make([]any, len(in))
			for i, v := range in {
				callArgs[i] = v.Interface()
			}
			value, err := resolveWithArgs(f, resultType, "", callArgs)
			if err != nil {
				errOut := reflect.New(errType).Elem()
				errOut.Set(reflect.ValueOf(err))
				return []reflect.Value{reflect.Zero(resultType), errOut}
			}
			var valueOut reflect.Value
			if value == nil {
				valueOut = reflect.Zero(resultType)
			} else {
				valueOut = reflect.ValueOf(value)
			}
			return []reflect.Value{valueOut, reflect.Zero(errType)}
		})
		return fn.Interface(), nil
	}, true
}

func compileSliceSynthesis(identity reflect.Type) resolveDelegate {
	elem := identity.Elem()
	return func(f ServiceFactory, _ *Scope, _ []any) (any, error) {
		// ResolveAll itself honors the container's WithVariance setting.
		values, err := f.Container().ResolveAll(elem)
		if err != nil {
			return nil, err
		}
		out := reflect.MakeSlice(identity, len(values), len(values))
		for i, v := range values {
			if v != nil {
				out.Index(i).Set(reflect.ValueOf(v))
			}
		}
		return out.Interface(), nil
	}
}

func compileArraySynthesis(identity reflect.Type) resolveDelegate {
	elem := identity.Elem()
	return func(f ServiceFactory, _ *Scope, _ []any) (any, error) {
		values, err := f.Container().ResolveAll(elem)
		if err != nil {
			return nil, err
		}
		out := reflect.New(identity).Elem()
		for i := 0; i < out.Len() && i < len(values); i++ {
			if values[i] != nil {
				out.Index(i).Set(reflect.ValueOf(values[i]))
			}
		}
		return out.Interface(), nil
	}
}

// Lazy defers a resolve until Get is first called, then caches the result —
// the Go shape of the source's Lazy<T> unknown-service synthesis (spec.md
// §4.3.1). It is itself a disposable pass-through: disposing a Lazy that
// was never realized disposes nothing; disposing one that was realized
// disposes the realized instance if it is itself Disposable.
type Lazy[T any] struct {
	resolve func() (T, error)
	done    bool
	value   T
	err     error
}

// NewLazy wraps resolve so its first call is deferred to Get.
func NewLazy[T any](resolve func() (T, error)) *Lazy[T] {
	return &Lazy[T]{resolve: resolve}
}

// Get runs resolve on first call and returns the cached result on every
// later call, matching the teacher's Unmanaged[T].Get single-supplier shape
// but caching instead of calling the supplier again on each Get.
func (l *Lazy[T]) Get() (T, error) {
	if !l.done {
		l.value, l.err = l.resolve()
		l.done = true
	}
	return l.value, l.err
}

func (l *Lazy[T]) Dispose() error {
	if !l.done || l.err != nil {
		return nil
	}
	if d, ok := any(l.value).(Disposable); ok {
		return d.Dispose()
	}
	return nil
}

// Func0 is the Go shape of the source's Func<T>: a zero-argument factory
// the caller invokes whenever it wants a fresh (or lifetime-governed)
// instance, rather than receiving one eagerly (spec.md §4.3.1).
type Func0[T any] func() (T, error)

// Func1/Func2/Func3 cover the source's Func<A,...,T> shapes: a factory
// that takes runtime arguments and forwards them as the per-request
// arguments described in spec.md §4.3 "Per-request runtime arguments".
// Three arities match what the teacher's own runtime-argument plumbing in
// factory.go exercises; a fourth would be added the same way if a
// registration ever needed it.
type Func1[A, T any] func(A) (T, error)
type Func2[A, B, T any] func(A, B) (T, error)
type Func3[A, B, C, T any] func(A, B, C) (T, error)

// synthesizeFunc0 builds the closure a Func0[T] unknown-service request
// resolves to: every call re-enters Resolve, so the produced function
// respects whatever lifetime the target registration declares.
func synthesizeFunc0[T any](factory ServiceFactory, name ServiceName) Func0[T] {
	identity := IdentityOf[T]()
	return func() (T, error) {
		v, err := factory.Resolve(identity, name)
		if err != nil {
			var zero T
			return zero, err
		}
		return v.(T), nil
	}
}

func synthesizeFunc1[A, T any](factory ServiceFactory, name ServiceName) Func1[A, T] {
	identity := IdentityOf[T]()
	return func(a A) (T, error) {
		v, err := resolveWithArgs(factory, identity, name, []any{a})
		if err != nil {
			var zero T
			return zero, err
		}
		return v.(T), nil
	}
}

func synthesizeFunc2[A, B, T any](factory ServiceFactory, name ServiceName) Func2[A, B, T] {
	identity := IdentityOf[T]()
	return func(a A, b B) (T, error) {
		v, err := resolveWithArgs(factory, identity, name, []any{a, b})
		if err != nil {
			var zero T
			return zero, err
		}
		return v.(T), nil
	}
}

func synthesizeFunc3[A, B, C, T any](factory ServiceFactory, name ServiceName) Func3[A, B, C, T] {
	identity := IdentityOf[T]()
	return func(a A, b B, c C) (T, error) {
		v, err := resolveWithArgs(factory, identity, name, []any{a, b, c})
		if err != nil {
			var zero T
			return zero, err
		}
		return v.(T), nil
	}
}

// resolveWithArgs reaches past the narrow ServiceFactory.Resolve signature
// to pass runtime arguments when the underlying factory supports it
// (containerImpl always does); this mirrors the teacher's own pattern of
// widening an interface via a type assertion when a capability is
// optional.
func resolveWithArgs(factory ServiceFactory, identity ServiceIdentity, name ServiceName, args []any) (any, error) {
	if withArgs, ok := factory.(interface {
		ResolveWithArgs(ServiceIdentity, ServiceName, []any) (any, error)
	}); ok {
		return withArgs.ResolveWithArgs(identity, name, args)
	}
	return factory.Resolve(identity, name)
}

// enumerableKind classifies the three unknown-service aggregate shapes
// spec.md §4.3.1 names: slice, array, and (for parity with the source's
// List<T>) a slice is also what backs a synthesized "list" result — Go has
// no separate list/slice distinction, so both source shapes collapse onto
// []T here.
type enumerableKind int

const (
	enumerableSlice enumerableKind = iota
	enumerableArray
)

// collectAssignable gathers every registration whose ServiceIdentity is T
// itself or, when allowVariance is true, assignable to T (the "variance"
// spec.md §4.3.1 calls for: an enumerable of an interface type also picks
// up registrations of implementing concrete types). With allowVariance
// false, only exact-identity registrations are included (spec.md §6
// "enable_variance"). The registrations slice must already be ordered the
// way the result should be ordered (registration order).
func collectAssignable(identity reflect.Type, registrations []*ServiceRegistration, allowVariance bool) []*ServiceRegistration {
	var out []*ServiceRegistration
	for _, reg := range registrations {
		if reg.ServiceIdentity == identity {
			out = append(out, reg)
			continue
		}
		if allowVariance && reg.ServiceIdentity != nil && reg.ServiceIdentity.AssignableTo(identity) {
			out = append(out, reg)
		}
	}
	return out
}
