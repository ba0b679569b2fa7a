package ioc

import "sync"

// Lifetime is the common contract every lifetime strategy obeys (spec.md
// §4.4): given a function that creates a fresh instance and the scope the
// resolve call is running in (nil when there is none), return the instance
// that this lifetime's policy says the caller should see.
type Lifetime interface {
	GetInstance(create func() (any, error), scope *Scope) (any, error)
	// Name identifies the strategy for diagnostics. The compiler does not
	// consult it; every lifetime goes through GetInstance.
	Name() string
}

// Transient creates a new instance on every call and tracks nothing
// (spec.md §4.4). It is also the lifetime used when a registration omits
// one explicitly.
type Transient struct{}

func (Transient) GetInstance(create func() (any, error), _ *Scope) (any, error) {
	return create()
}

func (Transient) Name() string { return "transient" }

// PerRequest creates a new instance on every call; if that instance is
// disposable, ownership passes to the current scope, which fails the call
// if there is no scope to own it (spec.md §4.4).
type PerRequest struct{}

func (PerRequest) GetInstance(create func() (any, error), scope *Scope) (any, error) {
	instance, err := create()
	if err != nil {
		return nil, err
	}
	if d, ok := instance.(Disposable); ok {
		if scope == nil {
			return nil, &InvalidScopeError{Reason: "per-request disposable instance created with no scope to own it"}
		}
		if err := scope.trackInstance(d); err != nil {
			return nil, err
		}
	}
	return instance, nil
}

func (PerRequest) Name() string { return "per-request" }

// PerScope caches one instance per (registration, scope): the first call in
// a scope computes and stores the instance; later calls in the same scope
// reuse it; sibling scopes get their own instance (spec.md §4.4).
//
// Each PerScope value is itself the cache key the owning Scope uses, which
// is why it must be constructed once per registration and reused, never
// recreated per call.
type PerScope struct {
	mu sync.Mutex
}

func (l *PerScope) GetInstance(create func() (any, error), scope *Scope) (any, error) {
	if scope == nil {
		return nil, &InvalidScopeError{Reason: "per-scope registration resolved with no active scope"}
	}
	return scope.getOrCreate(l, create)
}

func (*PerScope) Name() string { return "per-scope" }

// PerContainer caches a single instance for the lifetime object's entire
// lifetime, which in practice means the lifetime of the container: the
// first call computes the instance while holding the lifetime's mutex and
// caches it; disposal happens when the lifetime object itself is disposed,
// i.e. when the container is disposed (spec.md §4.4).
//
// The compiler gives PerContainer no special treatment: the instance is
// not created at compile time, and every resolve goes through GetInstance,
// which takes the mutex and returns the cached instance.
type PerContainer struct {
	mu       sync.Mutex
	created  bool
	instance any
	err      error
}

func (l *PerContainer) GetInstance(create func() (any, error), _ *Scope) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.created {
		return l.instance, l.err
	}
	l.instance, l.err = create()
	l.created = true
	return l.instance, l.err
}

func (*PerContainer) Name() string { return "per-container" }

// Dispose releases a cached PerContainer instance if it implements
// Disposable, matching spec.md §4.4 ("disposed when the lifetime object is
// disposed").
func (l *PerContainer) Dispose() {
	l.mu.Lock()
	instance := l.instance
	created := l.created
	l.mu.Unlock()
	if created {
		if d, ok := instance.(Disposable); ok {
			d.Dispose()
		}
	}
}

func defaultLifetime() Lifetime { return Transient{} }
