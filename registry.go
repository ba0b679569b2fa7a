package ioc

import (
	"reflect"
	"sync"
)

// Registry is the service registration store: a two-level map from
// ServiceIdentity to ServiceName to ServiceRegistration, plus the
// registration-order lists of decorators, fallback rules, overrides, and
// initializers the compiler consults while emitting a resolve delegate
// (spec.md §3, §4.1, §4.3.2).
//
// Registration is allowed until the first resolve call; after that the
// registry is locked (spec.md §7) and Register, Decorate, AddFallback and
// AddOverride return RegistrationAfterLockError. AddInitializer only logs a
// warning, and AddOpenGeneric does not check the lock.
type Registry struct {
	mu sync.RWMutex

	registrations map[reflect.Type]map[ServiceName]*ServiceRegistration
	order         []*ServiceRegistration

	decorators   []*DecoratorRegistration
	fallbacks    []*FactoryRule
	overrides    []*ServiceOverride
	initializers []*Initializer

	openGenerics *openGenericSet

	locked bool
}

func newRegistry() *Registry {
	return &Registry{
		registrations: make(map[reflect.Type]map[ServiceName]*ServiceRegistration),
		openGenerics:  newOpenGenericSet(),
	}
}

// IsLocked reports whether registration has been closed off by a resolve.
func (r *Registry) IsLocked() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.locked
}

// Lock closes the registry to further mutation. It is idempotent.
func (r *Registry) Lock() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locked = true
}

func (r *Registry) checkUnlocked(operation string) error {
	if r.locked {
		return &RegistrationAfterLockError{Operation: operation}
	}
	return nil
}

// Register adds or replaces a service registration. Replacing an existing
// (identity, name) pair is allowed (spec.md §3, "last registration for a
// given key wins" is the convention the teacher's own Register follows).
func (r *Registry) Register(reg *ServiceRegistration) error {
	if err := reg.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkUnlocked("Register"); err != nil {
		return err
	}
	byName, ok := r.registrations[reg.ServiceIdentity]
	if !ok {
		byName = make(map[ServiceName]*ServiceRegistration)
		r.registrations[reg.ServiceIdentity] = byName
	}
	name := reg.ServiceName.Normalize()
	reg.ServiceName = name
	if _, exists := byName[name]; exists {
		for i, old := range r.order {
			if old.ServiceIdentity == reg.ServiceIdentity && old.ServiceName == name {
				r.order[i] = reg
				break
			}
		}
	} else {
		r.order = append(r.order, reg)
	}
	byName[name] = reg
	return nil
}

// Lookup returns the registration for (identity, name), and whether one
// exists.
func (r *Registry) Lookup(identity reflect.Type, name ServiceName) (*ServiceRegistration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byName, ok := r.registrations[identity]
	if !ok {
		return nil, false
	}
	reg, ok := byName[name.Normalize()]
	return reg, ok
}

// AllFor returns every registration for identity regardless of name, in
// registration order, used for enumerable/array aggregation (spec.md
// §4.3.1).
func (r *Registry) AllFor(identity reflect.Type) []*ServiceRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*ServiceRegistration
	for _, reg := range r.order {
		if reg.ServiceIdentity == identity {
			out = append(out, reg)
		}
	}
	return out
}

// All returns every registration across every identity, in registration
// order — the basis for the variance-aware aggregation unknown.go's
// collectAssignable performs.
func (r *Registry) All() []*ServiceRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ServiceRegistration, len(r.order))
	copy(out, r.order)
	return out
}

// Decorate adds a decorator; Index is assigned in registration order so
// the compiler folds decorators outer-to-inner in the order they were
// declared (spec.md §4.1).
func (r *Registry) Decorate(d *DecoratorRegistration) error {
	if err := d.validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkUnlocked("Decorate"); err != nil {
		return err
	}
	d.Index = len(r.decorators)
	r.decorators = append(r.decorators, d)
	return nil
}

func (r *Registry) decoratorsFor(reg *ServiceRegistration) []*DecoratorRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*DecoratorRegistration
	for _, d := range r.decorators {
		if d.applies(reg) {
			out = append(out, d)
		}
	}
	return out
}

// AddFallback registers a factory rule consulted when no registration
// matches a request (spec.md §4.3.2).
func (r *Registry) AddFallback(rule *FactoryRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkUnlocked("AddFallback"); err != nil {
		return err
	}
	r.fallbacks = append(r.fallbacks, rule)
	return nil
}

func (r *Registry) matchFallback(identity reflect.Type, name ServiceName) *FactoryRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rule := range r.fallbacks {
		if rule.Predicate(identity, name) {
			return rule
		}
	}
	return nil
}

// AddOverride registers a rewrite rule applied to a matching registration
// at emit time (spec.md §4.3 step 3).
func (r *Registry) AddOverride(o *ServiceOverride) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkUnlocked("AddOverride"); err != nil {
		return err
	}
	r.overrides = append(r.overrides, o)
	return nil
}

func (r *Registry) applyOverrides(factory ServiceFactory, reg *ServiceRegistration) *ServiceRegistration {
	r.mu.RLock()
	overrides := make([]*ServiceOverride, len(r.overrides))
	copy(overrides, r.overrides)
	r.mu.RUnlock()
	for _, o := range overrides {
		if o.applies(reg) {
			reg = o.Rewrite(factory, reg)
		}
	}
	return reg
}

// AddInitializer registers a post-construction hook (spec.md §4.3 step 6).
// Registering one after the container locks is logged as a warning, not
// rejected, matching SPEC_FULL.md §9's ambient-logging carve-out for this
// specific operation.
func (r *Registry) AddInitializer(i *Initializer, log LogSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.locked && log != nil {
		log.Warn("ioc: initializer registered after container lock; it applies only to instances created from now on")
	}
	r.initializers = append(r.initializers, i)
}

func (r *Registry) initializersFor(reg *ServiceRegistration) []*Initializer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Initializer
	for _, i := range r.initializers {
		if i.applies(reg) {
			out = append(out, i)
		}
	}
	return out
}

// AddOpenGeneric registers an open generic's declaration; resolution
// consults it after fallback rules and before unknown-service synthesis
// (SPEC_FULL.md §12.i).
func (r *Registry) AddOpenGeneric(g *OpenGeneric) {
	r.openGenerics.add(g)
}

func (r *Registry) matchOpenGeneric(identity reflect.Type) (*ServiceRegistration, bool) {
	return r.openGenerics.resolve(identity)
}

// clone produces a registry sharing all current registrations and rules
// but independently mutable (spec.md §6 "Clone"): the clone starts
// unlocked even if the source is locked, since spec.md §7 only locks a
// container after *its own* first resolve.
func (r *Registry) clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nr := newRegistry()
	for identity, byName := range r.registrations {
		cpByName := make(map[ServiceName]*ServiceRegistration, len(byName))
		for name, reg := range byName {
			cpByName[name] = reg.clone()
		}
		nr.registrations[identity] = cpByName
	}
	for _, reg := range r.order {
		nr.order = append(nr.order, reg.clone())
	}
	nr.decorators = append(nr.decorators, r.decorators...)
	nr.fallbacks = append(nr.fallbacks, r.fallbacks...)
	nr.overrides = append(nr.overrides, r.overrides...)
	nr.initializers = append(nr.initializers, r.initializers...)
	r.openGenerics.mu.RLock()
	nr.openGenerics.items = append(nr.openGenerics.items, r.openGenerics.items...)
	r.openGenerics.mu.RUnlock()
	return nr
}
