package ioc

import (
	"errors"
	"reflect"
)

// ErrInvalidRegistration is returned when a ServiceRegistration is built
// with zero or more than one of {implementing type, factory, value} set,
// violating spec.md §3's "exactly one of" invariant.
var ErrInvalidRegistration = errors.New("ioc: registration must set exactly one of implementing type, factory, or value")

// RawFactory is the opaque constructor closure shape accepted by
// factory-based registrations (spec.md §3 "factory"). args carries any
// caller-supplied runtime arguments in parameter order (spec.md §4.3
// "Per-request runtime arguments").
type RawFactory func(factory ServiceFactory, args []any) (any, error)

// ServiceRegistration is the recipe for producing instances of one
// (ServiceIdentity, ServiceName) pair (spec.md §3).
type ServiceRegistration struct {
	ServiceIdentity      ServiceIdentity
	ImplementingIdentity reflect.Type
	// Constructors holds every candidate constructor function the Planner
	// chooses among when ImplementingIdentity is set (spec.md §4.2). Go has
	// no constructor overloading, so a registration that wants the
	// "most resolvable constructor" behavior supplies more than one.
	Constructors []reflect.Value
	ServiceName  ServiceName
	Factory      RawFactory
	Value        any
	Lifetime     Lifetime

	// constructionInfo is filled in lazily by the Planner on first compile
	// and cached on the registration so repeated decorator/override
	// rewrites of a *copy* of this registration don't re-plan.
	constructionInfo *ConstructionInfo
}

func (r *ServiceRegistration) key() DependencyKey {
	return newKey(r.ServiceIdentity, r.ServiceName)
}

// validate enforces the "exactly one of" invariant from spec.md §3.
func (r *ServiceRegistration) validate() error {
	set := 0
	if r.ImplementingIdentity != nil {
		set++
	}
	if r.Factory != nil {
		set++
	}
	if r.Value != nil {
		set++
	}
	if set != 1 {
		return ErrInvalidRegistration
	}
	return nil
}

// clone returns a shallow copy suitable for override rewriting (spec.md
// §4.3 step 3: "each override may return a rewritten ServiceRegistration").
func (r *ServiceRegistration) clone() *ServiceRegistration {
	cp := *r
	cp.constructionInfo = nil
	return &cp
}

// DecoratorRegistration wraps a target service with a replacement produced
// either from an implementing type or a factory (spec.md §3).
type DecoratorRegistration struct {
	ServiceIdentity      ServiceIdentity
	ImplementingIdentity reflect.Type
	Factory              func(factory ServiceFactory, inner func() (any, error)) (any, error)
	// Constructor is the decorator's constructor function, used instead of
	// Factory when the decorator is built from an implementing type rather
	// than a closure (spec.md §3: a decorator's replacement may come "from
	// an implementing type, a factory, or both"). Exactly one parameter
	// whose type is assignable from ServiceIdentity receives the
	// already-built inner instance; every other parameter resolves through
	// the container as an ordinary dependency.
	Constructor reflect.Value
	Predicate   func(*ServiceRegistration) bool
	// Index is assigned by Registry.Decorate in registration order; lower
	// index ends up outermost on resolve, per spec.md §8's composition
	// invariant.
	Index int
}

func (d *DecoratorRegistration) applies(reg *ServiceRegistration) bool {
	if d.ServiceIdentity != reg.ServiceIdentity {
		return false
	}
	if d.Predicate != nil {
		return d.Predicate(reg)
	}
	return true
}

// validate enforces that a decorator has at least one way to build its
// replacement. When both Factory and Constructor are set, foldDecorator
// uses Factory.
func (d *DecoratorRegistration) validate() error {
	if d.Factory == nil && !d.Constructor.IsValid() {
		return ErrInvalidRegistration
	}
	return nil
}

// FactoryRule is a fallback rule: when no registration matches a request,
// fallback rules are consulted in registration order and the first whose
// predicate accepts the request supplies a synthetic registration
// (spec.md §4.3.2).
type FactoryRule struct {
	Predicate func(identity ServiceIdentity, name ServiceName) bool
	Factory   func(identity ServiceIdentity, name ServiceName) (any, error)
	Lifetime  Lifetime
}

// Initializer is a post-construction hook: every matching initializer runs
// (in declaration order) after an instance is produced, before it is
// handed back to the caller (spec.md §3, §4.3 step 6).
type Initializer struct {
	Predicate func(*ServiceRegistration) bool
	Action    func(factory ServiceFactory, instance any) error
}

func (i *Initializer) applies(reg *ServiceRegistration) bool {
	if i.Predicate == nil {
		return true
	}
	return i.Predicate(reg)
}

// ServiceOverride is allowed to rewrite a registration at emit time,
// returning a replacement ServiceRegistration (spec.md §3, §4.3 step 3).
type ServiceOverride struct {
	Predicate func(*ServiceRegistration) bool
	Rewrite   func(factory ServiceFactory, reg *ServiceRegistration) *ServiceRegistration
}

func (o *ServiceOverride) applies(reg *ServiceRegistration) bool {
	if o.Predicate == nil {
		return true
	}
	return o.Predicate(reg)
}
