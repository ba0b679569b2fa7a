package ioc

import (
	"errors"
	"reflect"
	"sort"
	"sync"
)

// Container is the façade every other package in this module talks to
// (spec.md §4.6): it owns the Registry, the compiled-delegate lookup
// table, the scope manager, and the constants table, and exposes both the
// registration-phase operations (Register*, Decorate, AddFallback,
// AddOverride, AddInitializer) and the resolution-phase operations
// (Resolve, TryResolve, ResolveAll, BeginScope, InjectProperties).
//
// Registration is allowed until the first resolve call (Resolve,
// ResolveAll or InjectProperties, whether or not it succeeds); after that
// the container is locked (spec.md §7) and Register* methods return
// RegistrationAfterLockError.
type Container interface {
	RegisterValue(identity ServiceIdentity, value any, opts ...RegistrationOption) error
	RegisterFactory(identity ServiceIdentity, factory RawFactory, opts ...RegistrationOption) error
	RegisterType(identity ServiceIdentity, implementingType reflect.Type, constructors []reflect.Value, opts ...RegistrationOption) error

	Decorate(d *DecoratorRegistration) error
	AddFallback(rule *FactoryRule) error
	AddOverride(o *ServiceOverride) error
	AddInitializer(i *Initializer)
	AddOpenGeneric(g *OpenGeneric)

	Resolve(identity ServiceIdentity, name ServiceName) (any, error)
	ResolveWithArgs(identity ServiceIdentity, name ServiceName, args []any) (any, error)
	TryResolve(identity ServiceIdentity, name ServiceName) (any, bool)
	ResolveAll(identity ServiceIdentity) ([]any, error)

	BeginScope() (*Scope, error)
	EndScope(*Scope) error

	InjectProperties(instance any) error

	Clone() Container
	Dispose() error
	IsLocked() bool
}

type containerImpl struct {
	mu sync.Mutex

	registry  *Registry
	lookup    *lookupTable
	constants *ConstantsTable
	planner   *Planner
	compiler  *Compiler
	scopeMgr  ScopeManager
	log       LogSink

	locked bool

	// enableVariance and enablePropertyInjection mirror spec.md §6's
	// container_options: {enable_variance, enable_property_injection}.
	enableVariance          bool
	enablePropertyInjection bool

	// containerDisposables tracks PerContainer lifetimes created by this
	// container so Dispose can release them in reverse order, mirroring
	// the reverse-insertion disposal rule spec.md §4.5 applies to scopes.
	containerDisposables []*PerContainer
	disposed             bool
}

// ContainerOption configures a container at construction time, the
// functional-options idiom the teacher's own FactoryConfig follows.
type ContainerOption func(*containerImpl)

// WithLogSink overrides the default slog-backed LogSink.
func WithLogSink(sink LogSink) ContainerOption {
	return func(c *containerImpl) { c.log = sink }
}

// WithScopeManagerProvider overrides the default per-goroutine scope
// manager, e.g. with a context-flowed one for async call trees.
func WithScopeManagerProvider(provider ScopeManagerProvider) ContainerOption {
	return func(c *containerImpl) { c.scopeMgr = provider() }
}

// WithVariance toggles covariant widening during enumerable/array
// aggregation (spec.md §6 "enable_variance", default on). Disabling it
// restricts ResolveAll and the synthesized slice/array unknown-service
// shapes to exact-identity registrations only.
func WithVariance(enabled bool) ContainerOption {
	return func(c *containerImpl) { c.enableVariance = enabled }
}

// WithPropertyInjection toggles automatic property-dependency discovery
// (spec.md §6 "enable_property_injection", default on). Disabling it makes
// the Planner yield no property dependencies for any registration, which in
// turn makes Container.InjectProperties a no-op.
func WithPropertyInjection(enabled bool) ContainerOption {
	return func(c *containerImpl) { c.enablePropertyInjection = enabled }
}

// NewContainer builds an empty, unlocked container.
func NewContainer(opts ...ContainerOption) Container {
	registry := newRegistry()
	c := &containerImpl{
		registry:                registry,
		lookup:                  newLookupTable(),
		constants:               newConstantsTable(),
		log:                     NewSlogSink(nil),
		enableVariance:          true,
		enablePropertyInjection: true,
	}
	c.scopeMgr = newGoroutineScopeManager()
	for _, opt := range opts {
		opt(c)
	}
	c.planner = newPlanner(registry, c.enablePropertyInjection)
	c.compiler = newCompiler(c.planner, c.constants, c.log)
	return c
}

func (c *containerImpl) IsLocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locked
}

func (c *containerImpl) lock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.locked {
		c.locked = true
		c.registry.Lock()
	}
}

// -- Registration -----------------------------------------------------

func (c *containerImpl) RegisterValue(identity ServiceIdentity, value any, opts ...RegistrationOption) error {
	reg := applyOptions(&ServiceRegistration{ServiceIdentity: identity, Value: value}, opts)
	return c.register(reg)
}

func (c *containerImpl) RegisterFactory(identity ServiceIdentity, factory RawFactory, opts ...RegistrationOption) error {
	reg := applyOptions(&ServiceRegistration{ServiceIdentity: identity, Factory: factory}, opts)
	return c.register(reg)
}

func (c *containerImpl) RegisterType(identity ServiceIdentity, implementingType reflect.Type, constructors []reflect.Value, opts ...RegistrationOption) error {
	reg := applyOptions(&ServiceRegistration{
		ServiceIdentity:      identity,
		ImplementingIdentity: implementingType,
		Constructors:         constructors,
	}, opts)
	return c.register(reg)
}

func (c *containerImpl) register(reg *ServiceRegistration) error {
	if err := c.registry.Register(reg); err != nil {
		return err
	}
	c.lookup.invalidate()
	return nil
}

func (c *containerImpl) Decorate(d *DecoratorRegistration) error {
	if err := c.registry.Decorate(d); err != nil {
		return err
	}
	c.lookup.invalidate()
	return nil
}

func (c *containerImpl) AddFallback(rule *FactoryRule) error {
	if err := c.registry.AddFallback(rule); err != nil {
		return err
	}
	c.lookup.invalidate()
	return nil
}

func (c *containerImpl) AddOverride(o *ServiceOverride) error {
	if err := c.registry.AddOverride(o); err != nil {
		return err
	}
	c.lookup.invalidate()
	return nil
}

func (c *containerImpl) AddInitializer(i *Initializer) {
	c.registry.AddInitializer(i, c.log)
	c.lookup.invalidate()
}

func (c *containerImpl) AddOpenGeneric(g *OpenGeneric) {
	c.registry.AddOpenGeneric(g)
	c.lookup.invalidate()
}

// -- Resolution ---------------------------------------------------------

func (c *containerImpl) Resolve(identity ServiceIdentity, name ServiceName) (any, error) {
	return c.resolve(identity, name, nil, nil)
}

func (c *containerImpl) ResolveWithArgs(identity ServiceIdentity, name ServiceName, args []any) (any, error) {
	return c.resolve(identity, name, args, nil)
}

// TryResolve returns (nil, false) only for NotRegisteredError and its
// fallthroughs, matching spec.md §7 ("Try-variants return null only for
// NotRegistered and its fallthroughs; all other errors propagate"). Since
// this method's signature carries no error channel, every other error
// propagates by panicking, the same way MustResolve surfaces a failure —
// a caller that wants a returned error should call Resolve directly.
func (c *containerImpl) TryResolve(identity ServiceIdentity, name ServiceName) (any, bool) {
	v, err := c.Resolve(identity, name)
	if err == nil {
		return v, true
	}
	var notRegistered *NotRegisteredError
	if errors.As(err, &notRegistered) {
		return nil, false
	}
	panic(err)
}

func (c *containerImpl) ResolveAll(identity ServiceIdentity) ([]any, error) {
	c.lock()
	regs := collectAssignable(identity, c.registry.All(), c.enableVariance)
	out := make([]any, 0, len(regs))
	scope := c.scopeMgr.Current()
	for _, reg := range regs {
		delegate, err := c.compileFor(reg.ServiceIdentity, reg.ServiceName)
		if err != nil {
			return nil, err
		}
		v, err := delegate(c.serviceFactory(nil), scope, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// resolve is the entry point every public Resolve variant and every
// recursive dependency lookup funnels through; it threads a fresh, per-call
// cycle-detection stack (spec.md §5, §9 "the cycle guard is per-call, never
// global") rather than consulting any container-wide precomputed graph.
func (c *containerImpl) resolve(identity ServiceIdentity, name ServiceName, args []any, stack []reflect.Type) (any, error) {
	c.lock()

	for _, t := range stack {
		if t == identity {
			chain := append(append([]reflect.Type{}, stack...), identity)
			return nil, &CyclicDependencyError{Chain: chain}
		}
	}
	nextStack := append(append([]reflect.Type{}, stack...), identity)

	delegate, err := c.compileFor(identity, name)
	if err != nil {
		return nil, err
	}

	scope := c.scopeMgr.Current()
	factory := c.serviceFactory(nextStack)
	return delegate(factory, scope, args)
}

// compileFor returns the cached compiled delegate for (identity, name),
// compiling and publishing one on first use. The expansion order — direct
// registration, then fallback rule, then open-generic expansion, then
// unknown-service synthesis — is the decision recorded in SPEC_FULL.md
// §12.i.
func (c *containerImpl) compileFor(identity ServiceIdentity, name ServiceName) (resolveDelegate, error) {
	key := newKey(identity, name)
	if delegate := c.lookup.get(key); delegate != nil {
		return delegate, nil
	}

	delegate, err := c.compileUncached(identity, name)
	if err != nil {
		return nil, err
	}
	c.lookup.put(key, delegate)
	return delegate, nil
}

func (c *containerImpl) compileUncached(identity ServiceIdentity, name ServiceName) (resolveDelegate, error) {
	if reg, ok := c.registry.Lookup(identity, name); ok {
		return c.compileRegistration(reg)
	}

	if rule := c.registry.matchFallback(identity, name); rule != nil {
		return c.compileFallback(identity, name, rule)
	}

	if name.IsDefault() {
		if reg, ok := c.registry.matchOpenGeneric(identity); ok {
			return c.compileRegistration(reg)
		}
		if delegate, ok := compileUnknownServiceDelegate(identity); ok {
			return delegate, nil
		}
	}

	return nil, &NotRegisteredError{Identity: identity, Name: name}
}

func (c *containerImpl) compileRegistration(reg *ServiceRegistration) (resolveDelegate, error) {
	rewritten := c.registry.applyOverrides(c.serviceFactory(nil), reg)
	// Tracked here rather than at Register time so that PerContainer
	// registrations reached only through open-generic expansion (which
	// never goes through containerImpl.register) are tracked too; the
	// lookup table's caching means this runs once per (identity, name)
	// unless the table is invalidated and the key is compiled again.
	if l, ok := rewritten.Lifetime.(*PerContainer); ok {
		c.trackContainerDisposable(l)
	}
	decorators := c.registry.decoratorsFor(rewritten)
	sort.Slice(decorators, func(i, j int) bool { return decorators[i].Index < decorators[j].Index })
	initializers := c.registry.initializersFor(rewritten)
	return c.compiler.compile(rewritten, decorators, initializers)
}

func (c *containerImpl) compileFallback(identity ServiceIdentity, name ServiceName, rule *FactoryRule) (resolveDelegate, error) {
	reg := &ServiceRegistration{
		ServiceIdentity: identity,
		ServiceName:     name.Normalize(),
		Factory: func(ServiceFactory, []any) (any, error) {
			return rule.Factory(identity, name)
		},
		Lifetime: rule.Lifetime,
	}
	return c.compileRegistration(reg)
}

func (c *containerImpl) InjectProperties(instance any) error {
	c.lock()
	structType := resultStructType(reflect.TypeOf(instance))
	deps, fieldIdx := c.planner.extractPropertyDeps(structType)
	if len(deps) == 0 {
		return nil
	}
	info := &ConstructionInfo{PropertyDeps: deps, PropertyFieldIndex: fieldIdx}
	return resolvePropertiesInto(c.serviceFactory(nil), instance, info)
}

// -- Scopes ---------------------------------------------------------------

func (c *containerImpl) BeginScope() (*Scope, error) {
	return c.scopeMgr.Begin()
}

func (c *containerImpl) EndScope(s *Scope) error {
	return c.scopeMgr.End(s)
}

// -- Clone / Dispose --------------------------------------------------------

func (c *containerImpl) Clone() Container {
	c.mu.Lock()
	defer c.mu.Unlock()

	registry := c.registry.clone()
	nc := &containerImpl{
		registry:                registry,
		lookup:                  c.lookup.clone(),
		constants:               c.constants.clone(),
		log:                     c.log,
		scopeMgr:                newGoroutineScopeManager(),
		enableVariance:          c.enableVariance,
		enablePropertyInjection: c.enablePropertyInjection,
	}
	nc.planner = newPlanner(registry, nc.enablePropertyInjection)
	nc.compiler = newCompiler(nc.planner, nc.constants, nc.log)
	return nc
}

// Dispose releases every PerContainer-cached instance this container
// created, in reverse of the order in which their registrations were
// compiled (spec.md §4.4, §4.5's disposal ordering rule generalized to the
// container's own lifetime).
func (c *containerImpl) Dispose() error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}
	c.disposed = true
	disposables := c.containerDisposables
	c.mu.Unlock()

	var firstErr error
	for i := len(disposables) - 1; i >= 0; i-- {
		disposables[i].Dispose()
	}
	return firstErr
}

func (c *containerImpl) trackContainerDisposable(l *PerContainer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.containerDisposables = append(c.containerDisposables, l)
}

// -- ServiceFactory ----------------------------------------------------

// scopedServiceFactory is the ServiceFactory handle passed to every
// factory, decorator, dependency-factory, and initializer closure; it
// closes over the cycle-detection stack in effect for the resolve call
// that created it.
type scopedServiceFactory struct {
	container *containerImpl
	stack     []reflect.Type
}

func (c *containerImpl) serviceFactory(stack []reflect.Type) ServiceFactory {
	return &scopedServiceFactory{container: c, stack: stack}
}

func (f *scopedServiceFactory) Resolve(identity ServiceIdentity, name ServiceName) (any, error) {
	return f.container.resolve(identity, name, nil, f.stack)
}

func (f *scopedServiceFactory) ResolveWithArgs(identity ServiceIdentity, name ServiceName, args []any) (any, error) {
	return f.container.resolve(identity, name, args, f.stack)
}

func (f *scopedServiceFactory) Container() Container {
	return f.container
}
