package ioc

import "reflect"

// Compiler turns one ServiceRegistration, plus the decorators and
// initializers that apply to it, into a single resolveDelegate closure —
// the Recipe Compiler of spec.md §5: every step that can happen once
// (constructor selection, decorator folding, lifetime wrapping,
// initializer attachment) happens here, at compile time, so a resolve call
// only ever invokes the already-assembled closure.
type Compiler struct {
	planner   *Planner
	constants *ConstantsTable
	log       LogSink
}

func newCompiler(planner *Planner, constants *ConstantsTable, log LogSink) *Compiler {
	return &Compiler{planner: planner, constants: constants, log: log}
}

// compile builds the resolveDelegate for reg. decorators must already be
// sorted by ascending Index; initializers run in the order given, which is
// declaration order as Registry.initializersFor returns them.
func (c *Compiler) compile(reg *ServiceRegistration, decorators []*DecoratorRegistration, initializers []*Initializer) (resolveDelegate, error) {
	base, err := c.compileBase(reg)
	if err != nil {
		return nil, err
	}

	// Fold from the highest Index down to zero, so the lowest-Index
	// (first-registered) decorator is the last one wrapped and ends up
	// outermost — the entry call on resolve. This is spec.md §8's
	// d1(d2(…dk(core)…)) invariant: d1, the first-sorted decorator, wraps
	// everything else.
	decorated := base
	for i := len(decorators) - 1; i >= 0; i-- {
		d := decorators[i]
		inner := decorated
		decorated = c.foldDecorator(d, inner)
	}

	withInit := decorated
	if len(initializers) > 0 {
		inner := decorated
		withInit = func(factory ServiceFactory, scope *Scope, args []any) (any, error) {
			instance, err := inner(factory, scope, args)
			if err != nil {
				return nil, err
			}
			for _, init := range initializers {
				if err := init.Action(factory, instance); err != nil {
					return nil, err
				}
			}
			return instance, nil
		}
	}

	lifetime := reg.Lifetime
	if lifetime == nil {
		lifetime = defaultLifetime()
	}

	return func(factory ServiceFactory, scope *Scope, args []any) (any, error) {
		// Runtime per-request arguments make the produced instance specific
		// to this call, so a lifetime cache (which stores one instance per
		// registration, not per argument combination) would hand back a
		// stale instance built from someone else's arguments. spec.md §4.3
		// leaves this combination undiscussed; this implementation treats
		// argumented resolves as always-transient, matching C# DI
		// container conventions for parameterized factories.
		if len(args) > 0 {
			return withInit(factory, scope, args)
		}
		return lifetime.GetInstance(func() (any, error) {
			return withInit(factory, scope, nil)
		}, scope)
	}, nil
}

// foldDecorator wraps inner with one decoration step (spec.md §4.3.4). A
// decorator with a Factory closure simply
// calls inner() and returns whatever it builds from it. A decorator built
// from an implementing type instead runs its Constructor through the same
// reflective call machinery compileConstructor uses, splicing the inner
// instance into whichever parameter accepts it.
func (c *Compiler) foldDecorator(d *DecoratorRegistration, inner resolveDelegate) resolveDelegate {
	if d.Factory != nil {
		return func(factory ServiceFactory, scope *Scope, args []any) (any, error) {
			return d.Factory(factory, func() (any, error) { return inner(factory, scope, args) })
		}
	}

	ctor := d.Constructor
	innerType := d.ServiceIdentity
	return func(f ServiceFactory, scope *Scope, args []any) (any, error) {
		innerValue, err := inner(f, scope, args)
		if err != nil {
			return nil, err
		}
		t := ctor.Type()
		in := make([]reflect.Value, t.NumIn())
		filledInner := false
		for i := 0; i < t.NumIn(); i++ {
			paramType := t.In(i)
			switch {
			case paramType == contextType:
				in[i] = reflect.Zero(paramType)
			case paramType == serviceFactoryType:
				in[i] = reflect.ValueOf(f)
			case !filledInner && innerType.AssignableTo(paramType):
				in[i] = reflect.ValueOf(innerValue)
				filledInner = true
			default:
				value, err := f.Resolve(paramType, "")
				if err != nil {
					return nil, &UnresolvedDependencyError{Owner: ctor.Type(), Dependency: paramType, Cause: err}
				}
				in[i] = reflect.ValueOf(value)
			}
		}
		results := ctor.Call(in)
		return splitConstructorResults(results)
	}
}

// compileBase builds the unwrapped construction step: invoke the raw
// factory, return the fixed value, or call the planned constructor and
// satisfy its dependencies and property injections.
func (c *Compiler) compileBase(reg *ServiceRegistration) (resolveDelegate, error) {
	switch {
	case reg.Factory != nil:
		factory := reg.Factory
		return func(f ServiceFactory, _ *Scope, args []any) (any, error) {
			return factory(f, args)
		}, nil

	case reg.Value != nil:
		// Route the pre-built instance through the constants table (spec.md
		// §2, §4.3: "captured objects threaded through" the compiled
		// delegate) instead of closing over reg.Value directly, so Clone's
		// cloned table — not the closure itself — is the thing a consumer
		// would need to inspect to find a registration's captured value.
		idx := c.constants.Append(reg.Value)
		constants := c.constants
		return func(ServiceFactory, *Scope, []any) (any, error) {
			return constants.Get(idx), nil
		}, nil

	case reg.ImplementingIdentity != nil:
		info := reg.constructionInfo
		if info == nil {
			var err error
			info, err = c.planner.Plan(reg.ImplementingIdentity, reg.Constructors)
			if err != nil {
				return nil, err
			}
			reg.constructionInfo = info
		}
		return c.compileConstructor(reg, info), nil

	default:
		return nil, ErrInvalidRegistration
	}
}

// compileConstructor assembles the closure that resolves every constructor
// and property dependency (recursing through factory.Resolve, which is
// where cycle detection and per-call argument plumbing live) and then calls
// the chosen constructor via reflection.
func (c *Compiler) compileConstructor(reg *ServiceRegistration, info *ConstructionInfo) resolveDelegate {
	return func(f ServiceFactory, scope *Scope, args []any) (any, error) {
		// Runtime arguments (spec.md §4.3 "Per-request runtime arguments")
		// fill the trailing constructor dependency slots in order; any
		// slots before them still resolve from the container.
		firstArgSlot := len(info.ConstructorDeps) - len(args)

		in := make([]reflect.Value, info.Constructor.Type().NumIn())
		depIdx := 0
		for i := 0; i < len(in); i++ {
			paramType := info.Constructor.Type().In(i)
			switch {
			case paramType == contextType:
				in[i] = reflect.Zero(paramType)
			case paramType == serviceFactoryType:
				in[i] = reflect.ValueOf(f)
			default:
				dep := info.ConstructorDeps[depIdx]
				if firstArgSlot >= 0 && depIdx >= firstArgSlot {
					in[i] = reflect.ValueOf(args[depIdx-firstArgSlot])
					depIdx++
					continue
				}
				depIdx++
				value, err := resolveDependency(f, dep)
				if err != nil {
					return nil, &UnresolvedDependencyError{
						Owner:      reg.ImplementingIdentity,
						Dependency: dep.Type,
						Cause:      err,
					}
				}
				in[i] = reflect.ValueOf(value)
			}
		}

		results := info.Constructor.Call(in)
		instance, err := splitConstructorResults(results)
		if err != nil {
			return nil, err
		}

		if len(info.PropertyDeps) > 0 {
			if err := resolvePropertiesInto(f, instance, info); err != nil {
				return nil, err
			}
		}
		return instance, nil
	}
}

// resolveDependency runs a Dependency's own Factory override if set,
// otherwise recurses through the ServiceFactory.
func resolveDependency(f ServiceFactory, dep *Dependency) (any, error) {
	if dep.Factory != nil {
		return dep.Factory(f)
	}
	value, err := f.Resolve(dep.Type, dep.ServiceName)
	if err != nil && !dep.IsRequired {
		return reflect.Zero(dep.Type).Interface(), nil
	}
	return value, err
}

// splitConstructorResults finds the (value, error) pair among a reflected
// call's results, matching the teacher's own index-scanning approach in
// factory.go rather than requiring a fixed (T, error) signature.
func splitConstructorResults(results []reflect.Value) (any, error) {
	var value any
	var err error
	for _, r := range results {
		if isErrorType(r.Type()) {
			if !r.IsNil() {
				err = r.Interface().(error)
			}
			continue
		}
		value = r.Interface()
	}
	return value, err
}

// resolvePropertiesInto resolves each property Dependency and sets it on
// the constructed instance's struct fields, unwrapping a pointer receiver
// the same way planner.go's resultStructType does. It is also the engine
// behind Container.InjectProperties, spec.md §4.2's standalone property
// injection operation — that caller builds an *ConstructionInfo with only
// PropertyDeps populated and reuses this function directly.
func resolvePropertiesInto(f ServiceFactory, instance any, info *ConstructionInfo) error {
	v := reflect.ValueOf(instance)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	for i, dep := range info.PropertyDeps {
		fieldIdx := info.PropertyFieldIndex[i]
		field := v.Field(fieldIdx)
		if !field.CanSet() {
			continue
		}
		value, err := resolveDependency(f, dep)
		if err != nil {
			return &UnresolvedDependencyError{Owner: v.Type(), Dependency: dep.Type, Cause: err}
		}
		if value == nil {
			continue
		}
		field.Set(reflect.ValueOf(value))
	}
	return nil
}
