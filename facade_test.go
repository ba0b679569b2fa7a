package ioc_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	ioc "github.com/go-ioc/container"
)

// -- fallback rules ----------------------------------------------------

type greeting string

func TestFallback_SuppliesSyntheticRegistration(t *testing.T) {
	c := ioc.NewContainer()
	greetingIdentity := ioc.IdentityOf[greeting]()
	require.NoError(t, c.AddFallback(&ioc.FactoryRule{
		Predicate: func(identity ioc.ServiceIdentity, _ ioc.ServiceName) bool {
			return identity == greetingIdentity
		},
		Factory: func(ioc.ServiceIdentity, ioc.ServiceName) (any, error) {
			return greeting("hello"), nil
		},
	}))

	v, err := ioc.Resolve[greeting](c)
	require.NoError(t, err)
	require.Equal(t, greeting("hello"), v)
}

// -- overrides -----------------------------------------------------------

func TestOverride_RewritesRegistrationAtEmitTime(t *testing.T) {
	c := ioc.NewContainer()
	require.NoError(t, c.RegisterValue(ioc.IdentityOf[int](), 1))
	require.NoError(t, c.AddOverride(&ioc.ServiceOverride{
		Predicate: func(reg *ioc.ServiceRegistration) bool {
			return reg.ServiceIdentity == ioc.IdentityOf[int]()
		},
		Rewrite: func(_ ioc.ServiceFactory, reg *ioc.ServiceRegistration) *ioc.ServiceRegistration {
			cp := *reg
			cp.Value = 42
			return &cp
		},
	}))

	v, err := ioc.Resolve[int](c)
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

// -- initializers ----------------------------------------------------------

type widget struct{ Initialized bool }

func newWidget() *widget { return &widget{} }

func TestInitializer_RunsOnConstruction(t *testing.T) {
	c := ioc.NewContainer()
	require.NoError(t, c.RegisterType(
		ioc.IdentityOf[*widget](),
		reflect.TypeOf((*widget)(nil)),
		[]reflect.Value{reflect.ValueOf(newWidget)},
	))
	c.AddInitializer(&ioc.Initializer{
		Action: func(_ ioc.ServiceFactory, instance any) error {
			instance.(*widget).Initialized = true
			return nil
		},
	})

	w, err := ioc.Resolve[*widget](c)
	require.NoError(t, err)
	require.True(t, w.Initialized)
}

// -- property injection idempotence -----------------------------------------

type withDep struct {
	Dep *resource `inject:"true"`
}

func TestInjectProperties_IsIdempotent(t *testing.T) {
	c := ioc.NewContainer()
	require.NoError(t, c.RegisterType(
		ioc.IdentityOf[*resource](),
		reflect.TypeOf((*resource)(nil)),
		[]reflect.Value{reflect.ValueOf(newResource)},
		ioc.WithLifetime(&ioc.PerContainer{}),
	))

	target := &withDep{}
	require.NoError(t, c.InjectProperties(target))
	first := target.Dep
	require.NotNil(t, first)

	require.NoError(t, c.InjectProperties(target))
	require.Same(t, first, target.Dep, "re-running property injection on the same instance is idempotent")
}

func TestWithPropertyInjection_DisabledSkipsInjection(t *testing.T) {
	c := ioc.NewContainer(ioc.WithPropertyInjection(false))
	require.NoError(t, c.RegisterType(
		ioc.IdentityOf[*resource](),
		reflect.TypeOf((*resource)(nil)),
		[]reflect.Value{reflect.ValueOf(newResource)},
	))

	target := &withDep{}
	require.NoError(t, c.InjectProperties(target))
	require.Nil(t, target.Dep, "property injection is a no-op once disabled")
}

// -- variance toggle ---------------------------------------------------------

func TestWithVariance_DisabledExcludesAssignableRegistrations(t *testing.T) {
	c := ioc.NewContainer(ioc.WithVariance(false))
	require.NoError(t, c.RegisterValue(ioc.IdentityOf[plugin](), pluginA{}))
	require.NoError(t, c.RegisterValue(ioc.IdentityOf[pluginC](), pluginC{}))

	all, err := ioc.ResolveAll[plugin](c)
	require.NoError(t, err)

	names := make([]string, len(all))
	for i, p := range all {
		names[i] = p.Name()
	}
	require.Equal(t, []string{"A"}, names, "pluginC is only assignable to plugin, not exactly plugin, so variance off excludes it")
}

// -- clone --------------------------------------------------------------------

type featureFlag string

func TestClone_IsIndependentlyMutable(t *testing.T) {
	c := ioc.NewContainer()
	require.NoError(t, c.RegisterValue(ioc.IdentityOf[featureFlag](), featureFlag("base")))

	v, err := ioc.Resolve[featureFlag](c)
	require.NoError(t, err)
	require.Equal(t, featureFlag("base"), v)
	require.True(t, c.IsLocked())

	clone := c.Clone()
	require.False(t, clone.IsLocked(), "a clone starts unlocked even if its source was locked")

	require.NoError(t, clone.RegisterValue(ioc.IdentityOf[int](), 7))
	cv, err := ioc.Resolve[int](clone)
	require.NoError(t, err)
	require.Equal(t, 7, cv)

	_, err = c.Resolve(ioc.IdentityOf[int](), "")
	require.Error(t, err, "a registration added to the clone must not appear on the source")
}

// -- unmanaged -----------------------------------------------------------------

func TestResolveUnmanaged_DelegatesToResolve(t *testing.T) {
	c := ioc.NewContainer()
	require.NoError(t, c.RegisterType(
		ioc.IdentityOf[*counter](),
		reflect.TypeOf((*counter)(nil)),
		[]reflect.Value{reflect.ValueOf(newCounter)},
	))

	u := ioc.ResolveUnmanaged[*counter](c, "")
	a, err := u.Get()
	require.NoError(t, err)
	b, err := u.Get()
	require.NoError(t, err)
	require.NotSame(t, a, b, "a Transient registration still produces a fresh instance on every Get")
}

// -- TryResolve -----------------------------------------------------------------

func TestTryResolve_FalseOnlyForNotRegistered(t *testing.T) {
	c := ioc.NewContainer()
	_, ok := c.TryResolve(ioc.IdentityOf[*counter](), "")
	require.False(t, ok)
}

func TestTryResolve_PropagatesOtherErrors(t *testing.T) {
	c := ioc.NewContainer()
	require.NoError(t, c.RegisterType(
		ioc.IdentityOf[*nodeA](),
		reflect.TypeOf((*nodeA)(nil)),
		[]reflect.Value{reflect.ValueOf(newNodeA)},
	))
	require.NoError(t, c.RegisterType(
		ioc.IdentityOf[*nodeB](),
		reflect.TypeOf((*nodeB)(nil)),
		[]reflect.Value{reflect.ValueOf(newNodeB)},
	))

	require.Panics(t, func() {
		c.TryResolve(ioc.IdentityOf[*nodeA](), "")
	})
}

func TestGenericTryResolve_FalseWhenNotRegistered(t *testing.T) {
	c := ioc.NewContainer()
	_, ok := ioc.TryResolve[*counter](c)
	require.False(t, ok)
}

// -- runtime-argument splicing --------------------------------------------------

type namedThing struct{ Name string }

func newNamedThing(name string) *namedThing { return &namedThing{Name: name} }

func TestResolveWithArgs_FillsTrailingConstructorSlot(t *testing.T) {
	c := ioc.NewContainer()
	require.NoError(t, c.RegisterType(
		ioc.IdentityOf[*namedThing](),
		reflect.TypeOf((*namedThing)(nil)),
		[]reflect.Value{reflect.ValueOf(newNamedThing)},
	))

	v, err := c.ResolveWithArgs(ioc.IdentityOf[*namedThing](), "", []any{"Ada"})
	require.NoError(t, err)
	require.Equal(t, "Ada", v.(*namedThing).Name)
}

// -- Func0..Func3 / Lazy[T] synthesis --------------------------------------------

func TestFunc0Synthesis_ReRunsConstructionOnEveryCall(t *testing.T) {
	c := ioc.NewContainer()
	require.NoError(t, c.RegisterType(
		ioc.IdentityOf[*resource](),
		reflect.TypeOf((*resource)(nil)),
		[]reflect.Value{reflect.ValueOf(newResource)},
	))

	fn, err := ioc.Resolve[ioc.Func0[*resource]](c)
	require.NoError(t, err)

	a, err := fn()
	require.NoError(t, err)
	b, err := fn()
	require.NoError(t, err)
	require.NotSame(t, a, b, "each call resolves again, respecting the Transient lifetime")
}

func TestFunc1Synthesis_ForwardsCallArgAsRuntimeArgument(t *testing.T) {
	c := ioc.NewContainer()
	require.NoError(t, c.RegisterType(
		ioc.IdentityOf[*namedThing](),
		reflect.TypeOf((*namedThing)(nil)),
		[]reflect.Value{reflect.ValueOf(newNamedThing)},
	))

	fn, err := ioc.Resolve[ioc.Func1[string, *namedThing]](c)
	require.NoError(t, err)

	v, err := fn("Ada")
	require.NoError(t, err)
	require.Equal(t, "Ada", v.Name)
}

func TestLazy_DefersAndCachesResolve(t *testing.T) {
	c := ioc.NewContainer()
	require.NoError(t, c.RegisterType(
		ioc.IdentityOf[*resource](),
		reflect.TypeOf((*resource)(nil)),
		[]reflect.Value{reflect.ValueOf(newResource)},
		ioc.WithLifetime(&ioc.PerContainer{}),
	))

	resolved := false
	lazy := ioc.NewLazy(func() (*resource, error) {
		resolved = true
		return ioc.Resolve[*resource](c)
	})
	require.False(t, resolved)

	v1, err := lazy.Get()
	require.NoError(t, err)
	require.True(t, resolved)

	v2, err := lazy.Get()
	require.NoError(t, err)
	require.Same(t, v1, v2, "Get caches the result of the first resolve")

	require.NoError(t, lazy.Dispose())
	require.True(t, v1.disposed, "disposing a realized Lazy disposes the realized instance")
}

// -- context-flowed scope manager ------------------------------------------------

func TestContextScopeManager_UsableAsContainerScopeManager(t *testing.T) {
	c := ioc.NewContainer(ioc.WithScopeManagerProvider(func() ioc.ScopeManager {
		return ioc.NewContextScopeManager()
	}))
	require.NoError(t, c.RegisterType(
		ioc.IdentityOf[*counter](),
		reflect.TypeOf((*counter)(nil)),
		[]reflect.Value{reflect.ValueOf(newCounter)},
		ioc.WithLifetime(&ioc.PerScope{}),
	))

	scope, err := c.BeginScope()
	require.NoError(t, err)

	a, err := ioc.Resolve[*counter](c)
	require.NoError(t, err)
	b, err := ioc.Resolve[*counter](c)
	require.NoError(t, err)
	require.Same(t, a, b)

	require.NoError(t, c.EndScope(scope))
}

func TestContextScopeManager_FlowsScopeThroughContext(t *testing.T) {
	mgr := ioc.NewContextScopeManager()
	cf, ok := mgr.(interface {
		BeginWithContext(context.Context) (*ioc.Scope, context.Context, error)
		CurrentFromContext(context.Context) *ioc.Scope
		EndWithContext(*ioc.Scope) error
	})
	require.True(t, ok, "NewContextScopeManager must return the async-flow API, not just the plain ScopeManager methods")

	s, ctx, err := cf.BeginWithContext(context.Background())
	require.NoError(t, err)
	require.Same(t, s, cf.CurrentFromContext(ctx))

	require.NoError(t, cf.EndWithContext(s))
}

// -- planner constructor selection -----------------------------------------------

type unregisteredDep struct{}
type anotherUnregisteredDep struct{}

type gadget struct{}

func newGadgetFull(_ *resource, _ *unregisteredDep) *gadget { return &gadget{} }
func newGadgetMinimal(_ *resource) *gadget                 { return &gadget{} }

func TestPlanner_FallsBackToLowerArityWhenHigherArityUnresolvable(t *testing.T) {
	c := ioc.NewContainer()
	require.NoError(t, c.RegisterType(
		ioc.IdentityOf[*resource](),
		reflect.TypeOf((*resource)(nil)),
		[]reflect.Value{reflect.ValueOf(newResource)},
	))
	require.NoError(t, c.RegisterType(
		ioc.IdentityOf[*gadget](),
		reflect.TypeOf((*gadget)(nil)),
		[]reflect.Value{
			reflect.ValueOf(newGadgetFull),
			reflect.ValueOf(newGadgetMinimal),
		},
	))

	v, err := ioc.Resolve[*gadget](c)
	require.NoError(t, err)
	require.NotNil(t, v)
}

type sprocket struct{}

func newSprocketA(_ *unregisteredDep) *sprocket        { return &sprocket{} }
func newSprocketB(_ *anotherUnregisteredDep) *sprocket { return &sprocket{} }

func TestPlanner_NoResolvableConstructorWhenNoneQualify(t *testing.T) {
	c := ioc.NewContainer()
	require.NoError(t, c.RegisterType(
		ioc.IdentityOf[*sprocket](),
		reflect.TypeOf((*sprocket)(nil)),
		[]reflect.Value{
			reflect.ValueOf(newSprocketA),
			reflect.ValueOf(newSprocketB),
		},
	))

	_, err := ioc.Resolve[*sprocket](c)
	require.Error(t, err)

	var nrc *ioc.NoResolvableConstructorError
	require.True(t, errors.As(err, &nrc))
}
