package ioc_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/require"

	ioc "github.com/go-ioc/container"
)

// -- per-scope sharing and isolation -----------------------------------

type counter struct{ n int }

func newCounter() *counter { return &counter{} }

func TestPerScope_SharesWithinScope_IsolatesAcrossScopes(t *testing.T) {
	c := ioc.NewContainer()
	require.NoError(t, c.RegisterType(
		ioc.IdentityOf[*counter](),
		reflect.TypeOf((*counter)(nil)),
		[]reflect.Value{reflect.ValueOf(newCounter)},
		ioc.WithLifetime(&ioc.PerScope{}),
	))

	scope1, err := c.BeginScope()
	require.NoError(t, err)

	a1, err := ioc.Resolve[*counter](c)
	require.NoError(t, err)
	a2, err := ioc.Resolve[*counter](c)
	require.NoError(t, err)
	require.Same(t, a1, a2, "resolves within the same scope must share the instance")

	require.NoError(t, c.EndScope(scope1))

	_, err = c.BeginScope()
	require.NoError(t, err)

	b1, err := ioc.Resolve[*counter](c)
	require.NoError(t, err)
	require.NotSame(t, a1, b1, "sibling scopes must not share the instance")
}

// -- open-generic expansion ---------------------------------------------

type Repository[T any] struct {
	label string
}

func newRepository[T any]() *Repository[T] {
	return &Repository[T]{label: "repo"}
}

func TestOpenGeneric_PerContainerSingletonPerInstantiation(t *testing.T) {
	c := ioc.NewContainer()

	g, err := ioc.RegisterOpenGeneric(ioc.IdentityOf[*Repository[int]]())
	require.NoError(t, err)

	intReg := &ioc.ServiceRegistration{
		ServiceIdentity:      ioc.IdentityOf[*Repository[int]](),
		ImplementingIdentity: reflect.TypeOf((*Repository[int])(nil)),
		Constructors:         []reflect.Value{reflect.ValueOf(newRepository[int])},
		Lifetime:             &ioc.PerContainer{},
	}
	require.NoError(t, ioc.AddGenericArg[*Repository[int]](g, intReg))

	stringReg := &ioc.ServiceRegistration{
		ServiceIdentity:      ioc.IdentityOf[*Repository[string]](),
		ImplementingIdentity: reflect.TypeOf((*Repository[string])(nil)),
		Constructors:         []reflect.Value{reflect.ValueOf(newRepository[string])},
		Lifetime:             &ioc.PerContainer{},
	}
	require.NoError(t, ioc.AddGenericArg[*Repository[string]](g, stringReg))

	c.AddOpenGeneric(g)

	intA, err := ioc.Resolve[*Repository[int]](c)
	require.NoError(t, err)
	intB, err := ioc.Resolve[*Repository[int]](c)
	require.NoError(t, err)
	require.Same(t, intA, intB, "each instantiation is a per-container singleton")

	strA, err := ioc.Resolve[*Repository[string]](c)
	require.NoError(t, err)
	strB, err := ioc.Resolve[*Repository[string]](c)
	require.NoError(t, err)
	require.Same(t, strA, strB)

	require.NotEqual(t, any(intA), any(strA), "Repository[int] and Repository[string] singletons are distinct objects")
}

// -- decorator ordering ---------------------------------------------------

type logger interface {
	Log() []string
}

type recorder struct {
	steps []string
}

func (r *recorder) Log() []string { return r.steps }

func TestDecorators_FirstRegisteredIsOutermost(t *testing.T) {
	c := ioc.NewContainer()
	base := &recorder{}
	require.NoError(t, c.RegisterValue(ioc.IdentityOf[logger](), base))

	decoratorA := &ioc.DecoratorRegistration{
		ServiceIdentity: ioc.IdentityOf[logger](),
		Factory: func(_ ioc.ServiceFactory, inner func() (any, error)) (any, error) {
			v, err := inner()
			if err != nil {
				return nil, err
			}
			r := v.(*recorder)
			r.steps = append(r.steps, "A")
			return r, nil
		},
	}
	decoratorB := &ioc.DecoratorRegistration{
		ServiceIdentity: ioc.IdentityOf[logger](),
		Factory: func(_ ioc.ServiceFactory, inner func() (any, error)) (any, error) {
			v, err := inner()
			if err != nil {
				return nil, err
			}
			r := v.(*recorder)
			r.steps = append(r.steps, "B")
			return r, nil
		},
	}
	require.NoError(t, c.Decorate(decoratorA))
	require.NoError(t, c.Decorate(decoratorB))

	v, err := ioc.Resolve[logger](c)
	require.NoError(t, err)
	// decoratorA was registered first, so it wraps decoratorB: it calls
	// decoratorB's chain first (which appends "B"), then appends its own
	// step last, since it is the outermost call.
	require.Equal(t, []string{"B", "A"}, v.Log())
}

// -- enumerable aggregation with variance ---------------------------------

type plugin interface {
	Name() string
}

type pluginA struct{}

func (pluginA) Name() string { return "A" }

type pluginB struct{}

func (pluginB) Name() string { return "B" }

type pluginC struct{}

func (pluginC) Name() string { return "C" }

func TestResolveAll_AggregatesWithVariance(t *testing.T) {
	c := ioc.NewContainer()
	require.NoError(t, c.RegisterValue(ioc.IdentityOf[plugin](), pluginA{}))
	require.NoError(t, c.RegisterValue(ioc.IdentityOf[plugin](), pluginB{}, ioc.WithName("b")))
	// registered under its own concrete identity, picked up by variance
	// since pluginC is assignable to plugin.
	require.NoError(t, c.RegisterValue(ioc.IdentityOf[pluginC](), pluginC{}))

	all, err := ioc.ResolveAll[plugin](c)
	require.NoError(t, err)

	names := make([]string, len(all))
	for i, p := range all {
		names[i] = p.Name()
	}
	require.ElementsMatch(t, []string{"A", "B", "C"}, names)
}

// -- disposal ordering -----------------------------------------------------

type resource struct {
	disposed bool
}

func (r *resource) Dispose() error {
	r.disposed = true
	return nil
}

func newResource() *resource { return &resource{} }

func TestScopeDispose_DisposesTrackedInstances(t *testing.T) {
	c := ioc.NewContainer()
	require.NoError(t, c.RegisterType(
		ioc.IdentityOf[*resource](),
		reflect.TypeOf((*resource)(nil)),
		[]reflect.Value{reflect.ValueOf(newResource)},
		ioc.WithLifetime(ioc.PerRequest{}),
	))

	scope, err := c.BeginScope()
	require.NoError(t, err)

	r, err := ioc.Resolve[*resource](c)
	require.NoError(t, err)
	require.False(t, r.disposed)

	require.NoError(t, c.EndScope(scope))
	require.True(t, r.disposed)
}

// -- cycle detection --------------------------------------------------------

type nodeA struct{}
type nodeB struct{}

func newNodeA(*nodeB) *nodeA { return &nodeA{} }
func newNodeB(*nodeA) *nodeB { return &nodeB{} }

func TestResolve_DetectsCycle(t *testing.T) {
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

	_, err := ioc.Resolve[*nodeA](c)
	require.Error(t, err)

	var cyc *ioc.CyclicDependencyError
	require.True(t, errors.As(err, &cyc))
	require.GreaterOrEqual(t, len(cyc.Chain), 2)
}

// -- registration after lock ------------------------------------------------

func TestContainer_LocksAfterFirstResolve(t *testing.T) {
	c := ioc.NewContainer()
	require.NoError(t, c.RegisterValue(ioc.IdentityOf[int](), 1))

	_, err := ioc.Resolve[int](c)
	require.NoError(t, err)
	require.True(t, c.IsLocked())

	err = c.RegisterValue(ioc.IdentityOf[string](), "late")
	require.Error(t, err)

	var lockErr *ioc.RegistrationAfterLockError
	require.True(t, errors.As(err, &lockErr))
}
