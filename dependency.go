package ioc

import "reflect"

// DependencyFactory replaces recursive resolution for a single Dependency:
// when set, the compiler splices a call to this closure into the emitted
// code instead of emitting a nested resolve of (Type, Name).
type DependencyFactory func(ServiceFactory) (any, error)

// Dependency describes one constructor parameter or settable property that
// the Planner discovered on an implementing type (spec.md §3 "Dependency").
type Dependency struct {
	// Type is the dependency's own service identity.
	Type reflect.Type
	// Name holds the struct field name for property dependencies and is
	// empty for constructor dependencies (Go's reflect carries no parameter
	// names). Resolution does not use it: there is no lookup of a
	// registration named after the parameter or property.
	Name string
	// ServiceName is always "" for constructor/property dependencies per
	// spec.md §4.2 — dependencies always target the default registration
	// unless a DependencyFactory overrides that.
	ServiceName ServiceName
	IsRequired  bool
	// Factory, if set, is spliced in by the compiler instead of a
	// recursive resolve (spec.md §4.2 "Dependency factories").
	Factory DependencyFactory
}

// ConstructionInfo is the Planner's output for one ServiceRegistration: a
// chosen constructor with its ordered dependencies and discovered property
// dependencies. Registrations that carry a factory closure are never
// planned; the compiler calls ServiceRegistration.Factory directly.
type ConstructionInfo struct {
	Constructor         reflect.Value
	ConstructorDeps      []*Dependency
	PropertyDeps         []*Dependency
	// PropertyFieldIndex maps each PropertyDeps entry to its struct field index,
	// threaded through from the planner's reflection pass so the compiler
	// need not re-walk the struct fields.
	PropertyFieldIndex []int

	// Factory is not filled in by the Planner or read by the compiler;
	// factory registrations bypass ConstructionInfo entirely.
	Factory func(ServiceFactory, []any) (any, error)
}

// ServiceFactory is the handle a factory closure, dependency factory, or
// decorator factory receives so it can ask the container for further
// dependencies without recursing through the public façade. It is the Go
// analogue of the source's "ServiceFactory" collaborator referenced
// throughout spec.md §3–§4.
type ServiceFactory interface {
	Resolve(identity ServiceIdentity, name ServiceName) (any, error)
	Container() Container
}
