package ioc

import (
	"context"
	"reflect"
	"sort"
)

// Planner turns an implementing type or a set of candidate constructor
// functions into a ConstructionInfo: the chosen constructor, its ordered
// dependencies, and any property dependencies discovered via struct tags
// (spec.md §3 "ConstructionInfo", §4.2 "Construction Planner").
//
// The source lets a single class carry several overloaded constructors and
// picks "the one with the most parameters whose types are all resolvable".
// Go has no constructor overloading, so that selection is re-architected
// here as picking among several candidate constructor *functions* supplied
// for the same implementing type (see RegisterType in container.go) — the
// scoring rule survives unchanged, only the source of candidates changes.
type Planner struct {
	registry                *Registry
	enablePropertyInjection bool
}

func newPlanner(registry *Registry, enablePropertyInjection bool) *Planner {
	return &Planner{registry: registry, enablePropertyInjection: enablePropertyInjection}
}

// injectTag is the struct tag property injection looks for.
const injectTag = "inject"

// Plan selects a constructor from candidates and extracts its dependencies,
// plus any property dependencies the resulting instance's struct type
// declares via the `inject` tag.
func (p *Planner) Plan(implementingType reflect.Type, candidates []reflect.Value) (*ConstructionInfo, error) {
	chosen, err := p.chooseConstructor(implementingType, candidates)
	if err != nil {
		return nil, err
	}

	propDeps, fieldIdx := p.extractPropertyDeps(resultStructType(implementingType))

	return &ConstructionInfo{
		Constructor:        chosen,
		ConstructorDeps:    p.extractConstructorDeps(chosen),
		PropertyDeps:       propDeps,
		PropertyFieldIndex: fieldIdx,
	}, nil
}

// chooseConstructor implements spec.md §4.2's "most resolvable constructor"
// selection: zero candidates fails outright; exactly one candidate is used
// with no further checks; two or more are sorted descending by parameter
// count and the first whose every parameter is resolvable wins, falling
// through the rest of the list until one qualifies.
func (p *Planner) chooseConstructor(implementingType reflect.Type, candidates []reflect.Value) (reflect.Value, error) {
	switch len(candidates) {
	case 0:
		return reflect.Value{}, &NoPublicConstructorError{ImplementingType: implementingType}
	case 1:
		return candidates[0], nil
	}

	sorted := make([]reflect.Value, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Type().NumIn() > sorted[j].Type().NumIn()
	})
	for _, ctor := range sorted {
		if p.allParamsResolvable(ctor) {
			return ctor, nil
		}
	}
	return reflect.Value{}, &NoResolvableConstructorError{ImplementingType: implementingType}
}

// allParamsResolvable is the resolvability test spec.md §4.2 calls for when
// disambiguating among two or more candidate constructors: every parameter
// (other than context.Context/ServiceFactory) must have a direct
// registration under the empty name. The source's fallback to a
// named-by-parameter-name registration is dropped here — Go's reflect.Type
// carries no parameter names to match against, and this module's
// Dependency.Name is populated from struct field names for property
// dependencies only.
//
// This check is intentionally narrower than "will this actually resolve":
// fallback rules, open generics, and unknown-service synthesis can still
// satisfy a parameter the compiler resolves later. It only needs to break
// ties between overloads, not predict the compiler's eventual success.
func (p *Planner) allParamsResolvable(ctor reflect.Value) bool {
	t := ctor.Type()
	for i := 0; i < t.NumIn(); i++ {
		paramType := t.In(i)
		if paramType == contextType || paramType == serviceFactoryType {
			continue
		}
		if _, ok := p.registry.Lookup(paramType, ""); !ok {
			return false
		}
	}
	return true
}

// extractConstructorDeps builds one Dependency per non-context.Context,
// non-ServiceFactory parameter of the already-chosen constructor, in
// positional order (spec.md §4.2 "Dependency extraction").
func (p *Planner) extractConstructorDeps(ctor reflect.Value) []*Dependency {
	t := ctor.Type()
	deps := make([]*Dependency, 0, t.NumIn())
	for i := 0; i < t.NumIn(); i++ {
		paramType := t.In(i)
		if paramType == contextType || paramType == serviceFactoryType {
			continue
		}
		deps = append(deps, &Dependency{
			Type:       paramType,
			IsRequired: true,
		})
	}
	return deps
}

var (
	contextType        = reflect.TypeOf((*context.Context)(nil)).Elem()
	serviceFactoryType = reflect.TypeOf((*ServiceFactory)(nil)).Elem()
)

// resultStructType unwraps a pointer-to-struct implementing type down to
// the struct itself, since property injection tags live on struct fields
// regardless of whether the registration exposes a pointer or value type.
func resultStructType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// extractPropertyDeps walks structType's exported fields looking for the
// `inject` tag. When property injection is disabled by container option
// (spec.md §4.2, §6 "enable_property_injection"), it always yields the
// empty list, which also makes Container.InjectProperties a no-op since
// that method has nothing to inject.
func (p *Planner) extractPropertyDeps(structType reflect.Type) ([]*Dependency, []int) {
	if !p.enablePropertyInjection {
		return nil, nil
	}
	if structType == nil || structType.Kind() != reflect.Struct {
		return nil, nil
	}
	var deps []*Dependency
	var fieldIdx []int
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if !field.IsExported() {
			continue
		}
		tagValue, hasTag := field.Tag.Lookup(injectTag)
		if !hasTag {
			continue
		}
		required := tagValue != "optional"
		deps = append(deps, &Dependency{
			Type:       field.Type,
			Name:       field.Name,
			IsRequired: required,
		})
		fieldIdx = append(fieldIdx, i)
	}
	return deps, fieldIdx
}
