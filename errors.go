package ioc

import (
	"errors"
	"fmt"
	"reflect"
)

// Error kinds, one sentinel per row of spec.md's error table. Concrete
// failures are struct errors (grounded on centraunit-digo/errors.go's
// per-kind struct style) that wrap one of these sentinels so callers can
// use errors.Is against a stable kind while still getting a descriptive
// message and an Unwrap chain back to the underlying cause.
var (
	ErrNotRegistered       = errors.New("ioc: no registration found")
	ErrCyclicDependency    = errors.New("ioc: cyclic dependency detected")
	ErrUnresolvedDependency = errors.New("ioc: required dependency could not be resolved")
	ErrNoPublicConstructor  = errors.New("ioc: implementing type has no public constructor")
	ErrNoResolvableConstructor = errors.New("ioc: no constructor overload has all dependencies resolvable")
	ErrInvalidScope         = errors.New("ioc: invalid scope operation")
	ErrRegistrationAfterLock = errors.New("ioc: registration attempted after container was locked")
	ErrGenericConstraint     = errors.New("ioc: open-generic expansion violated implementing type constraints")
)

// NotRegisteredError carries the (identity, name) that had no emitter after
// every expansion strategy ran.
type NotRegisteredError struct {
	Identity reflect.Type
	Name     ServiceName
}

func (e *NotRegisteredError) Error() string {
	if e.Name.IsDefault() {
		return fmt.Sprintf("ioc: no registration for %s", e.Identity)
	}
	return fmt.Sprintf("ioc: no registration for %s named %q", e.Identity, e.Name)
}

func (e *NotRegisteredError) Unwrap() error { return ErrNotRegistered }

// CyclicDependencyError carries the ordered chain of identities that form
// the cycle, so the message names every type involved as spec.md §8's
// Scenario 6 requires.
type CyclicDependencyError struct {
	Chain []reflect.Type
}

func (e *CyclicDependencyError) Error() string {
	names := make([]string, len(e.Chain))
	for i, t := range e.Chain {
		names[i] = t.String()
	}
	out := "ioc: cyclic dependency: "
	for i, n := range names {
		if i > 0 {
			out += " -> "
		}
		out += n
	}
	return out
}

func (e *CyclicDependencyError) Unwrap() error { return ErrCyclicDependency }

// UnresolvedDependencyError reports a required constructor dependency that
// could not be emitted while compiling another service.
type UnresolvedDependencyError struct {
	Owner      reflect.Type
	Dependency reflect.Type
	Cause      error
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("ioc: %s depends on unresolved %s: %v", e.Owner, e.Dependency, e.Cause)
}

func (e *UnresolvedDependencyError) Unwrap() error {
	return errors.Join(ErrUnresolvedDependency, e.Cause)
}

// NoPublicConstructorError / NoResolvableConstructorError mirror the
// Planner's two distinct constructor-selection failures (spec.md §4.2).
type NoPublicConstructorError struct {
	ImplementingType reflect.Type
}

func (e *NoPublicConstructorError) Error() string {
	return fmt.Sprintf("ioc: %s has no public constructor", e.ImplementingType)
}

func (e *NoPublicConstructorError) Unwrap() error { return ErrNoPublicConstructor }

type NoResolvableConstructorError struct {
	ImplementingType reflect.Type
}

func (e *NoResolvableConstructorError) Error() string {
	return fmt.Sprintf("ioc: no constructor of %s has every parameter resolvable", e.ImplementingType)
}

func (e *NoResolvableConstructorError) Unwrap() error { return ErrNoResolvableConstructor }

// InvalidScopeError covers the three InvalidScope triggers from spec.md §4.5:
// ending a scope with a live child, ending a scope that is not current, and
// tracking a disposable with no scope.
type InvalidScopeError struct {
	Reason string
}

func (e *InvalidScopeError) Error() string {
	return fmt.Sprintf("ioc: invalid scope operation: %s", e.Reason)
}

func (e *InvalidScopeError) Unwrap() error { return ErrInvalidScope }

// RegistrationAfterLockError is returned as a hard error by Register,
// Decorate, AddFallback and AddOverride once the registry is locked
// (spec.md §7). It is never logged.
type RegistrationAfterLockError struct {
	Operation string
}

func (e *RegistrationAfterLockError) Error() string {
	return fmt.Sprintf("ioc: %s rejected: container is locked after first resolve", e.Operation)
}

func (e *RegistrationAfterLockError) Unwrap() error { return ErrRegistrationAfterLock }

// GenericConstraintError records a failed open-generic instantiation. It is
// returned only by AddGenericArg, when T does not instantiate the open
// generic it is added to; the resolver never produces it (a requested
// instantiation with no added variant simply falls through, spec.md
// §4.3.1).
type GenericConstraintError struct {
	Base     string
	TypeArgs []reflect.Type
	Cause    error
}

func (e *GenericConstraintError) Error() string {
	return fmt.Sprintf("ioc: open-generic %s%v violates constraints: %v", e.Base, e.TypeArgs, e.Cause)
}

func (e *GenericConstraintError) Unwrap() error {
	return errors.Join(ErrGenericConstraint, e.Cause)
}
