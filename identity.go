package ioc

import (
	"reflect"
	"strings"
)

// ServiceIdentity is the type token a caller asks for. It is always the
// reflect.Type of the abstract (interface or concrete) service, never a
// pointer-wrapped surrogate — Go's reflect.Type is already a stable,
// comparable identity for a type.
type ServiceIdentity = reflect.Type

// ServiceName is a case-insensitive tag distinguishing multiple
// registrations of the same ServiceIdentity. The empty name denotes the
// default (unnamed) registration.
type ServiceName string

// Normalize returns the canonical form used for map keys and comparisons.
func (n ServiceName) Normalize() ServiceName {
	return ServiceName(strings.ToLower(strings.TrimSpace(string(n))))
}

// IsDefault reports whether this is the empty/default service name.
func (n ServiceName) IsDefault() bool {
	return n.Normalize() == ""
}

// DependencyKey uniquely identifies a registration slot within the Registry:
// (service identity, service name).
type DependencyKey struct {
	Identity ServiceIdentity
	Name     ServiceName
}

func newKey(identity ServiceIdentity, name ServiceName) DependencyKey {
	return DependencyKey{Identity: identity, Name: name.Normalize()}
}

// IdentityOf returns the ServiceIdentity for T, following the same
// `reflect.TypeOf((*T)(nil)).Elem()` idiom the teacher uses for its
// generic Get/Key helpers.
func IdentityOf[T any]() ServiceIdentity {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func isErrorType(t reflect.Type) bool {
	return t != nil && t.Implements(errorType)
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()
