package ioc

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// Go's reflect package has no equivalent of a generic MakeGenericType: you
// cannot hand reflect a base generic type plus a slice of runtime type
// arguments and get back an instantiated type the way the source can. So
// open-generic expansion here is re-architected as an explicit table: a
// caller first declares the open-generic's identity prefix with
// RegisterOpenGeneric, then supplies one concrete instantiation at a time
// with AddGenericArg[T], each call providing the already-compiled Go
// generic type T (e.g. Repository[int]) along with how to build it. The
// detection step — does an unresolved identity's string look like an
// instantiation of a registered open generic — is grounded on the
// teacher's own runtime-generic detection in parameter.go/unmanaged.go,
// which recognizes Provider[T]/Unmanaged[T]/Qualified[T,Q] by inspecting
// reflect.Type.String() for a matching prefix instead of using generics
// reflection that Go does not provide.
type OpenGeneric struct {
	prefix string

	mu       sync.RWMutex
	variants map[string]*ServiceRegistration
}

// genericPrefix derives the identity-string prefix an open generic's
// instantiations share, e.g. "y.Repository[" for y.Repository[int]
// (reflect.Type.String qualifies the type by package name, not import
// path). sample is any concrete instantiation, so this just trims the full
// type string down to and including the first "[".
func genericPrefix(sample reflect.Type) (string, error) {
	s := sample.String()
	idx := strings.Index(s, "[")
	if idx < 0 {
		return "", fmt.Errorf("ioc: %s is not a generic type", s)
	}
	return s[:idx+1], nil
}

// RegisterOpenGeneric declares an open generic by a sample instantiation —
// any concrete instantiation of the same generic type works as the sample,
// since only its prefix before "[" is used.
func RegisterOpenGeneric(sample reflect.Type) (*OpenGeneric, error) {
	prefix, err := genericPrefix(sample)
	if err != nil {
		return nil, err
	}
	return &OpenGeneric{prefix: prefix, variants: make(map[string]*ServiceRegistration)}, nil
}

// AddGenericArg registers the concrete registration to use when T is
// requested, where T is a full instantiation of the open generic (e.g.
// Repository[int]). It returns a GenericConstraintError if T's prefix does
// not match the open generic it is added to.
func AddGenericArg[T any](g *OpenGeneric, reg *ServiceRegistration) error {
	identity := IdentityOf[T]()
	prefix, err := genericPrefix(identity)
	if err != nil || prefix != g.prefix {
		return &GenericConstraintError{
			Base:     g.prefix,
			TypeArgs: []reflect.Type{identity},
			Cause:    fmt.Errorf("%s does not instantiate this open generic", identity),
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.variants[identity.String()] = reg
	return nil
}

// matches reports whether identity's string looks like an instantiation of
// this open generic.
func (g *OpenGeneric) matches(identity reflect.Type) bool {
	return strings.HasPrefix(identity.String(), g.prefix)
}

// lookup returns the registration for identity's exact instantiation, if
// one was added via AddGenericArg.
func (g *OpenGeneric) lookup(identity reflect.Type) (*ServiceRegistration, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	reg, ok := g.variants[identity.String()]
	return reg, ok
}

// openGenericSet is the registry-side collection of every declared open
// generic, consulted during the compiler's unknown-service fallthrough
// chain (spec.md §4.3.1, expansion order decided in SPEC_FULL.md §12.i:
// fallback rules first, then open-generic expansion, then unknown-service
// synthesis).
type openGenericSet struct {
	mu    sync.RWMutex
	items []*OpenGeneric
}

func newOpenGenericSet() *openGenericSet {
	return &openGenericSet{}
}

func (s *openGenericSet) add(g *OpenGeneric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, g)
}

func (s *openGenericSet) resolve(identity reflect.Type) (*ServiceRegistration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.items {
		if g.matches(identity) {
			if reg, ok := g.lookup(identity); ok {
				return reg, true
			}
		}
	}
	return nil, false
}
