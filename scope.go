package ioc

import (
	"context"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Disposable is implemented by instances that need to release resources
// when their owning scope or container goes away (spec.md §3, §5).
type Disposable interface {
	Dispose() error
}

// Scope is a nestable lifetime boundary: it owns the disposables created
// during its lifetime and, once ended, disposes them in reverse insertion
// order (spec.md §3 "Scope", §4.5).
type Scope struct {
	id      string
	parent  *Scope
	manager ScopeManager

	mu       sync.Mutex
	child    *Scope
	disposed bool
	// disposing guards against the re-entrance hazard spec.md §9.iii flags
	// as undefined in the source: this implementation forbids re-entrance —
	// a disposable that tries to track a new instance while the scope is
	// disposing observes InvalidScope instead of corrupting the dispose
	// list (see DESIGN.md, Open Question iii).
	disposing   bool
	disposables []Disposable
	scopedCache map[*PerScope]scopedEntry
}

type scopedEntry struct {
	value any
	err   error
}

// ID returns a stable, printable identity for this scope, handy in
// diagnostics and InvalidScope error messages.
func (s *Scope) ID() string { return s.id }

// Parent returns the scope this one was nested under, or nil for a root
// scope.
func (s *Scope) Parent() *Scope { return s.parent }

func newScope(parent *Scope, manager ScopeManager) *Scope {
	return &Scope{
		id:          uuid.NewString(),
		parent:      parent,
		manager:     manager,
		scopedCache: make(map[*PerScope]scopedEntry),
	}
}

// trackInstance registers a disposable as owned by this scope. Tracking on
// a disposed or disposing scope fails (spec.md §4.5 "Disposal of a scope is
// idempotent; a disposed scope's track_instance calls fail").
func (s *Scope) trackInstance(d Disposable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || s.disposing {
		return &InvalidScopeError{Reason: "cannot track a disposable in a disposed scope"}
	}
	s.disposables = append(s.disposables, d)
	return nil
}

// getOrCreate implements the PerScope lifetime's cache: the first call for a
// given lifetime key in this scope computes and stores the instance and, if
// disposable, appends it to the dispose list; subsequent calls reuse it
// (spec.md §4.4 "PerScope").
func (s *Scope) getOrCreate(key *PerScope, create func() (any, error)) (any, error) {
	s.mu.Lock()
	if entry, ok := s.scopedCache[key]; ok {
		s.mu.Unlock()
		return entry.value, entry.err
	}
	if s.disposed || s.disposing {
		s.mu.Unlock()
		return nil, &InvalidScopeError{Reason: "cannot create a per-scope instance in a disposed scope"}
	}
	s.mu.Unlock()

	value, err := create()

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another goroutine may have raced us in between; the first writer wins
	// so the quantified invariant ("resolve within s returns the same
	// reference") holds under concurrent resolves of the same key.
	if entry, ok := s.scopedCache[key]; ok {
		return entry.value, entry.err
	}
	s.scopedCache[key] = scopedEntry{value: value, err: err}
	if err == nil {
		if d, ok := value.(Disposable); ok {
			s.disposables = append(s.disposables, d)
		}
	}
	return value, err
}

// end disposes every owned disposable in reverse insertion order and
// detaches this scope from its parent (spec.md §4.5). It is idempotent.
func (s *Scope) end() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	if s.disposing {
		s.mu.Unlock()
		return &InvalidScopeError{Reason: "cannot end a scope while it is being disposed"}
	}
	if s.child != nil {
		s.mu.Unlock()
		return &InvalidScopeError{Reason: "cannot end a scope with a live child scope"}
	}
	s.disposing = true
	disposables := s.disposables
	s.mu.Unlock()

	var firstErr error
	for i := len(disposables) - 1; i >= 0; i-- {
		if err := disposables[i].Dispose(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.mu.Lock()
	s.disposing = false
	s.disposed = true
	s.mu.Unlock()

	if s.parent != nil {
		s.parent.mu.Lock()
		if s.parent.child == s {
			s.parent.child = nil
		}
		s.parent.mu.Unlock()
	}
	return firstErr
}

// ScopeManager owns a tree of nested scopes and the storage that answers
// "what is the current scope" (spec.md §4.5). Two implementations are
// provided below: a per-goroutine manager (the default) and a per-context
// ("async-flow") manager for call trees that explicitly thread a
// context.Context.
type ScopeManager interface {
	Current() *Scope
	Begin() (*Scope, error)
	End(*Scope) error
}

// ScopeManagerProvider is a lazy, single-instance factory of ScopeManager —
// a container owns exactly one (spec.md §4.5).
type ScopeManagerProvider func() ScopeManager

func singleInstanceProvider(factory func() ScopeManager) ScopeManagerProvider {
	var once sync.Once
	var instance ScopeManager
	return func() ScopeManager {
		once.Do(func() { instance = factory() })
		return instance
	}
}

// goroutineScopeManager stores the current scope keyed by goroutine ID,
// grounded on centraunit-digo's goroutine.go technique of parsing the
// goroutine ID out of runtime.Stack, here used to key a plain map of
// per-goroutine "current scope" pointers instead of a resolution chain.
type goroutineScopeManager struct {
	mu      sync.Mutex
	current map[int64]*Scope
}

func newGoroutineScopeManager() ScopeManager {
	return &goroutineScopeManager{current: make(map[int64]*Scope)}
}

func currentGoroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	field := strings.Fields(strings.TrimPrefix(string(buf[:n]), "goroutine "))[0]
	id, _ := strconv.ParseInt(field, 10, 64)
	return id
}

func (m *goroutineScopeManager) Current() *Scope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current[currentGoroutineID()]
}

func (m *goroutineScopeManager) Begin() (*Scope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gid := currentGoroutineID()
	parent := m.current[gid]
	if parent != nil && parent.child != nil {
		return nil, &InvalidScopeError{Reason: "current scope already has a live child scope"}
	}
	s := newScope(parent, m)
	if parent != nil {
		parent.child = s
	}
	m.current[gid] = s
	return s, nil
}

func (m *goroutineScopeManager) End(s *Scope) error {
	m.mu.Lock()
	gid := currentGoroutineID()
	if m.current[gid] != s {
		m.mu.Unlock()
		return &InvalidScopeError{Reason: "ending a scope that is not the current scope"}
	}
	m.mu.Unlock()

	if err := s.end(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s.parent != nil {
		m.current[gid] = s.parent
	} else {
		delete(m.current, gid)
	}
	return nil
}

// contextScopeManager flows the current scope through context.Context
// values, the way go-path-di's container threads state through
// context.Context across a resolve call tree, and the way centraunit-digo's
// ContainerContext carries request-scoped values. It satisfies the
// ScopeManager interface via an ambient fallback scope for code that never
// threads a context explicitly, and exposes BeginWithContext /
// CurrentFromContext / EndWithContext for callers that do — that pair is the
// real "async-flow" API. Per spec.md §9's design note that a thread-only
// implementation should expose only the per-thread variant, a caller that
// never touches context here only ever observes the ambient scope.
type contextScopeManager struct {
	mu      sync.Mutex
	ambient *Scope
}

type scopeContextKey struct{}

// NewContextScopeManager builds the per-async-flow ScopeManager spec.md
// §4.5 requires as the second of the "two concrete managers". Pass it to
// WithScopeManagerProvider to select it for a container:
//
//	mgr := ioc.NewContextScopeManager()
//	c := ioc.NewContainer(ioc.WithScopeManagerProvider(func() ioc.ScopeManager { return mgr }))
func NewContextScopeManager() ScopeManager {
	return &contextScopeManager{}
}

func (m *contextScopeManager) Current() *Scope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ambient
}

func (m *contextScopeManager) Begin() (*Scope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ambient != nil && m.ambient.child != nil {
		return nil, &InvalidScopeError{Reason: "current scope already has a live child scope"}
	}
	s := newScope(m.ambient, m)
	if m.ambient != nil {
		m.ambient.child = s
	}
	m.ambient = s
	return s, nil
}

func (m *contextScopeManager) End(s *Scope) error {
	m.mu.Lock()
	if m.ambient != s {
		m.mu.Unlock()
		return &InvalidScopeError{Reason: "ending a scope that is not the current scope"}
	}
	m.mu.Unlock()

	if err := s.end(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ambient = s.parent
	return nil
}

// CurrentFromContext returns the scope flowed through ctx, if any.
func (m *contextScopeManager) CurrentFromContext(ctx context.Context) *Scope {
	if ctx == nil {
		return nil
	}
	if s, ok := ctx.Value(scopeContextKey{}).(*Scope); ok {
		return s
	}
	return nil
}

// BeginWithContext creates a child of the scope flowed through ctx (or of
// the ambient scope if ctx carries none) and returns a context that flows
// the new scope to further async continuations.
func (m *contextScopeManager) BeginWithContext(ctx context.Context) (*Scope, context.Context, error) {
	parent := m.CurrentFromContext(ctx)
	if parent == nil {
		parent = m.Current()
	}
	if parent != nil {
		parent.mu.Lock()
		hasChild := parent.child != nil
		parent.mu.Unlock()
		if hasChild {
			return nil, ctx, &InvalidScopeError{Reason: "current scope already has a live child scope"}
		}
	}
	s := newScope(parent, m)
	if parent != nil {
		parent.mu.Lock()
		parent.child = s
		parent.mu.Unlock()
	}
	return s, context.WithValue(ctx, scopeContextKey{}, s), nil
}

// EndWithContext ends a scope previously created via BeginWithContext.
func (m *contextScopeManager) EndWithContext(s *Scope) error {
	return s.end()
}
