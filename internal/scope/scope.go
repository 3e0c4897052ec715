// Package scope decides what concrete relation each free predicate name in a
// rule set denotes at the moment it is evaluated.
//
// The host captures an Environment snapshot at the infer call site: an
// ordered list of frames (call-site locals, the declaration site's lexical
// scopes, instance fields, module globals). Resolve consults explicit
// bindings first, then the rule set's own heads, then the frames in order.
package scope

// Kind classifies a lexical scope.
type Kind int

const (
	KindModule Kind = iota
	KindClass
	KindFunction
)

func (k Kind) String() string {
	switch k {
	case KindModule:
		return "module"
	case KindClass:
		return "class"
	case KindFunction:
		return "function"
	}
	return "unknown"
}

// Scope is a lexical naming context with an optional parent. Hosts build a
// tree of scopes mirroring their module / class / function nesting and hand
// the relevant nodes to Capture.
type Scope struct {
	kind   Kind
	name   string
	parent *Scope
	names  map[string]any
}

// NewModule returns a top-level scope.
func NewModule(name string) *Scope {
	return &Scope{kind: KindModule, name: name, names: make(map[string]any)}
}

// NewChild returns a scope nested in s.
func (s *Scope) NewChild(kind Kind, name string) *Scope {
	return &Scope{kind: kind, name: name, parent: s, names: make(map[string]any)}
}

// Define binds name in this scope, replacing any previous value.
func (s *Scope) Define(name string, value any) *Scope {
	s.names[name] = value
	return s
}

// Kind returns the scope kind.
func (s *Scope) Kind() Kind { return s.kind }

// Name returns the scope's diagnostic name.
func (s *Scope) Name() string { return s.name }

// FindLocal looks name up in this scope only.
func (s *Scope) FindLocal(name string) (any, bool) {
	v, ok := s.names[name]
	return v, ok
}

// Find looks name up in s and then its enclosing scopes. Class scopes are
// not consulted from nested scopes, matching Python name resolution: a
// method body does not see its class body's names.
func (s *Scope) Find(name string) (any, *Scope, bool) {
	for cur := s; cur != nil; cur = cur.Parent() {
		if v, ok := cur.names[name]; ok {
			return v, cur, true
		}
	}
	return nil, nil, false
}

// Parent returns the nearest enclosing scope that is not a class scope, or
// nil at the top level.
func (s *Scope) Parent() *Scope {
	p := s.parent
	for p != nil && p.kind == KindClass {
		p = p.parent
	}
	return p
}

// Module returns the outermost scope.
func (s *Scope) Module() *Scope {
	cur := s
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// snapshot copies the scope's bindings so later Define calls on the host
// side do not change a captured environment.
func (s *Scope) snapshot() map[string]any {
	out := make(map[string]any, len(s.names))
	for k, v := range s.names {
		out[k] = v
	}
	return out
}

func (s *Scope) path() string {
	if s.parent == nil {
		return s.name
	}
	return s.parent.path() + "." + s.name
}
