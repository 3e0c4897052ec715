package scope

import (
	"errors"
	"fmt"

	"deduce/internal/logging"
	"deduce/internal/relation"
	"deduce/internal/rules"
)

// ErrUnresolvedReference matches every UnresolvedReferenceError.
var ErrUnresolvedReference = errors.New("unresolved reference")

// UnresolvedReferenceError reports a predicate name that is neither bound,
// derived, nor found in any frame, or whose frame value is not a relation.
type UnresolvedReferenceError struct {
	Name   string
	Clause string
	Reason string
	Err    error
}

func (e *UnresolvedReferenceError) Error() string {
	msg := fmt.Sprintf("unresolved reference %q", e.Name)
	if e.Clause != "" {
		msg += fmt.Sprintf(" in clause %q", e.Clause)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *UnresolvedReferenceError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUnresolvedReference}
	}
	return []error{ErrUnresolvedReference, e.Err}
}

// Binding is an explicit caller override for a predicate name.
type Binding struct {
	Name  string
	Value any
}

// Bind is shorthand for a Binding literal.
func Bind(name string, value any) Binding {
	return Binding{Name: name, Value: value}
}

// Source says how a name was resolved.
type Source int

const (
	SourceBinding Source = iota
	SourceDerived
	SourceFrame
	SourceNested
)

func (s Source) String() string {
	switch s {
	case SourceBinding:
		return "binding"
	case SourceDerived:
		return "derived"
	case SourceFrame:
		return "frame"
	case SourceNested:
		return "nested"
	}
	return "unknown"
}

// Resolved is the outcome for one name.
type Resolved struct {
	Name   string
	Source Source
	// Frame is set for SourceFrame and SourceNested.
	Frame Frame
	// Relation is set for SourceBinding and SourceFrame.
	Relation relation.Relation
	// Nested is the *rules.RuleSet or *rules.Program defining Name.
	Nested any
}

// IsBase reports whether the name denotes a concrete relation.
func (r Resolved) IsBase() bool {
	return r.Source == SourceBinding || r.Source == SourceFrame
}

// Resolution maps every predicate name of a program to its Resolved entry.
type Resolution struct {
	order  []string
	byName map[string]Resolved
}

// Lookup returns the entry for name.
func (r *Resolution) Lookup(name string) (Resolved, bool) {
	res, ok := r.byName[name]
	return res, ok
}

// Names returns resolved names in program order: heads, then free names.
func (r *Resolution) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Bases returns the concrete relation of every base name, including heads
// that were overridden by a binding.
func (r *Resolution) Bases() map[string]relation.Relation {
	out := make(map[string]relation.Relation)
	for _, name := range r.order {
		if res := r.byName[name]; res.IsBase() {
			out[name] = res.Relation
		}
	}
	return out
}

// Nested returns the names that refer to rule sets found in frames.
func (r *Resolution) Nested() []Resolved {
	var out []Resolved
	for _, name := range r.order {
		if res := r.byName[name]; res.Source == SourceNested {
			out = append(out, res)
		}
	}
	return out
}

// SetRelation replaces a nested entry with its evaluated relation.
func (r *Resolution) SetRelation(name string, rel relation.Relation) {
	res := r.byName[name]
	res.Relation = rel
	if res.Source == SourceNested {
		res.Source = SourceFrame
	}
	r.byName[name] = res
}

// Resolver applies the resolution order to names: explicit bindings, then
// (for programs) derived heads, then the environment's frames in order.
type Resolver struct {
	bindings map[string]any
	env      Environment
}

// NewResolver prepares a resolver. A later binding for the same name
// replaces an earlier one.
func NewResolver(bindings []Binding, env Environment) *Resolver {
	m := make(map[string]any, len(bindings))
	for _, b := range bindings {
		m[b.Name] = b.Value
	}
	return &Resolver{bindings: m, env: env}
}

// Environment returns the resolver's snapshot.
func (rv *Resolver) Environment() Environment { return rv.env }

// Bindings returns the effective bindings in no particular order.
func (rv *Resolver) Bindings() []Binding {
	out := make([]Binding, 0, len(rv.bindings))
	for name, v := range rv.bindings {
		out = append(out, Binding{Name: name, Value: v})
	}
	return out
}

// Resolve is NewResolver(bindings, env).Program(p).
func Resolve(p *rules.Program, bindings []Binding, env Environment) (*Resolution, error) {
	return NewResolver(bindings, env).Program(p)
}

// Program resolves every head and free name of p. A head with an explicit
// binding becomes a base predicate and its clauses are not evaluated.
func (rv *Resolver) Program(p *rules.Program) (*Resolution, error) {
	res := &Resolution{byName: make(map[string]Resolved)}

	for _, head := range p.Derived() {
		arity, _ := p.Arity(head)
		clause := ""
		if cs := p.ClausesFor(head); len(cs) > 0 {
			clause = cs[0].String()
		}
		r, ok, err := rv.fromBinding(head, clause)
		if err != nil {
			return nil, err
		}
		if !ok {
			r = Resolved{Name: head, Source: SourceDerived}
		} else if err := checkArity(p.Name(), clause, head, arity, r.Relation); err != nil {
			return nil, err
		}
		logging.ResolveDebug("%s: %s resolved as %s", p.Name(), head, r.Source)
		res.add(r)
	}

	for _, name := range p.Free() {
		arity, _ := p.Arity(name)
		clause := ""
		if c, ok := p.FirstUse(name); ok {
			clause = c.String()
		}
		r, err := rv.resolveFree(name, clause)
		if err != nil {
			return nil, err
		}
		if r.IsBase() {
			if err := checkArity(p.Name(), clause, name, arity, r.Relation); err != nil {
				return nil, err
			}
		}
		if r.Source == SourceFrame || r.Source == SourceNested {
			logging.ResolveDebug("%s: %s resolved from %s frame %s", p.Name(), name, r.Frame.Kind, r.Frame.Name)
		} else {
			logging.ResolveDebug("%s: %s resolved as %s", p.Name(), name, r.Source)
		}
		res.add(r)
	}
	return res, nil
}

// Name resolves a single name outside any rule set, as for a query naming a
// base predicate.
func (rv *Resolver) Name(name string) (Resolved, error) {
	return rv.resolveFree(name, "")
}

func (rv *Resolver) resolveFree(name, clause string) (Resolved, error) {
	if r, ok, err := rv.fromBinding(name, clause); err != nil || ok {
		return r, err
	}

	v, frame, ok := rv.env.Lookup(name)
	if !ok {
		return Resolved{}, &UnresolvedReferenceError{Name: name, Clause: clause, Reason: "not bound, not derived, and not found in any scope"}
	}
	if nested, ok := nestedDefinition(v, name); ok {
		return Resolved{Name: name, Source: SourceNested, Frame: frame, Nested: nested}, nil
	}
	rel, err := relation.FromHost(v)
	if err != nil {
		return Resolved{}, &UnresolvedReferenceError{
			Name:   name,
			Clause: clause,
			Reason: fmt.Sprintf("%s frame %s holds %T", frame.Kind, frame.Name, v),
			Err:    err,
		}
	}
	return Resolved{Name: name, Source: SourceFrame, Frame: frame, Relation: rel}, nil
}

func (rv *Resolver) fromBinding(name, clause string) (Resolved, bool, error) {
	v, ok := rv.bindings[name]
	if !ok {
		return Resolved{}, false, nil
	}
	rel, err := relation.FromHost(v)
	if err != nil {
		return Resolved{}, false, &UnresolvedReferenceError{
			Name:   name,
			Clause: clause,
			Reason: fmt.Sprintf("binding holds %T", v),
			Err:    err,
		}
	}
	return Resolved{Name: name, Source: SourceBinding, Relation: rel}, true, nil
}

func (r *Resolution) add(res Resolved) {
	if _, ok := r.byName[res.Name]; !ok {
		r.order = append(r.order, res.Name)
	}
	r.byName[res.Name] = res
}

// nestedDefinition reports whether v is a rule set that derives name.
func nestedDefinition(v any, name string) (any, bool) {
	switch rs := v.(type) {
	case *rules.RuleSet:
		if rs != nil && rs.Defines(name) {
			return rs, true
		}
	case *rules.Program:
		if rs != nil && rs.IsDerived(name) {
			return rs, true
		}
	}
	return nil, false
}

func checkArity(ruleSet, clause, name string, want int, rel relation.Relation) error {
	if relation.CompatibleArity(want, rel.Arity()) {
		return nil
	}
	return &rules.MalformedRuleError{
		RuleSet: ruleSet,
		Clause:  clause,
		Reason:  fmt.Sprintf("%s is used with arity %d but resolves to a relation of arity %d", name, want, rel.Arity()),
	}
}
