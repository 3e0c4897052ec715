// Package rules declares and compiles rule sets: named groups of
// Horn clauses of the form head(args) :- literal, literal, ...
//
// Rule sets can be written with the Go DSL, which mirrors the
// "head(args), if_(literals...)" declaration style:
//
//	trans := rules.NewRuleSet("trans_rules").
//		Add(rules.Atom("path", "x", "y"), rules.If(rules.Atom("edge", "x", "y"))).
//		Add(rules.Atom("path", "x", "y"), rules.If(rules.Atom("edge", "x", "z"), rules.Atom("path", "z", "y")))
//
// or parsed from Mangle-syntax text with Parse.
package rules

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"strings"

	"deduce/internal/relation"
)

// WildcardName is the anonymous variable.
const WildcardName = "_"

// Term is a literal argument: a variable, the wildcard, or a constant.
// Constants are only accepted in query patterns, never in clauses.
type Term struct {
	Var   string
	Value any
	Const bool
}

// Var returns a variable term.
func Var(name string) Term { return Term{Var: name} }

// Const returns a constant term.
func Const(v any) Term { return Term{Value: v, Const: true} }

// Wildcard matches anything and binds nothing.
var Wildcard = Var(WildcardName)

// IsWildcard reports whether t is the anonymous variable.
func (t Term) IsWildcard() bool { return !t.Const && t.Var == WildcardName }

func (t Term) String() string {
	if t.Const {
		if v, err := relation.Normalize(t.Value); err == nil {
			return relation.FormatValue(v)
		}
		return fmt.Sprintf("%v", t.Value)
	}
	return t.Var
}

// Literal is pred(t1, ..., tk).
type Literal struct {
	Predicate string
	Args      []Term
}

// Atom builds a literal. String arguments name variables ("_" is the
// wildcard); Term arguments are used as given; anything else is a constant.
func Atom(predicate string, args ...any) Literal {
	terms := make([]Term, len(args))
	for i, a := range args {
		switch x := a.(type) {
		case Term:
			terms[i] = x
		case string:
			terms[i] = Var(x)
		default:
			terms[i] = Const(x)
		}
	}
	return Literal{Predicate: predicate, Args: terms}
}

// Arity returns the number of arguments.
func (l Literal) Arity() int { return len(l.Args) }

func (l Literal) String() string {
	parts := make([]string, len(l.Args))
	for i, a := range l.Args {
		parts[i] = a.String()
	}
	return l.Predicate + "(" + strings.Join(parts, ", ") + ")"
}

// If groups body literals; it reads like the if_ of a declaration.
func If(body ...Literal) []Literal { return body }

// Clause is one way of deriving head tuples.
type Clause struct {
	Head Literal
	Body []Literal
}

func (c Clause) String() string {
	if len(c.Body) == 0 {
		return c.Head.String() + "."
	}
	parts := make([]string, len(c.Body))
	for i, l := range c.Body {
		parts[i] = l.String()
	}
	return c.Head.String() + " :- " + strings.Join(parts, ", ") + "."
}

// RuleSet is a named, ordered collection of clauses. Clauses sharing a head
// predicate are alternative derivations of it.
type RuleSet struct {
	Name    string
	clauses []Clause
}

// NewRuleSet returns an empty rule set.
func NewRuleSet(name string) *RuleSet {
	return &RuleSet{Name: name}
}

// Add appends head :- body and returns the rule set for chaining.
func (rs *RuleSet) Add(head Literal, body []Literal) *RuleSet {
	rs.clauses = append(rs.clauses, Clause{Head: head, Body: body})
	return rs
}

// AddClause appends an already-built clause.
func (rs *RuleSet) AddClause(c Clause) *RuleSet {
	rs.clauses = append(rs.clauses, c)
	return rs
}

// Clauses returns the clauses in declaration order.
func (rs *RuleSet) Clauses() []Clause {
	out := make([]Clause, len(rs.clauses))
	copy(out, rs.clauses)
	return out
}

// Defines reports whether name is the head of some clause.
func (rs *RuleSet) Defines(name string) bool {
	for _, c := range rs.clauses {
		if c.Head.Predicate == name {
			return true
		}
	}
	return false
}

// Fingerprint identifies the rule set's name and clause structure. Every
// name is length-prefixed and every literal carries its arity, so distinct
// rule sets never hash the same input.
func (rs *RuleSet) Fingerprint() string {
	h := fnv.New64a()
	var buf []byte
	buf = appendField(buf, 'n', rs.Name)
	buf = binary.AppendUvarint(buf, uint64(len(rs.clauses)))
	for _, c := range rs.clauses {
		buf = binary.AppendUvarint(buf, uint64(len(c.Body)))
		buf = appendLiteral(buf, c.Head)
		for _, l := range c.Body {
			buf = appendLiteral(buf, l)
		}
	}
	_, _ = h.Write(buf)
	return fmt.Sprintf("%s#%016x", rs.Name, h.Sum64())
}

func appendField(buf []byte, tag byte, s string) []byte {
	buf = append(buf, tag)
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func appendLiteral(buf []byte, l Literal) []byte {
	buf = appendField(buf, 'p', l.Predicate)
	buf = binary.AppendUvarint(buf, uint64(len(l.Args)))
	for _, a := range l.Args {
		if !a.Const {
			buf = appendField(buf, 'v', a.Var)
			continue
		}
		if v, err := relation.Normalize(a.Value); err == nil {
			buf = appendField(buf, 'k', relation.Key(v))
		} else {
			buf = appendField(buf, '?', fmt.Sprintf("%T:%v", a.Value, a.Value))
		}
	}
	return buf
}

func (rs *RuleSet) String() string {
	var sb strings.Builder
	for _, c := range rs.clauses {
		sb.WriteString(c.String())
		sb.WriteString("\n")
	}
	return sb.String()
}
