package rules

import (
	"fmt"
	"math"
	"strings"

	"github.com/google/mangle/ast"
	"github.com/google/mangle/parse"
)

// Parse reads a rule set written in Mangle syntax:
//
//	path(X, Y) :- edge(X, Y).
//	path(X, Y) :- edge(X, Z), path(Z, Y).
//
// Declarations are ignored. Negation, comparisons, built-ins and transforms
// are rejected because the engine only evaluates positive conjunctive rules.
func Parse(name, src string) (*RuleSet, error) {
	unit, err := parse.Unit(strings.NewReader(src))
	if err != nil {
		return nil, &MalformedRuleError{RuleSet: name, Reason: fmt.Sprintf("parse: %v", err)}
	}

	rs := NewRuleSet(name)
	for _, mc := range unit.Clauses {
		c, err := fromMangleClause(name, mc)
		if err != nil {
			return nil, err
		}
		rs.AddClause(c)
	}
	return rs, nil
}

func fromMangleClause(ruleSet string, mc ast.Clause) (Clause, error) {
	text := mc.String()
	reject := func(format string, args ...any) error {
		return &MalformedRuleError{RuleSet: ruleSet, Clause: text, Reason: fmt.Sprintf(format, args...)}
	}

	if mc.Transform != nil {
		return Clause{}, reject("transforms are not supported")
	}

	head, err := FromMangleAtom(mc.Head)
	if err != nil {
		return Clause{}, reject("%v", err)
	}

	c := Clause{Head: head}
	for _, premise := range mc.Premises {
		switch t := premise.(type) {
		case ast.Atom:
			if strings.HasPrefix(t.Predicate.Symbol, ":") {
				return Clause{}, reject("built-in predicate %s is not supported", t.Predicate.Symbol)
			}
			lit, err := FromMangleAtom(t)
			if err != nil {
				return Clause{}, reject("%v", err)
			}
			c.Body = append(c.Body, lit)
		case ast.NegAtom:
			return Clause{}, reject("negation is not supported")
		default:
			return Clause{}, reject("only positive atoms are supported in rule bodies, got %v", premise)
		}
	}
	return c, nil
}

// FromMangleAtom converts a parsed Mangle atom into a literal.
func FromMangleAtom(a ast.Atom) (Literal, error) {
	lit := Literal{Predicate: a.Predicate.Symbol, Args: make([]Term, len(a.Args))}
	for i, arg := range a.Args {
		switch v := arg.(type) {
		case ast.Variable:
			lit.Args[i] = Var(v.Symbol)
		case ast.Constant:
			val, err := constantValue(v)
			if err != nil {
				return Literal{}, err
			}
			lit.Args[i] = Const(val)
		default:
			return Literal{}, fmt.Errorf("unsupported argument %v in %s", arg, a.Predicate.Symbol)
		}
	}
	return lit, nil
}

// constantValue maps Mangle constants onto atomic values. Name constants
// lose their leading slash so /alice matches the host string "alice".
func constantValue(c ast.Constant) (any, error) {
	switch c.Type {
	case ast.StringType:
		return c.Symbol, nil
	case ast.NameType:
		return strings.TrimPrefix(c.Symbol, "/"), nil
	case ast.NumberType:
		return c.NumValue, nil
	case ast.Float64Type:
		return math.Float64frombits(uint64(c.NumValue)), nil
	}
	return nil, fmt.Errorf("unsupported constant %v", c)
}
