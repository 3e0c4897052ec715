package rules

import (
	"strings"
)

// Unbound marks a wildcard position in a compiled literal.
const Unbound = -1

// CompiledLiteral is a body literal with its variables replaced by
// per-clause slot numbers. Wildcards are Unbound.
type CompiledLiteral struct {
	Predicate string
	Slots     []int
}

// CompiledClause is a clause template: variables renumbered 0..NumVars-1 in
// order of first appearance in the body, so the evaluator can bind them in a
// flat slice while scanning literals left to right.
type CompiledClause struct {
	Index     int
	Head      string
	HeadSlots []int
	Body      []CompiledLiteral
	NumVars   int
	VarNames  []string
	Source    Clause
}

func (c CompiledClause) String() string { return c.Source.String() }

// Program is a compiled rule set. It is immutable and may be shared by any
// number of concurrent evaluations.
type Program struct {
	name        string
	fingerprint string
	clauses     []CompiledClause
	heads       []string
	byHead      map[string][]int
	arity       map[string]int
	free        []string
	firstUse    map[string]int
	deps        map[string][]string
}

// Compile validates and normalises a rule set.
//
// It fails with a MalformedRuleError when a clause has no body, a head uses
// the wildcard or a constant, a body uses a constant, a head variable does
// not occur in the body, or a predicate name is used with two different
// arities anywhere in the rule set. Because head variables are always bound
// by body tuples, derived tuples only ever contain constants drawn from the
// base relations, which keeps every fixpoint finite.
func Compile(rs *RuleSet) (*Program, error) {
	p := &Program{
		name:        rs.Name,
		fingerprint: rs.Fingerprint(),
		byHead:      make(map[string][]int),
		arity:       make(map[string]int),
		firstUse:    make(map[string]int),
		deps:        make(map[string][]string),
	}

	if len(rs.clauses) == 0 {
		return nil, malformed(rs.Name, nil, "rule set has no clauses")
	}

	for i := range rs.clauses {
		c := &rs.clauses[i]
		if err := p.checkArity(rs.Name, c, c.Head); err != nil {
			return nil, err
		}
		for _, lit := range c.Body {
			if err := p.checkArity(rs.Name, c, lit); err != nil {
				return nil, err
			}
		}
		if _, seen := p.byHead[c.Head.Predicate]; !seen {
			p.heads = append(p.heads, c.Head.Predicate)
		}
		p.byHead[c.Head.Predicate] = append(p.byHead[c.Head.Predicate], i)
	}

	for i := range rs.clauses {
		cc, err := compileClause(rs.Name, i, &rs.clauses[i])
		if err != nil {
			return nil, err
		}
		p.clauses = append(p.clauses, cc)

		for _, lit := range cc.Body {
			if _, derived := p.byHead[lit.Predicate]; derived {
				p.addDep(cc.Head, lit.Predicate)
				continue
			}
			if _, seen := p.firstUse[lit.Predicate]; !seen {
				p.firstUse[lit.Predicate] = i
				p.free = append(p.free, lit.Predicate)
			}
		}
	}
	return p, nil
}

// MustCompile is Compile for rule sets known to be well formed.
func MustCompile(rs *RuleSet) *Program {
	p, err := Compile(rs)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Program) checkArity(ruleSet string, c *Clause, lit Literal) error {
	if strings.TrimSpace(lit.Predicate) == "" {
		return malformed(ruleSet, c, "literal has an empty predicate name")
	}
	if prev, ok := p.arity[lit.Predicate]; ok && prev != lit.Arity() {
		return malformed(ruleSet, c, "predicate %s used with arity %d, previously %d", lit.Predicate, lit.Arity(), prev)
	}
	p.arity[lit.Predicate] = lit.Arity()
	return nil
}

func (p *Program) addDep(head, body string) {
	for _, d := range p.deps[head] {
		if d == body {
			return
		}
	}
	p.deps[head] = append(p.deps[head], body)
}

func compileClause(ruleSet string, index int, c *Clause) (CompiledClause, error) {
	if len(c.Body) == 0 {
		return CompiledClause{}, malformed(ruleSet, c, "clause has an empty body")
	}

	slots := make(map[string]int)
	cc := CompiledClause{Index: index, Head: c.Head.Predicate, Source: *c}

	for _, lit := range c.Body {
		cl := CompiledLiteral{Predicate: lit.Predicate, Slots: make([]int, len(lit.Args))}
		for j, arg := range lit.Args {
			switch {
			case arg.Const:
				return CompiledClause{}, malformed(ruleSet, c, "constant %s in body literal %s; clauses only take variables", arg, lit)
			case arg.IsWildcard():
				cl.Slots[j] = Unbound
			case arg.Var == "":
				return CompiledClause{}, malformed(ruleSet, c, "empty variable name in %s", lit)
			default:
				slot, ok := slots[arg.Var]
				if !ok {
					slot = len(cc.VarNames)
					slots[arg.Var] = slot
					cc.VarNames = append(cc.VarNames, arg.Var)
				}
				cl.Slots[j] = slot
			}
		}
		cc.Body = append(cc.Body, cl)
	}

	cc.HeadSlots = make([]int, len(c.Head.Args))
	for j, arg := range c.Head.Args {
		switch {
		case arg.Const:
			return CompiledClause{}, malformed(ruleSet, c, "constant %s in head; derived tuples may only hold values from base relations", arg)
		case arg.IsWildcard():
			return CompiledClause{}, malformed(ruleSet, c, "wildcard in head position %d", j)
		}
		slot, ok := slots[arg.Var]
		if !ok {
			return CompiledClause{}, malformed(ruleSet, c, "head variable %s does not appear in the body", arg.Var)
		}
		cc.HeadSlots[j] = slot
	}
	cc.NumVars = len(cc.VarNames)
	return cc, nil
}

// Name returns the rule set name.
func (p *Program) Name() string { return p.name }

// Fingerprint identifies the source rule set's text.
func (p *Program) Fingerprint() string { return p.fingerprint }

// Clauses returns every compiled clause in declaration order.
func (p *Program) Clauses() []CompiledClause { return p.clauses }

// Clause returns the clause with the given index.
func (p *Program) Clause(i int) CompiledClause { return p.clauses[i] }

// Derived returns the head predicates in order of first declaration.
func (p *Program) Derived() []string {
	out := make([]string, len(p.heads))
	copy(out, p.heads)
	return out
}

// IsDerived reports whether name is the head of some clause.
func (p *Program) IsDerived(name string) bool {
	_, ok := p.byHead[name]
	return ok
}

// ClausesFor returns the clauses whose head is name.
func (p *Program) ClausesFor(name string) []CompiledClause {
	idx := p.byHead[name]
	out := make([]CompiledClause, len(idx))
	for i, j := range idx {
		out[i] = p.clauses[j]
	}
	return out
}

// Arity returns the arity name is used with in the rule set.
func (p *Program) Arity(name string) (int, bool) {
	a, ok := p.arity[name]
	return a, ok
}

// Free returns the body predicate names that no clause defines, in order of
// first use. These must be resolved outside the rule set.
func (p *Program) Free() []string {
	out := make([]string, len(p.free))
	copy(out, p.free)
	return out
}

// FirstUse returns the first clause referencing the free name.
func (p *Program) FirstUse(name string) (CompiledClause, bool) {
	i, ok := p.firstUse[name]
	if !ok {
		return CompiledClause{}, false
	}
	return p.clauses[i], true
}

// DependsOn returns the derived predicates referenced by the bodies of name's clauses.
func (p *Program) DependsOn(name string) []string {
	return p.deps[name]
}
