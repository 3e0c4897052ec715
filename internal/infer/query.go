package infer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/mangle/parse"

	"deduce/internal/relation"
	"deduce/internal/rules"
)

// ErrInvalidQuery is returned for queries that cannot be parsed or whose
// pattern does not fit the queried relation.
var ErrInvalidQuery = errors.New("invalid query")

// Query names a predicate to return. With Args set it is a pattern: only
// tuples equal to every constant argument are returned, and positions holding
// the same variable must hold equal values.
type Query struct {
	Predicate string
	Args      []rules.Term
}

// Name queries a whole predicate.
func Name(predicate string) Query {
	return Query{Predicate: predicate}
}

// Pattern builds a pattern query. rules.Term arguments are used as is;
// every other argument is a constant.
func Pattern(predicate string, args ...any) Query {
	q := Query{Predicate: predicate, Args: make([]rules.Term, len(args))}
	for i, a := range args {
		if t, ok := a.(rules.Term); ok {
			q.Args[i] = t
			continue
		}
		q.Args[i] = rules.Const(a)
	}
	return q
}

// Names converts predicate names to queries.
func Names(predicates ...string) []Query {
	out := make([]Query, len(predicates))
	for i, p := range predicates {
		out[i] = Name(p)
	}
	return out
}

// ParseQuery accepts a bare predicate name or a Mangle atom such as
// "path(1, _)" or "?role(X, /admin).".
func ParseQuery(query string) (Query, error) {
	clean := strings.TrimSpace(query)
	if clean == "" {
		return Query{}, fmt.Errorf("%w: empty query", ErrInvalidQuery)
	}
	clean = strings.TrimSpace(strings.TrimPrefix(clean, "?"))
	clean = strings.TrimSpace(strings.TrimSuffix(clean, "."))

	if !strings.Contains(clean, "(") {
		return Name(clean), nil
	}

	atom, err := parse.Atom(clean)
	if err != nil {
		if atom, err = parse.Atom(clean + "."); err != nil {
			return Query{}, fmt.Errorf("%w: failed to parse %q: %v", ErrInvalidQuery, query, err)
		}
	}
	lit, err := rules.FromMangleAtom(atom)
	if err != nil {
		return Query{}, fmt.Errorf("%w: %q: %v", ErrInvalidQuery, query, err)
	}
	return Query{Predicate: lit.Predicate, Args: lit.Args}, nil
}

// IsPattern reports whether q restricts the predicate's tuples.
func (q Query) IsPattern() bool { return q.Args != nil }

func (q Query) String() string {
	if !q.IsPattern() {
		return q.Predicate
	}
	return rules.Literal{Predicate: q.Predicate, Args: q.Args}.String()
}

// apply returns the tuples of rel matching q.
func (q Query) apply(rel relation.Relation) (relation.Relation, error) {
	if !q.IsPattern() {
		return rel, nil
	}
	if !relation.CompatibleArity(len(q.Args), rel.Arity()) {
		return relation.Relation{}, fmt.Errorf("%w: %s has %d arguments, %s has arity %d",
			ErrInvalidQuery, q, len(q.Args), q.Predicate, rel.Arity())
	}

	var cols []int
	var vals []relation.Value
	firstVar := make(map[string]int)
	type pair struct{ pos, first int }
	var same []pair
	for i, a := range q.Args {
		switch {
		case a.Const:
			v, err := relation.Normalize(a.Value)
			if err != nil {
				return relation.Relation{}, fmt.Errorf("%w: %s: %v", ErrInvalidQuery, q, err)
			}
			cols = append(cols, i)
			vals = append(vals, v)
		case a.IsWildcard():
		default:
			if first, ok := firstVar[a.Var]; ok {
				same = append(same, pair{pos: i, first: first})
			} else {
				firstVar[a.Var] = i
			}
		}
	}

	out := rel.Restrict(cols, vals)
	if len(same) == 0 {
		return out, nil
	}
	b := relation.NewBuilder(out.Arity())
	out.Each(func(t relation.Tuple) bool {
		for _, s := range same {
			if relation.CompareValues(t.At(s.pos), t.At(s.first)) != 0 {
				return true
			}
		}
		_, _ = b.Add(t)
		return true
	})
	return b.Freeze(), nil
}
