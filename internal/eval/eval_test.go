package eval

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deduce/internal/relation"
	"deduce/internal/rules"
)

func transClosure() *rules.Program {
	return rules.MustCompile(rules.NewRuleSet("trans_rules").
		Add(rules.Atom("path", "x", "y"), rules.If(rules.Atom("edge", "x", "y"))).
		Add(rules.Atom("path", "x", "y"), rules.If(rules.Atom("edge", "x", "z"), rules.Atom("path", "z", "y"))))
}

func rows(r relation.Relation) [][]any {
	var out [][]any
	r.Each(func(t relation.Tuple) bool {
		out = append(out, t.Values())
		return true
	})
	return out
}

func modes() map[string]Options {
	semi := DefaultOptions()
	naive := DefaultOptions()
	naive.SemiNaive = false
	return map[string]Options{"semi-naive": semi, "naive": naive}
}

func TestTransitiveClosure(t *testing.T) {
	edge := relation.MustRows([]any{1, 2}, []any{2, 3})
	for name, opts := range modes() {
		t.Run(name, func(t *testing.T) {
			res, err := Evaluate(context.Background(), transClosure(), map[string]relation.Relation{"edge": edge}, []string{"path"}, opts)
			require.NoError(t, err)

			want := [][]any{{int64(1), int64(2)}, {int64(1), int64(3)}, {int64(2), int64(3)}}
			if diff := cmp.Diff(want, rows(res.Relations["path"])); diff != "" {
				t.Fatalf("path mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCycleTerminates(t *testing.T) {
	edge := relation.MustRows([]any{"a", "b"}, []any{"b", "c"}, []any{"c", "a"})
	res, err := Evaluate(context.Background(), transClosure(), map[string]relation.Relation{"edge": edge}, nil, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 9, res.Relations["path"].Len())
}

func randomEdges(seed int64, nodes, n int) relation.Relation {
	r := rand.New(rand.NewSource(seed))
	var rs [][]any
	for i := 0; i < n; i++ {
		rs = append(rs, []any{r.Intn(nodes), r.Intn(nodes)})
	}
	return relation.MustRows(rs...)
}

func TestNaiveMatchesSemiNaive(t *testing.T) {
	// Mutually recursive: odd/even length walks, plus a dependent stratum.
	p := rules.MustCompile(rules.NewRuleSet("parity").
		Add(rules.Atom("odd", "x", "y"), rules.If(rules.Atom("edge", "x", "y"))).
		Add(rules.Atom("odd", "x", "y"), rules.If(rules.Atom("edge", "x", "z"), rules.Atom("even", "z", "y"))).
		Add(rules.Atom("even", "x", "y"), rules.If(rules.Atom("edge", "x", "z"), rules.Atom("odd", "z", "y"))).
		Add(rules.Atom("loop", "x"), rules.If(rules.Atom("odd", "x", "x"))))

	for seed := int64(1); seed <= 5; seed++ {
		base := map[string]relation.Relation{"edge": randomEdges(seed, 12, 20)}
		opts := modes()
		semi, err := Evaluate(context.Background(), p, base, nil, opts["semi-naive"])
		require.NoError(t, err)
		naive, err := Evaluate(context.Background(), p, base, nil, opts["naive"])
		require.NoError(t, err)

		for _, name := range []string{"odd", "even", "loop"} {
			if diff := cmp.Diff(rows(naive.Relations[name]), rows(semi.Relations[name])); diff != "" {
				t.Fatalf("seed %d: %s differs (-naive +semi):\n%s", seed, name, diff)
			}
		}
	}
}

func TestIdempotent(t *testing.T) {
	base := map[string]relation.Relation{"edge": randomEdges(7, 10, 15)}
	first, err := Evaluate(context.Background(), transClosure(), base, nil, DefaultOptions())
	require.NoError(t, err)
	second, err := Evaluate(context.Background(), transClosure(), base, nil, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, first.Relations["path"].Equal(second.Relations["path"]))
}

func TestMonotonic(t *testing.T) {
	big := randomEdges(3, 10, 20)
	tuples := big.Tuples()
	small, err := relation.New(2, tuples[:len(tuples)/2]...)
	require.NoError(t, err)

	eval := func(edge relation.Relation) relation.Relation {
		res, err := Evaluate(context.Background(), transClosure(), map[string]relation.Relation{"edge": edge}, nil, DefaultOptions())
		require.NoError(t, err)
		return res.Relations["path"]
	}
	assert.True(t, eval(small).SubsetOf(eval(big)))
}

func TestEveryTupleIsJustified(t *testing.T) {
	p := transClosure()
	base := map[string]relation.Relation{"edge": randomEdges(11, 8, 14)}
	opts := DefaultOptions()
	opts.Trace = true

	res, err := Evaluate(context.Background(), p, base, nil, opts)
	require.NoError(t, err)
	path := res.Relations["path"]
	final := map[string]relation.Relation{"edge": base["edge"], "path": path}

	assert.Equal(t, path.Len(), res.Trace.Len())
	path.Each(func(tu relation.Tuple) bool {
		j, ok := res.Trace.Lookup("path", tu)
		require.True(t, ok, "no justification for %s", tu)
		c := p.Clause(j.Clause)
		require.Len(t, j.Body, len(c.Body))
		for i, lit := range c.Body {
			assert.True(t, final[lit.Predicate].Contains(j.Body[i]), "%s not in %s", j.Body[i], lit.Predicate)
		}
		// The head must be the projection of the body under the clause's variables.
		vals := make([]relation.Value, c.NumVars)
		for i, lit := range c.Body {
			for pos, slot := range lit.Slots {
				vals[slot] = j.Body[i].At(pos)
			}
		}
		assert.Equal(t, tu.Values(), []relation.Value{vals[c.HeadSlots[0]], vals[c.HeadSlots[1]]})
		return true
	})
}

func TestIterationCap(t *testing.T) {
	edge := relation.MustRows([]any{1, 2}, []any{2, 3}, []any{3, 4}, []any{4, 5})
	opts := DefaultOptions()
	opts.MaxIterations = 2

	res, err := Evaluate(context.Background(), transClosure(), map[string]relation.Relation{"edge": edge}, nil, opts)
	require.ErrorIs(t, err, ErrNonTerminating)
	assert.Nil(t, res)

	var nte *NonTerminatingError
	require.True(t, errors.As(err, &nte))
	assert.Equal(t, []string{"path"}, nte.Predicates)
	assert.Equal(t, 2, nte.Iterations)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Evaluate(ctx, transClosure(), map[string]relation.Relation{"edge": relation.MustRows([]any{1, 2})}, nil, DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOnlyReachableStrataEvaluated(t *testing.T) {
	p := rules.MustCompile(rules.NewRuleSet("two").
		Add(rules.Atom("a", "x"), rules.If(rules.Atom("base", "x"))).
		Add(rules.Atom("b", "x"), rules.If(rules.Atom("other", "x"))))

	res, err := Evaluate(context.Background(), p, map[string]relation.Relation{"base": relation.MustRows([]any{1})}, []string{"a"}, DefaultOptions())
	require.NoError(t, err)
	assert.Contains(t, res.Relations, "a")
	assert.NotContains(t, res.Relations, "b")
}

func TestBoundHeadIsBase(t *testing.T) {
	edge := relation.MustRows([]any{1, 2}, []any{2, 3})
	fixed := relation.MustRows([]any{9, 9})
	p := rules.MustCompile(rules.NewRuleSet("r").
		Add(rules.Atom("path", "x", "y"), rules.If(rules.Atom("edge", "x", "y"))).
		Add(rules.Atom("hop", "x", "y"), rules.If(rules.Atom("path", "x", "y"))))

	res, err := Evaluate(context.Background(), p, map[string]relation.Relation{"edge": edge, "path": fixed}, []string{"hop"}, DefaultOptions())
	require.NoError(t, err)
	assert.NotContains(t, res.Relations, "path")
	assert.True(t, fixed.Equal(res.Relations["hop"]))
}

func TestRepeatedVariablesAndWildcards(t *testing.T) {
	edge := relation.MustRows([]any{1, 1}, []any{1, 2}, []any{3, 3})
	p := rules.MustCompile(rules.NewRuleSet("shapes").
		Add(rules.Atom("self", "x"), rules.If(rules.Atom("edge", "x", "x"))).
		Add(rules.Atom("source", "x"), rules.If(rules.Atom("edge", "x", rules.Wildcard))))

	res, err := Evaluate(context.Background(), p, map[string]relation.Relation{"edge": edge}, nil, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, [][]any{{int64(1)}, {int64(3)}}, rows(res.Relations["self"]))
	assert.Equal(t, [][]any{{int64(1)}, {int64(3)}}, rows(res.Relations["source"]))
}

func TestTriangleJoin(t *testing.T) {
	edge := relation.MustRows([]any{1, 2}, []any{2, 3}, []any{3, 1}, []any{3, 4})
	p := rules.MustCompile(rules.NewRuleSet("tri").
		Add(rules.Atom("tri", "a", "b", "c"), rules.If(
			rules.Atom("edge", "a", "b"), rules.Atom("edge", "b", "c"), rules.Atom("edge", "c", "a"))))

	res, err := Evaluate(context.Background(), p, map[string]relation.Relation{"edge": edge}, nil, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Relations["tri"].Len())
	assert.True(t, res.Relations["tri"].ContainsValues(1, 2, 3))
	assert.False(t, res.Relations["tri"].ContainsValues(3, 4, 1))
}

func TestEmptyBase(t *testing.T) {
	res, err := Evaluate(context.Background(), transClosure(), map[string]relation.Relation{"edge": {}}, nil, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, res.Relations["path"].IsEmpty())
	assert.Equal(t, 2, res.Relations["path"].Arity())
}

func TestStratifyOrder(t *testing.T) {
	p := rules.MustCompile(rules.NewRuleSet("layers").
		Add(rules.Atom("top", "x"), rules.If(rules.Atom("mid", "x"))).
		Add(rules.Atom("mid", "x"), rules.If(rules.Atom("low", "x"))).
		Add(rules.Atom("mid", "x"), rules.If(rules.Atom("loop", "x"))).
		Add(rules.Atom("loop", "x"), rules.If(rules.Atom("mid", "x"))).
		Add(rules.Atom("low", "x"), rules.If(rules.Atom("base", "x"))))

	strata := Stratify(p, nil, []string{"top"})
	var got []string
	for _, s := range strata {
		got = append(got, fmt.Sprint(s.Predicates, s.Recursive))
	}
	assert.Equal(t, []string{"[low] false", "[mid loop] true", "[top] false"}, got)
}
