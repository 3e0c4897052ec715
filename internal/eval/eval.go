// Package eval computes the least fixpoint of a compiled rule set over
// resolved base relations.
//
// Derived predicates are split into strongly connected components and
// evaluated dependencies first. Within a component evaluation is either
// naive (every clause over the full relations each round) or semi-naive
// (after the first round, each clause joins the previous round's delta at
// one recursive position and the full relations elsewhere). Both stop at
// the first round that adds no tuple.
package eval

import (
	"context"
	"fmt"

	"deduce/internal/logging"
	"deduce/internal/relation"
	"deduce/internal/rules"
)

// DefaultMaxIterations bounds the rounds of a single component.
const DefaultMaxIterations = 10000

// Options configures an evaluation.
type Options struct {
	// MaxIterations caps the rounds per component; <= 0 means the default.
	MaxIterations int
	SemiNaive     bool
	// Trace records the first justification of every derived tuple.
	Trace bool
}

// DefaultOptions returns semi-naive evaluation with the default cap.
func DefaultOptions() Options {
	return Options{MaxIterations: DefaultMaxIterations, SemiNaive: true}
}

// Result is the outcome of a successful evaluation.
type Result struct {
	// Relations holds every evaluated derived predicate.
	Relations map[string]relation.Relation
	Strata    []Stratum
	// Rounds is the total number of rounds over all components.
	Rounds int
	// Trace is nil unless Options.Trace was set.
	Trace *Trace
}

// Evaluate computes the derived predicates reachable from targets (all of
// them when targets is empty). Names present in base are base relations even
// when the program also derives them. On error no partial result is returned.
func Evaluate(ctx context.Context, p *rules.Program, base map[string]relation.Relation, targets []string, opts Options) (*Result, error) {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if len(targets) == 0 {
		targets = p.Derived()
	}

	isBase := make(map[string]bool, len(base))
	full := make(map[string]relation.Relation, len(base))
	for name, rel := range base {
		isBase[name] = true
		full[name] = rel
	}

	e := &evaluator{
		p:      p,
		opts:   opts,
		full:   full,
		stable: newIndexes(),
	}
	if opts.Trace {
		e.trace = newTrace()
	}

	strata := Stratify(p, isBase, targets)
	out := make(map[string]relation.Relation)
	for _, s := range strata {
		rels, err := e.stratum(ctx, s)
		if err != nil {
			return nil, err
		}
		for name, rel := range rels {
			e.full[name] = rel
			out[name] = rel
		}
	}

	logging.EvalDebug("%s: %d strata evaluated in %d rounds", p.Name(), len(strata), e.rounds)
	return &Result{Relations: out, Strata: strata, Rounds: e.rounds, Trace: e.trace}, nil
}

type evaluator struct {
	p    *rules.Program
	opts Options
	// full holds base relations and completed components.
	full   map[string]relation.Relation
	stable *indexes
	trace  *Trace
	rounds int
}

func (e *evaluator) stratum(ctx context.Context, s Stratum) (map[string]relation.Relation, error) {
	members := make(map[string]bool, len(s.Predicates))
	builders := make(map[string]*relation.Builder, len(s.Predicates))
	var plans []clausePlan
	for _, name := range s.Predicates {
		members[name] = true
		arity, _ := e.p.Arity(name)
		builders[name] = relation.NewBuilder(arity)
		for _, c := range e.p.ClausesFor(name) {
			plans = append(plans, planClause(c))
		}
	}

	delta := make(map[string]relation.Relation)
	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("evaluation of %v cancelled: %w", s.Predicates, err)
		}
		if round > e.opts.MaxIterations {
			return nil, &NonTerminatingError{Predicates: s.Predicates, Iterations: e.opts.MaxIterations}
		}
		e.rounds++

		snap := make(map[string]relation.Relation, len(builders))
		for name, b := range builders {
			snap[name] = b.Freeze()
		}
		local := newIndexes()
		lookupFull := func(_ int, lp *literalPlan) *relation.Index {
			if members[lp.predicate] {
				return local.get(lp.predicate, snap[lp.predicate], lp.keyCols)
			}
			rel, ok := e.full[lp.predicate]
			if !ok {
				return nil
			}
			return e.stable.get(lp.predicate, rel, lp.keyCols)
		}

		pending := make(map[string][]relation.Tuple)
		seen := make(map[string]map[string]struct{})
		for i := range plans {
			cp := &plans[i]
			head := cp.clause.Head
			emit := func(vals []relation.Value, body []relation.Tuple) {
				t := cp.headTuple(vals)
				if builders[head].Contains(t) {
					return
				}
				if seen[head] == nil {
					seen[head] = make(map[string]struct{})
				}
				if _, dup := seen[head][t.Key()]; dup {
					return
				}
				seen[head][t.Key()] = struct{}{}
				pending[head] = append(pending[head], t)
				if e.trace != nil {
					e.trace.record(head, t, Justification{
						Clause: cp.clause.Index,
						Body:   append([]relation.Tuple(nil), body...),
						Round:  e.rounds,
					})
				}
			}

			if round == 1 || !e.opts.SemiNaive {
				cp.join(lookupFull, emit)
				continue
			}
			for d := range cp.lits {
				if !members[cp.lits[d].predicate] {
					continue
				}
				deltaPos := d
				cp.join(func(i int, lp *literalPlan) *relation.Index {
					if i == deltaPos {
						return local.get("\x00delta/"+lp.predicate, delta[lp.predicate], lp.keyCols)
					}
					return lookupFull(i, lp)
				}, emit)
			}
		}

		added := 0
		delta = make(map[string]relation.Relation, len(pending))
		for name, tuples := range pending {
			for _, t := range tuples {
				if _, err := builders[name].Add(t); err != nil {
					return nil, fmt.Errorf("derive %s: %w", name, err)
				}
			}
			d, err := relation.New(builders[name].Arity(), tuples...)
			if err != nil {
				return nil, fmt.Errorf("derive %s: %w", name, err)
			}
			delta[name] = d
			added += len(tuples)
		}
		logging.EvalDebug("%v round %d: %d new tuples", s.Predicates, round, added)

		if added == 0 || !s.Recursive {
			break
		}
	}

	out := make(map[string]relation.Relation, len(builders))
	for name, b := range builders {
		out[name] = b.Freeze()
	}
	return out, nil
}
