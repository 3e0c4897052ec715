package eval

import (
	"deduce/internal/relation"
	"deduce/internal/rules"
)

// literalPlan is the static join plan for one body literal. Because slots
// are numbered by first appearance, which positions are already bound when
// the scan reaches a literal is fixed at compile time.
type literalPlan struct {
	predicate string
	// keyCols / keySlots: positions probed through the index and the slots
	// whose values form the probe key.
	keyCols  []int
	keySlots []int
	// binds: positions whose slot is first bound by this literal.
	binds []posSlot
	// checks: repeated variables inside this literal.
	checks []posPos
}

type posSlot struct{ pos, slot int }
type posPos struct{ pos, first int }

type clausePlan struct {
	clause rules.CompiledClause
	lits   []literalPlan
}

func planClause(c rules.CompiledClause) clausePlan {
	cp := clausePlan{clause: c, lits: make([]literalPlan, len(c.Body))}
	bound := make([]bool, c.NumVars)
	for i, lit := range c.Body {
		lp := literalPlan{predicate: lit.Predicate}
		firstAt := make(map[int]int)
		for pos, slot := range lit.Slots {
			switch {
			case slot == rules.Unbound:
			case bound[slot]:
				lp.keyCols = append(lp.keyCols, pos)
				lp.keySlots = append(lp.keySlots, slot)
			default:
				if first, ok := firstAt[slot]; ok {
					lp.checks = append(lp.checks, posPos{pos: pos, first: first})
					continue
				}
				firstAt[slot] = pos
				lp.binds = append(lp.binds, posSlot{pos: pos, slot: slot})
			}
		}
		for _, b := range lp.binds {
			bound[b.slot] = true
		}
		cp.lits[i] = lp
	}
	return cp
}

// indexes caches per-relation indexes keyed by name and column set.
type indexes struct {
	cache map[string]*relation.Index
}

func newIndexes() *indexes {
	return &indexes{cache: make(map[string]*relation.Index)}
}

func (ix *indexes) get(name string, rel relation.Relation, cols []int) *relation.Index {
	key := name + "/" + relation.Key(intValues(cols)...)
	if idx, ok := ix.cache[key]; ok {
		return idx
	}
	idx := rel.Index(cols)
	ix.cache[key] = idx
	return idx
}

func intValues(cols []int) []relation.Value {
	out := make([]relation.Value, len(cols))
	for i, c := range cols {
		out[i] = int64(c)
	}
	return out
}

// join enumerates every consistent assignment of the clause's variables,
// scanning literals left to right. lookup returns the index to scan for
// literal i. emit receives the variable assignment and the matched body
// tuples; both slices are reused, so emit must copy what it keeps.
func (cp *clausePlan) join(lookup func(i int, lp *literalPlan) *relation.Index, emit func(vals []relation.Value, body []relation.Tuple)) {
	vals := make([]relation.Value, cp.clause.NumVars)
	body := make([]relation.Tuple, len(cp.lits))
	probe := make([]relation.Value, 0, 4)

	var step func(i int)
	step = func(i int) {
		if i == len(cp.lits) {
			emit(vals, body)
			return
		}
		lp := &cp.lits[i]
		idx := lookup(i, lp)
		if idx == nil {
			return
		}
		probe = probe[:0]
		for _, s := range lp.keySlots {
			probe = append(probe, vals[s])
		}
		candidates := idx.LookupKey(relation.Key(probe...))
	next:
		for _, t := range candidates {
			for _, c := range lp.checks {
				if relation.CompareValues(t.At(c.pos), t.At(c.first)) != 0 {
					continue next
				}
			}
			for _, b := range lp.binds {
				vals[b.slot] = t.At(b.pos)
			}
			body[i] = t
			step(i + 1)
		}
	}
	step(0)
}

// headTuple projects the head of the clause from a complete assignment.
func (cp *clausePlan) headTuple(vals []relation.Value) relation.Tuple {
	out := make([]any, len(cp.clause.HeadSlots))
	for i, s := range cp.clause.HeadSlots {
		out[i] = vals[s]
	}
	return relation.MustTuple(out...)
}
