package eval

import (
	"deduce/internal/relation"
)

// Justification records the first clause instantiation that produced a
// derived tuple.
type Justification struct {
	Clause int
	Body   []relation.Tuple
	// Round is the fixpoint round in which the tuple first appeared.
	Round int
}

// Trace maps derived tuples to their justification. It is only populated
// when tracing is enabled.
type Trace struct {
	byPred map[string]map[string]Justification
}

func newTrace() *Trace {
	return &Trace{byPred: make(map[string]map[string]Justification)}
}

func (tr *Trace) record(pred string, t relation.Tuple, j Justification) {
	m := tr.byPred[pred]
	if m == nil {
		m = make(map[string]Justification)
		tr.byPred[pred] = m
	}
	if _, ok := m[t.Key()]; !ok {
		m[t.Key()] = j
	}
}

// Lookup returns the justification of t in pred.
func (tr *Trace) Lookup(pred string, t relation.Tuple) (Justification, bool) {
	if tr == nil {
		return Justification{}, false
	}
	j, ok := tr.byPred[pred][t.Key()]
	return j, ok
}

// Len returns the number of traced tuples.
func (tr *Trace) Len() int {
	if tr == nil {
		return 0
	}
	n := 0
	for _, m := range tr.byPred {
		n += len(m)
	}
	return n
}
