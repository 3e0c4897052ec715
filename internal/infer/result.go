package infer

import (
	"sort"
	"time"

	"deduce/internal/eval"
	"deduce/internal/relation"
	"deduce/internal/rules"
	"deduce/internal/scope"
)

// Result holds the answers of one infer call.
type Result struct {
	RunID string
	// Relations maps each query's text (or, without queries, each derived
	// predicate) to its answer.
	Relations map[string]relation.Relation
	Queries   []Query
	Rounds    int
	Duration  time.Duration

	program    *rules.Program
	resolution *scope.Resolution
	trace      *eval.Trace
	bases      map[string]relation.Relation
	derived    map[string]relation.Relation
}

// Get returns the answer for a query's text or a derived predicate name.
func (r *Result) Get(key string) (relation.Relation, bool) {
	rel, ok := r.Relations[key]
	return rel, ok
}

// Answer returns the answer to q.
func (r *Result) Answer(q Query) (relation.Relation, bool) {
	return r.Get(q.String())
}

// Names returns the answer keys in sorted order.
func (r *Result) Names() []string {
	out := make([]string, 0, len(r.Relations))
	for k := range r.Relations {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Program returns the compiled rule set that was evaluated.
func (r *Result) Program() *rules.Program { return r.program }

// Resolution reports where each predicate name was found.
func (r *Result) Resolution() *scope.Resolution { return r.resolution }

func (r *Result) derivedCount() int {
	n := 0
	for _, rel := range r.derived {
		n += rel.Len()
	}
	return n
}
