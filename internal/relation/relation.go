package relation

import (
	"errors"
	"fmt"
	"strings"
)

// UnknownArity is reported by empty relations whose arity was never fixed.
// Such a relation unifies with any arity.
const UnknownArity = -1

// ErrArityMismatch is returned when relations or tuples of different arity meet.
var ErrArityMismatch = errors.New("arity mismatch")

// Relation is an immutable set of same-arity tuples. The zero value is the
// empty relation of unknown arity. Tuples iterate in ascending Compare order.
type Relation struct {
	arity   int
	known   bool
	tuples  []Tuple
	members map[string]struct{}
}

// Empty returns the empty relation of the given arity.
func Empty(arity int) Relation {
	if arity < 0 {
		return Relation{}
	}
	return Relation{arity: arity, known: true}
}

// New builds a relation of the given arity from tuples. Duplicates collapse.
func New(arity int, tuples ...Tuple) (Relation, error) {
	b := NewBuilder(arity)
	for _, t := range tuples {
		if _, err := b.Add(t); err != nil {
			return Relation{}, err
		}
	}
	return b.Freeze(), nil
}

// FromRows builds a relation from rows of host values. The arity is taken
// from the first row; an empty input yields a relation of unknown arity.
func FromRows(rows ...[]any) (Relation, error) {
	b := NewBuilder(UnknownArity)
	for i, row := range rows {
		t, err := NewTuple(row...)
		if err != nil {
			return Relation{}, fmt.Errorf("row %d: %w", i, err)
		}
		if _, err := b.Add(t); err != nil {
			return Relation{}, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return b.Freeze(), nil
}

// MustRows is FromRows for literal data. It panics on malformed input.
func MustRows(rows ...[]any) Relation {
	r, err := FromRows(rows...)
	if err != nil {
		panic(err)
	}
	return r
}

// Arity returns the tuple length, or UnknownArity for an untyped empty relation.
func (r Relation) Arity() int {
	if !r.known {
		return UnknownArity
	}
	return r.arity
}

// Len returns the number of tuples.
func (r Relation) Len() int { return len(r.tuples) }

// IsEmpty reports whether the relation has no tuples.
func (r Relation) IsEmpty() bool { return len(r.tuples) == 0 }

// Tuples returns the tuples in ascending order. The slice is a copy.
func (r Relation) Tuples() []Tuple {
	out := make([]Tuple, len(r.tuples))
	copy(out, r.tuples)
	return out
}

// Each calls fn for every tuple in order until fn returns false.
func (r Relation) Each(fn func(Tuple) bool) {
	for _, t := range r.tuples {
		if !fn(t) {
			return
		}
	}
}

// Contains reports whether t is a member.
func (r Relation) Contains(t Tuple) bool {
	_, ok := r.members[t.key]
	return ok
}

// ContainsValues reports whether the tuple of the given host values is a member.
func (r Relation) ContainsValues(vals ...any) bool {
	t, err := NewTuple(vals...)
	if err != nil {
		return false
	}
	return r.Contains(t)
}

// Equal reports set equality. Arity is not compared for empty relations.
func (r Relation) Equal(o Relation) bool {
	if len(r.tuples) != len(o.tuples) {
		return false
	}
	for _, t := range r.tuples {
		if !o.Contains(t) {
			return false
		}
	}
	return true
}

// SubsetOf reports whether every tuple of r is in o.
func (r Relation) SubsetOf(o Relation) bool {
	if len(r.tuples) > len(o.tuples) {
		return false
	}
	for _, t := range r.tuples {
		if !o.Contains(t) {
			return false
		}
	}
	return true
}

// CompatibleArity reports whether a relation of arity a can stand where b is expected.
func CompatibleArity(a, b int) bool {
	return a == UnknownArity || b == UnknownArity || a == b
}

// Union returns the set union of a and b.
func Union(a, b Relation) (Relation, error) {
	if !CompatibleArity(a.Arity(), b.Arity()) {
		return Relation{}, fmt.Errorf("%w: union of arity %d and %d", ErrArityMismatch, a.Arity(), b.Arity())
	}
	arity := a.Arity()
	if arity == UnknownArity {
		arity = b.Arity()
	}
	if b.IsEmpty() && a.Arity() == arity {
		return a, nil
	}
	if a.IsEmpty() && b.Arity() == arity {
		return b, nil
	}

	out := make([]Tuple, 0, len(a.tuples)+len(b.tuples))
	i, j := 0, 0
	for i < len(a.tuples) && j < len(b.tuples) {
		switch c := a.tuples[i].Compare(b.tuples[j]); {
		case c < 0:
			out = append(out, a.tuples[i])
			i++
		case c > 0:
			out = append(out, b.tuples[j])
			j++
		default:
			out = append(out, a.tuples[i])
			i++
			j++
		}
	}
	out = append(out, a.tuples[i:]...)
	out = append(out, b.tuples[j:]...)
	return sorted(arity, out), nil
}

// Restrict returns the tuples whose values at cols equal vals.
func (r Relation) Restrict(cols []int, vals []Value) Relation {
	if len(cols) == 0 {
		return r
	}
	want := Key(vals...)
	var out []Tuple
	for _, t := range r.tuples {
		if Key(t.Project(cols)...) == want {
			out = append(out, t)
		}
	}
	return sorted(r.Arity(), out)
}

// sorted wraps tuples already in ascending order without duplicates.
func sorted(arity int, tuples []Tuple) Relation {
	members := make(map[string]struct{}, len(tuples))
	for _, t := range tuples {
		members[t.key] = struct{}{}
	}
	r := Relation{tuples: tuples, members: members}
	if arity >= 0 {
		r.arity, r.known = arity, true
	}
	return r
}

func (r Relation) String() string {
	parts := make([]string, len(r.tuples))
	for i, t := range r.tuples {
		parts[i] = t.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
