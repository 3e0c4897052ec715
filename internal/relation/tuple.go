package relation

import (
	"fmt"
	"strings"
)

// Tuple is an immutable, ordered, fixed-length sequence of atomic values.
type Tuple struct {
	vals []Value
	key  string
}

// NewTuple normalises the given host values into a tuple.
func NewTuple(vals ...any) (Tuple, error) {
	norm := make([]Value, len(vals))
	for i, v := range vals {
		n, err := Normalize(v)
		if err != nil {
			return Tuple{}, fmt.Errorf("tuple position %d: %w", i, err)
		}
		norm[i] = n
	}
	return tupleOf(norm), nil
}

// MustTuple is NewTuple for literals known to be atomic. It panics otherwise.
func MustTuple(vals ...any) Tuple {
	t, err := NewTuple(vals...)
	if err != nil {
		panic(err)
	}
	return t
}

// tupleOf wraps already-normalised values. The slice is owned by the tuple.
func tupleOf(vals []Value) Tuple {
	return Tuple{vals: vals, key: Key(vals...)}
}

// Arity returns the number of positions in the tuple.
func (t Tuple) Arity() int { return len(t.vals) }

// At returns the value at position i.
func (t Tuple) At(i int) Value { return t.vals[i] }

// Values returns a copy of the tuple's values.
func (t Tuple) Values() []Value {
	out := make([]Value, len(t.vals))
	copy(out, t.vals)
	return out
}

// Key is the canonical hash key of the whole tuple.
func (t Tuple) Key() string { return t.key }

// Equal reports element-wise structural equality.
func (t Tuple) Equal(o Tuple) bool { return t.key == o.key }

// Compare orders tuples lexicographically, shorter tuples first on a tie.
func (t Tuple) Compare(o Tuple) int {
	n := min(len(t.vals), len(o.vals))
	for i := 0; i < n; i++ {
		if c := CompareValues(t.vals[i], o.vals[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(t.vals) < len(o.vals):
		return -1
	case len(t.vals) > len(o.vals):
		return 1
	}
	return 0
}

// Project returns the values at the given positions.
func (t Tuple) Project(cols []int) []Value {
	out := make([]Value, len(cols))
	for i, c := range cols {
		out[i] = t.vals[c]
	}
	return out
}

func (t Tuple) String() string {
	parts := make([]string, len(t.vals))
	for i, v := range t.vals {
		parts[i] = FormatValue(v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
