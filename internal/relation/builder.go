package relation

import (
	"fmt"

	"github.com/google/btree"
)

// Builder is a growable working relation. It only supports insertion, and
// Freeze snapshots the current contents as an immutable Relation.
type Builder struct {
	arity   int
	tree    *btree.BTreeG[Tuple]
	members map[string]struct{}
}

// NewBuilder returns an empty builder. Pass UnknownArity to let the first
// inserted tuple fix the arity.
func NewBuilder(arity int) *Builder {
	return &Builder{
		arity:   arity,
		tree:    btree.NewG[Tuple](16, func(a, b Tuple) bool { return a.Compare(b) < 0 }),
		members: make(map[string]struct{}),
	}
}

// Arity returns the builder's arity, or UnknownArity while it is still untyped.
func (b *Builder) Arity() int { return b.arity }

// Add inserts t and reports whether it was new.
func (b *Builder) Add(t Tuple) (bool, error) {
	if b.arity == UnknownArity {
		b.arity = t.Arity()
	} else if t.Arity() != b.arity {
		return false, fmt.Errorf("%w: tuple %s has arity %d, relation has %d", ErrArityMismatch, t, t.Arity(), b.arity)
	}
	if _, ok := b.members[t.key]; ok {
		return false, nil
	}
	b.members[t.key] = struct{}{}
	b.tree.ReplaceOrInsert(t)
	return true, nil
}

// AddValues normalises and inserts one tuple.
func (b *Builder) AddValues(vals ...any) (bool, error) {
	t, err := NewTuple(vals...)
	if err != nil {
		return false, err
	}
	return b.Add(t)
}

// AddAll inserts every tuple of r and returns how many were new.
func (b *Builder) AddAll(r Relation) (int, error) {
	added := 0
	for _, t := range r.tuples {
		ok, err := b.Add(t)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

// Contains reports whether t has been inserted.
func (b *Builder) Contains(t Tuple) bool {
	_, ok := b.members[t.key]
	return ok
}

// Len returns the number of distinct tuples inserted so far.
func (b *Builder) Len() int { return len(b.members) }

// Freeze returns an immutable snapshot. The builder stays usable.
func (b *Builder) Freeze() Relation {
	out := make([]Tuple, 0, b.tree.Len())
	b.tree.Ascend(func(t Tuple) bool {
		out = append(out, t)
		return true
	})
	return sorted(b.arity, out)
}
