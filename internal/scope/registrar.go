package scope

import (
	"sync"

	"deduce/internal/relation"
)

// Registrar receives derived relations when an infer call has no explicit
// queries.
type Registrar interface {
	Register(name string, rel relation.Relation) error
}

// Register defines name in s, so a host scope can act as the result sink.
func (s *Scope) Register(name string, rel relation.Relation) error {
	s.Define(name, rel)
	return nil
}

// Relations is an in-memory Registrar safe for concurrent use.
type Relations struct {
	mu   sync.RWMutex
	rels map[string]relation.Relation
}

// NewRelations returns an empty registrar.
func NewRelations() *Relations {
	return &Relations{rels: make(map[string]relation.Relation)}
}

func (r *Relations) Register(name string, rel relation.Relation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rels[name] = rel
	return nil
}

// Get returns the relation last registered under name.
func (r *Relations) Get(name string) (relation.Relation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rel, ok := r.rels[name]
	return rel, ok
}

// Len returns the number of registered names.
func (r *Relations) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rels)
}
