package relation

// Index groups a relation's tuples by the values at a fixed set of columns.
// It backs the constrained scan the evaluator performs for each body literal.
type Index struct {
	cols    []int
	all     []Tuple
	buckets map[string][]Tuple
}

// Index builds a hash index over cols. An index over no columns simply
// yields every tuple.
func (r Relation) Index(cols []int) *Index {
	ix := &Index{cols: cols, all: r.tuples}
	if len(cols) == 0 {
		return ix
	}
	ix.buckets = make(map[string][]Tuple)
	for _, t := range r.tuples {
		k := Key(t.Project(cols)...)
		ix.buckets[k] = append(ix.buckets[k], t)
	}
	return ix
}

// Columns returns the indexed positions.
func (ix *Index) Columns() []int { return ix.cols }

// Lookup returns the tuples whose indexed columns equal vals.
func (ix *Index) Lookup(vals ...Value) []Tuple {
	if len(ix.cols) == 0 {
		return ix.all
	}
	return ix.buckets[Key(vals...)]
}

// LookupKey is Lookup with a precomputed Key.
func (ix *Index) LookupKey(key string) []Tuple {
	if len(ix.cols) == 0 {
		return ix.all
	}
	return ix.buckets[key]
}
