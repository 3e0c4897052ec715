package eval

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"deduce/internal/rules"
)

// Stratum is one strongly connected component of derived predicates.
type Stratum struct {
	Predicates []string
	// Recursive is set when some clause of the component reads a predicate
	// of the same component.
	Recursive bool
}

// Stratify returns the components of the derived predicates reachable from
// targets, dependencies first. Names in base are treated as base relations:
// their clauses are ignored and they do not appear in any stratum.
func Stratify(p *rules.Program, base map[string]bool, targets []string) []Stratum {
	derived := func(name string) bool { return p.IsDerived(name) && !base[name] }

	// Collect reachable predicates in discovery order.
	ids := make(map[string]int64)
	var names []string
	var visit func(string)
	visit = func(name string) {
		if _, seen := ids[name]; seen || !derived(name) {
			return
		}
		ids[name] = int64(len(names))
		names = append(names, name)
		for _, dep := range p.DependsOn(name) {
			visit(dep)
		}
	}
	for _, t := range targets {
		visit(t)
	}
	if len(names) == 0 {
		return nil
	}

	g := simple.NewDirectedGraph()
	for _, name := range names {
		g.AddNode(simple.Node(ids[name]))
	}
	for _, name := range names {
		for _, dep := range p.DependsOn(name) {
			to, ok := ids[dep]
			if !ok || to == ids[name] {
				continue
			}
			g.SetEdge(g.NewEdge(simple.Node(ids[name]), simple.Node(to)))
		}
	}

	comps := topo.TarjanSCC(g)
	compOf := make(map[int64]int, len(names))
	for i, c := range comps {
		for _, n := range c {
			compOf[n.ID()] = i
		}
	}

	// Order components so every dependency precedes its dependents, breaking
	// ties by discovery order for deterministic output.
	order := make([]int, 0, len(comps))
	placed := make([]bool, len(comps))
	var place func(int)
	place = func(ci int) {
		if placed[ci] {
			return
		}
		placed[ci] = true
		for _, n := range sortedNodes(comps[ci]) {
			for _, dep := range p.DependsOn(names[n]) {
				if to, ok := ids[dep]; ok {
					place(compOf[to])
				}
			}
		}
		order = append(order, ci)
	}
	for _, name := range names {
		place(compOf[ids[name]])
	}

	strata := make([]Stratum, 0, len(order))
	for _, ci := range order {
		var s Stratum
		members := make(map[string]bool)
		for _, n := range sortedNodes(comps[ci]) {
			s.Predicates = append(s.Predicates, names[n])
			members[names[n]] = true
		}
		for _, name := range s.Predicates {
			for _, dep := range p.DependsOn(name) {
				if members[dep] {
					s.Recursive = true
				}
			}
		}
		strata = append(strata, s)
	}
	return strata
}

func sortedNodes(nodes []graph.Node) []int64 {
	out := make([]int64, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID()
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
