package infer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"deduce/internal/relation"
)

// ErrNotDerived is returned by Explain for tuples absent from the relation.
var ErrNotDerived = errors.New("tuple not derived")

// DerivationSource indicates whether a tuple came from a base relation or
// was derived by a clause.
type DerivationSource string

const (
	SourceEDB DerivationSource = "EDB" // base relation
	SourceIDB DerivationSource = "IDB" // derived by a clause
)

// DerivationNode is one tuple of a proof tree. Children are the body tuples
// of the clause instantiation that first derived it.
type DerivationNode struct {
	ID        string
	ParentID  string
	Predicate string
	Tuple     relation.Tuple
	Rule      string // clause text, empty for EDB tuples
	Source    DerivationSource
	Children  []*DerivationNode
	Depth     int
}

// Fact renders the node as pred(v1, ..., vn).
func (n *DerivationNode) Fact() string {
	return n.Predicate + n.Tuple.String()
}

// DerivationTrace is the proof tree for one tuple.
type DerivationTrace struct {
	Query     string
	Root      *DerivationNode
	AllNodes  []*DerivationNode
	Duration  time.Duration
	Timestamp time.Time
}

// Explain evaluates req with tracing and returns the proof tree of
// predicate(vals...).
func (e *Engine) Explain(ctx context.Context, req Request, predicate string, vals ...any) (*DerivationTrace, error) {
	req.Queries = []Query{Name(predicate)}
	res, err := e.infer(ctx, req, true)
	if err != nil {
		return nil, err
	}
	return res.Explain(predicate, vals...)
}

// Explain builds the proof tree of predicate(vals...) from this result. The
// engine must have had tracing enabled.
func (r *Result) Explain(predicate string, vals ...any) (*DerivationTrace, error) {
	start := time.Now()
	t, err := relation.NewTuple(vals...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	query := predicate + t.String()

	if rel, ok := r.derived[predicate]; ok {
		if r.trace == nil {
			return nil, fmt.Errorf("cannot explain %s: tracing was disabled", query)
		}
		if !rel.Contains(t) {
			return nil, fmt.Errorf("%w: %s", ErrNotDerived, query)
		}
	} else if rel, ok := r.bases[predicate]; !ok || !rel.Contains(t) {
		return nil, fmt.Errorf("%w: %s", ErrNotDerived, query)
	}

	trace := &DerivationTrace{Query: query, Timestamp: start}
	trace.Root = r.buildNode(trace, predicate, t, "", 0)
	trace.Duration = time.Since(start)
	return trace, nil
}

func (r *Result) buildNode(trace *DerivationTrace, predicate string, t relation.Tuple, parentID string, depth int) *DerivationNode {
	node := &DerivationNode{
		ID:        fmt.Sprintf("node_%d", len(trace.AllNodes)),
		ParentID:  parentID,
		Predicate: predicate,
		Tuple:     t,
		Source:    SourceEDB,
		Depth:     depth,
	}
	trace.AllNodes = append(trace.AllNodes, node)

	if _, derived := r.derived[predicate]; !derived {
		return node
	}
	j, ok := r.trace.Lookup(predicate, t)
	if !ok {
		return node
	}
	clause := r.program.Clause(j.Clause)
	node.Source = SourceIDB
	node.Rule = clause.String()
	for i, lit := range clause.Body {
		node.Children = append(node.Children, r.buildNode(trace, lit.Predicate, j.Body[i], node.ID, depth+1))
	}
	return node
}

// RenderASCII renders the proof tree as an indented tree.
func (trace *DerivationTrace) RenderASCII() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Query: %s\n", trace.Query))
	sb.WriteString(strings.Repeat("=", 60) + "\n")
	renderNodeASCII(&sb, trace.Root, "", true)
	return sb.String()
}

func renderNodeASCII(sb *strings.Builder, node *DerivationNode, prefix string, isLast bool) {
	connector := "├── "
	if isLast {
		connector = "└── "
	}
	indicator := "[EDB]"
	if node.Source == SourceIDB {
		indicator = fmt.Sprintf("[IDB: %s]", node.Rule)
	}
	sb.WriteString(fmt.Sprintf("%s%s%s %s\n", prefix, connector, node.Fact(), indicator))

	childPrefix := prefix
	if isLast {
		childPrefix += "    "
	} else {
		childPrefix += "│   "
	}
	for i, child := range node.Children {
		renderNodeASCII(sb, child, childPrefix, i == len(node.Children)-1)
	}
}

// RenderJSON renders the proof tree as nested JSON objects.
func (trace *DerivationTrace) RenderJSON() ([]byte, error) {
	type jsonNode struct {
		ID       string      `json:"id"`
		ParentID string      `json:"parent_id,omitempty"`
		Fact     string      `json:"fact"`
		Source   string      `json:"source"`
		Rule     string      `json:"rule,omitempty"`
		Depth    int         `json:"depth"`
		Children []*jsonNode `json:"children,omitempty"`
	}

	var convert func(*DerivationNode) *jsonNode
	convert = func(n *DerivationNode) *jsonNode {
		jn := &jsonNode{
			ID:       n.ID,
			ParentID: n.ParentID,
			Fact:     n.Fact(),
			Source:   string(n.Source),
			Rule:     n.Rule,
			Depth:    n.Depth,
		}
		for _, c := range n.Children {
			jn.Children = append(jn.Children, convert(c))
		}
		return jn
	}

	return json.MarshalIndent(struct {
		Query      string    `json:"query"`
		DurationMS int64     `json:"duration_ms"`
		Root       *jsonNode `json:"root"`
	}{
		Query:      trace.Query,
		DurationMS: trace.Duration.Milliseconds(),
		Root:       convert(trace.Root),
	}, "", "  ")
}
