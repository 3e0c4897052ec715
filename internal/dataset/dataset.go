// Package dataset loads base relations from YAML files and writes derived
// relations back out in the same shape.
//
// A dataset maps relation names to rows:
//
//	edge:
//	  - [1, 2]
//	  - [2, 3]
//	admin: [alice, bob]        # unary
//	banned:                    # empty, with a declared arity
//	  arity: 2
//	  rows: []
package dataset

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"deduce/internal/logging"
	"deduce/internal/relation"
	"deduce/internal/scope"
)

// Dataset is a set of named relations.
type Dataset map[string]relation.Relation

type declared struct {
	Arity *int  `yaml:"arity"`
	Rows  []any `yaml:"rows"`
}

// Load reads a dataset file.
func Load(path string) (Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	ds, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logging.StoreDebug("loaded dataset %s: %d relations", path, len(ds))
	return ds, nil
}

// Parse decodes a YAML dataset.
func Parse(data []byte) (Dataset, error) {
	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}

	ds := make(Dataset, len(doc))
	for name, node := range doc {
		rel, err := decodeRelation(&node)
		if err != nil {
			return nil, fmt.Errorf("relation %s (line %d): %w", name, node.Line, err)
		}
		ds[name] = rel
	}
	return ds, nil
}

func decodeRelation(node *yaml.Node) (relation.Relation, error) {
	if node.Kind == yaml.MappingNode {
		var d declared
		if err := node.Decode(&d); err != nil {
			return relation.Relation{}, err
		}
		rel, err := fromRows(d.Rows)
		if err != nil {
			return relation.Relation{}, err
		}
		if d.Arity == nil {
			return rel, nil
		}
		if rel.IsEmpty() {
			return relation.Empty(*d.Arity), nil
		}
		if rel.Arity() != *d.Arity {
			return relation.Relation{}, fmt.Errorf("%w: declared arity %d, rows have %d",
				relation.ErrArityMismatch, *d.Arity, rel.Arity())
		}
		return rel, nil
	}

	var rows []any
	if err := node.Decode(&rows); err != nil {
		return relation.Relation{}, err
	}
	return fromRows(rows)
}

func fromRows(rows []any) (relation.Relation, error) {
	if len(rows) == 0 {
		return relation.Empty(relation.UnknownArity), nil
	}
	return relation.FromHost(rows)
}

// Names returns the relation names in sorted order.
func (ds Dataset) Names() []string {
	names := make([]string, 0, len(ds))
	for n := range ds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Bindings turns the dataset into explicit bindings, in name order.
func (ds Dataset) Bindings() []scope.Binding {
	out := make([]scope.Binding, 0, len(ds))
	for _, n := range ds.Names() {
		out = append(out, scope.Bind(n, ds[n]))
	}
	return out
}

// Merge adds other's relations, unioning those present in both.
func (ds Dataset) Merge(other Dataset) error {
	for name, rel := range other {
		cur, ok := ds[name]
		if !ok {
			ds[name] = rel
			continue
		}
		u, err := relation.Union(cur, rel)
		if err != nil {
			return fmt.Errorf("merge %s: %w", name, err)
		}
		ds[name] = u
	}
	return nil
}

var encodeValue = func(n *yaml.Node, v relation.Value) error { return n.Encode(v) }

// Encode writes ds as YAML in the format Parse reads.
func Encode(w io.Writer, ds Dataset) error {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, name := range ds.Names() {
		rel := ds[name]
		key := &yaml.Node{Kind: yaml.ScalarNode, Value: name}

		rows := &yaml.Node{Kind: yaml.SequenceNode}
		var rowErr error
		rel.Each(func(t relation.Tuple) bool {
			row := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
			for i, v := range t.Values() {
				var n yaml.Node
				if err := encodeValue(&n, v); err != nil {
					rowErr = fmt.Errorf("%s%s position %d: %w", name, t, i, err)
					return false
				}
				row.Content = append(row.Content, &n)
			}
			rows.Content = append(rows.Content, row)
			return true
		})
		if rowErr != nil {
			return rowErr
		}

		if rel.IsEmpty() && rel.Arity() >= 0 {
			val := &yaml.Node{Kind: yaml.MappingNode}
			var arity yaml.Node
			if err := arity.Encode(rel.Arity()); err != nil {
				return err
			}
			rows.Style = yaml.FlowStyle
			val.Content = append(val.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: "arity"}, &arity,
				&yaml.Node{Kind: yaml.ScalarNode, Value: "rows"}, rows)
			root.Content = append(root.Content, key, val)
			continue
		}
		if rel.IsEmpty() {
			rows.Style = yaml.FlowStyle
		}
		root.Content = append(root.Content, key, rows)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}
	return enc.Close()
}
