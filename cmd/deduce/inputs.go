package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"deduce/internal/dataset"
	"deduce/internal/infer"
	"deduce/internal/rules"
	"deduce/internal/scope"
	"deduce/internal/store"
)

// Input flags shared by infer, why and watch.
var (
	dataFiles []string
	tables    []string
	fromDB    bool
	naive     bool
)

func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVarP(&dataFiles, "data", "d", nil, "YAML dataset file (repeatable)")
	cmd.Flags().StringArrayVar(&tables, "table", nil, "Bind a SQLite table: name=table or name=table:col1,col2")
	cmd.Flags().BoolVar(&fromDB, "from-db", false, "Bind relations saved by earlier runs")
	cmd.Flags().BoolVar(&naive, "naive", false, "Use naive instead of semi-naive evaluation")
}

func needsStore() bool {
	return fromDB || len(tables) > 0
}

func openStore() (*store.RelationStore, error) {
	return store.Open(cfg.Store.DatabasePath)
}

// loadRuleSet parses a rules file; the rule set is named after the file.
func loadRuleSet(path string) (*rules.RuleSet, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return rules.Parse(name, string(src))
}

type tableSpec struct {
	name, table string
	cols        []string
}

func parseTableSpec(spec string) (tableSpec, error) {
	name, rest, ok := strings.Cut(spec, "=")
	if !ok || name == "" || rest == "" {
		return tableSpec{}, fmt.Errorf("bad --table %q: want name=table[:col,...]", spec)
	}
	ts := tableSpec{name: name, table: rest}
	if table, cols, ok := strings.Cut(rest, ":"); ok {
		ts.table = table
		ts.cols = strings.Split(cols, ",")
	}
	return ts, nil
}

// loadBindings gathers base relations from the stored relations, the
// datasets and the tables, in that order; later sources win on a name clash.
func loadBindings(ctx context.Context, st *store.RelationStore) ([]scope.Binding, error) {
	var out []scope.Binding

	if fromDB {
		ds, err := st.Dataset(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, ds.Bindings()...)
	}

	ds := make(dataset.Dataset)
	for _, f := range dataFiles {
		one, err := dataset.Load(f)
		if err != nil {
			return nil, err
		}
		if err := ds.Merge(one); err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
	}
	out = append(out, ds.Bindings()...)

	for _, spec := range tables {
		ts, err := parseTableSpec(spec)
		if err != nil {
			return nil, err
		}
		rel, err := st.LoadTable(ctx, ts.table, ts.cols...)
		if err != nil {
			return nil, err
		}
		out = append(out, scope.Bind(ts.name, rel))
	}

	logger.Debug("bindings loaded", zap.Int("count", len(out)))
	return out, nil
}

func parseQueries(texts []string) ([]infer.Query, error) {
	qs := make([]infer.Query, 0, len(texts))
	for _, text := range texts {
		q, err := infer.ParseQuery(text)
		if err != nil {
			return nil, err
		}
		qs = append(qs, q)
	}
	return qs, nil
}

// buildRequest loads everything one run needs. The returned store, if any,
// must be closed by the caller.
func buildRequest(ctx context.Context, rulesPath string, queryTexts []string) (infer.Request, *store.RelationStore, error) {
	rs, err := loadRuleSet(rulesPath)
	if err != nil {
		return infer.Request{}, nil, err
	}
	qs, err := parseQueries(queryTexts)
	if err != nil {
		return infer.Request{}, nil, err
	}

	var st *store.RelationStore
	if needsStore() || saveDerived {
		if st, err = openStore(); err != nil {
			return infer.Request{}, nil, err
		}
	}
	bindings, err := loadBindings(ctx, st)
	if err != nil {
		if st != nil {
			st.Close()
		}
		return infer.Request{}, nil, err
	}

	req := infer.Request{RuleSet: rs, Bindings: bindings, Queries: qs}
	if saveDerived && len(qs) == 0 {
		req.Registrar = st
	}
	return req, st, nil
}
