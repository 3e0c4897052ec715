package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"deduce/internal/dataset"
	"deduce/internal/infer"
	"deduce/internal/relation"
	"deduce/internal/store"
)

var (
	saveDerived  bool
	outputFormat string
)

var inferCmd = &cobra.Command{
	Use:   "infer [rules-file] [query...]",
	Short: "Evaluate a rule set and print the answers",
	Long: `Evaluates the rule set to its least fixpoint and prints each query's answer.
Queries are predicate names or patterns; without queries every derived
predicate is printed.

Examples:
  deduce infer trans.mg path --data edges.yaml
  deduce infer hrbac.mg 'authorized("alice", _)' --data roles.yaml
  deduce infer trans.mg --table edge=links:src,dst --save`,
	Args: cobra.MinimumNArgs(1),
	RunE: runInfer,
}

func init() {
	addInputFlags(inferCmd)
	inferCmd.Flags().BoolVar(&saveDerived, "save", false, "Save derived relations to the store")
	inferCmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text, yaml or json")
}

func runInfer(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	logger.Info("Running inference", zap.String("rules", args[0]), zap.Strings("queries", args[1:]))

	res, err := inferOnce(ctx, args[0], args[1:])
	if err != nil {
		return err
	}
	return writeResult(cmd.OutOrStdout(), res, outputFormat)
}

// inferOnce loads inputs, runs one inference and saves results when asked.
func inferOnce(ctx context.Context, rulesPath string, queries []string) (*infer.Result, error) {
	req, st, err := buildRequest(ctx, rulesPath, queries)
	if err != nil {
		return nil, err
	}
	if st != nil {
		defer st.Close()
	}

	eng, err := infer.NewEngine(engineConfig())
	if err != nil {
		return nil, err
	}
	res, err := eng.Infer(ctx, req)
	if err != nil {
		return nil, err
	}
	if saveDerived && len(req.Queries) > 0 {
		if err := saveAnswers(ctx, st, req.Queries, res); err != nil {
			return nil, err
		}
	}
	logger.Debug("Inference finished",
		zap.String("run", res.RunID),
		zap.Int("rounds", res.Rounds),
		zap.Duration("duration", res.Duration))
	return res, nil
}

// saveAnswers stores whole-predicate answers; pattern answers have no
// predicate name of their own and are skipped.
func saveAnswers(ctx context.Context, st *store.RelationStore, qs []infer.Query, res *infer.Result) error {
	for _, q := range qs {
		if q.IsPattern() {
			continue
		}
		rel, _ := res.Answer(q)
		if err := st.Save(ctx, q.Predicate, rel); err != nil {
			return err
		}
	}
	return nil
}

func writeResult(w io.Writer, res *infer.Result, format string) error {
	switch format {
	case "yaml":
		return dataset.Encode(w, dataset.Dataset(res.Relations))
	case "json":
		out := make(map[string][][]relation.Value, len(res.Relations))
		for name, rel := range res.Relations {
			rows := make([][]relation.Value, 0, rel.Len())
			rel.Each(func(t relation.Tuple) bool {
				rows = append(rows, t.Values())
				return true
			})
			out[name] = rows
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	case "text", "":
		for _, name := range res.Names() {
			rel := res.Relations[name]
			fmt.Fprintf(w, "%s: %d tuple(s)\n", name, rel.Len())
			rel.Each(func(t relation.Tuple) bool {
				fmt.Fprintf(w, "  %s\n", t)
				return true
			})
		}
		return nil
	}
	return fmt.Errorf("unknown output format %q", format)
}
