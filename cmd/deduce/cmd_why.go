package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"deduce/internal/infer"
)

var whyJSON bool

var whyCmd = &cobra.Command{
	Use:   "why [rules-file] [fact]",
	Short: "Explain how a fact was derived",
	Long: `Shows the derivation trace (proof tree) for a derived fact: the clause
that produced it and, recursively, the facts its body matched.

Examples:
  deduce why trans.mg 'path(1, 3)' --data edges.yaml
  deduce why hrbac.mg 'authorized("alice", "r3")' --data roles.yaml --json`,
	Args: cobra.ExactArgs(2),
	RunE: runWhy,
}

func init() {
	addInputFlags(whyCmd)
	whyCmd.Flags().BoolVar(&whyJSON, "json", false, "Print the proof tree as JSON")
}

func runWhy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	fact, err := infer.ParseQuery(args[1])
	if err != nil {
		return err
	}
	vals := make([]any, len(fact.Args))
	for i, a := range fact.Args {
		if !a.Const {
			return fmt.Errorf("%s is not a ground fact: argument %d is %s", fact, i+1, a)
		}
		vals[i] = a.Value
	}
	logger.Info("Explaining fact", zap.String("fact", fact.String()))

	req, st, err := buildRequest(ctx, args[0], nil)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}
	req.Registrar = nil

	eng, err := infer.NewEngine(engineConfig())
	if err != nil {
		return err
	}
	trace, err := eng.Explain(ctx, req, fact.Predicate, vals...)
	if err != nil {
		return err
	}

	if whyJSON {
		data, err := trace.RenderJSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), trace.RenderASCII())
	return err
}
