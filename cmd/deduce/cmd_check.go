package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"deduce/internal/eval"
	"deduce/internal/rules"
)

var checkCmd = &cobra.Command{
	Use:   "check [rules-file...]",
	Short: "Compile rule sets and report their predicates",
	Long: `Parses and compiles each rules file without evaluating it, reporting the
derived predicates, the free names that must be bound at infer time, and
the evaluation strata.

Example:
  deduce check trans.mg hrbac.mg`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	failed := 0
	for _, path := range args {
		rs, err := loadRuleSet(path)
		if err == nil {
			var p *rules.Program
			if p, err = rules.Compile(rs); err == nil {
				fmt.Fprintf(w, "✓ %s\n", path)
				describeProgram(cmd, p)
				continue
			}
		}
		failed++
		fmt.Fprintf(w, "✗ %s: %v\n", path, err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d rule files failed", failed, len(args))
	}
	return nil
}

func describeProgram(cmd *cobra.Command, p *rules.Program) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "  clauses: %d\n", len(p.Clauses()))
	for _, name := range p.Derived() {
		arity, _ := p.Arity(name)
		fmt.Fprintf(w, "  derived: %s/%d\n", name, arity)
	}
	for _, name := range p.Free() {
		arity, _ := p.Arity(name)
		fmt.Fprintf(w, "  free:    %s/%d\n", name, arity)
	}
	for i, s := range eval.Stratify(p, nil, p.Derived()) {
		kind := ""
		if s.Recursive {
			kind = " (recursive)"
		}
		fmt.Fprintf(w, "  stratum %d: %s%s\n", i, strings.Join(s.Predicates, ", "), kind)
	}
}
