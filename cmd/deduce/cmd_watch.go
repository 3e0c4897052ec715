package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"deduce/internal/logging"
	"deduce/internal/watch"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch [rules-file] [query...]",
	Short: "Re-run inference whenever the rules or datasets change",
	Long: `Runs inference once, then again each time the rules file or one of the
--data files is saved. Stops on Ctrl-C.

Example:
  deduce watch trans.mg path --data edges.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	addInputFlags(watchCmd)
	watchCmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text, yaml or json")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before re-running")
}

func runWatch(cmd *cobra.Command, args []string) error {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	ctx, stop := signal.NotifyContext(base, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rulesPath, queries := args[0], args[1:]
	out := cmd.OutOrStdout()

	rerun := func(ctx context.Context, changed []string) error {
		fmt.Fprintf(out, "--- %s ---\n", time.Now().Format(time.TimeOnly))
		res, err := inferOnce(ctx, rulesPath, queries)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			return err
		}
		for _, path := range changed {
			logging.Audit().WatchReload(path, len(res.Relations))
		}
		return writeResult(out, res, outputFormat)
	}

	files := append([]string{rulesPath}, dataFiles...)
	w, err := watch.New(files, rerun, watch.WithDebounce(watchDebounce))
	if err != nil {
		return err
	}
	w.Trigger(ctx)
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()
	logger.Info("Watching", zap.Strings("files", w.Files()))

	<-w.Done()
	return nil
}
