package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"deduce/internal/config"
	"deduce/internal/infer"
	"deduce/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	timeout    time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "deduce",
	Short: "deduce - recursive rule inference over relations",
	Long: `deduce evaluates Datalog-style rule sets to a least fixpoint.

Rules are written in Mangle syntax. Base relations come from YAML datasets,
SQLite tables, or relations derived and saved by an earlier run.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", configPath, err)
		}

		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if verbose {
			logging.SetBase(logger)
		} else if err := logging.Initialize(loggingOptions(cfg.Logging)); err != nil {
			return err
		}
		if err := logging.InitAudit(cfg.Logging.AuditFile); err != nil {
			return err
		}
		logging.Boot("config loaded from %s", configPath)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAudit()
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "deduce.yaml", "Config file")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Evaluation timeout (overrides engine.eval_timeout)")

	rootCmd.AddCommand(inferCmd, checkCmd, whyCmd, watchCmd)
}

func loggingOptions(lc config.LoggingConfig) logging.Options {
	return logging.Options{
		DebugMode:  lc.DebugMode,
		Level:      lc.Level,
		JSONFormat: lc.Format == "json",
		File:       lc.File,
		Enabled:    lc.IsCategoryEnabled,
	}
}

// engineConfig maps the loaded config and flags onto the engine.
func engineConfig() infer.Config {
	ec := cfg.Engine
	ic := infer.Config{
		MaxIterations:    ec.MaxIterations,
		SemiNaive:        ec.SemiNaive && !naive,
		Trace:            ec.Trace,
		CompileCacheSize: ec.CompileCacheSize,
		NestedDepth:      ec.NestedDepth,
		EvalTimeout:      cfg.GetEvalTimeout(),
		BatchConcurrency: ec.BatchConcurrency,
	}
	if timeout > 0 {
		ic.EvalTimeout = timeout
	}
	return ic
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
