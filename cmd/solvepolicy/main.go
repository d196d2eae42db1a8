// Command solvepolicy computes the regularized target policy for a single node.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/sw965/mctspo/internal/config"
	"github.com/sw965/mctspo/regpolicy"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	verbose    bool
	configPath string

	prior  []float32
	values []float32
	lambda float32
	c      float32
	visits int

	logger *zap.Logger
)

var rootCmd = newRootCmd()

// newRootCmd builds the command with its flags bound to the package globals.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "solvepolicy",
		Short: "Solve the regularized MCTS policy for one node",
		Long: `solvepolicy finds the dual variable alpha such that

    pi[i] = lambda * prior[i] / (alpha - values[i])

sums to one, and prints pi one action per line.

lambda is taken from --lambda, or computed as c * sqrt(N) / (|A| + N)
from --c and --visits.`,
		Example: `  solvepolicy --prior 0.5,0.5 --values 1,0 --lambda 0.1
  solvepolicy --prior 0.2,0.3,0.5 --values 0.1,-0.4,0.7 --visits 40`,
		Args: cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := zap.NewProductionConfig()
			if verbose {
				cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			var err error
			logger, err = cfg.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
		RunE: runSolve,
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().StringVar(&configPath, "config", "solvepolicy.yaml", "Config file (defaults are used when missing)")

	cmd.Flags().Float32SliceVar(&prior, "prior", nil, "Prior policy, comma separated (required)")
	cmd.Flags().Float32SliceVar(&values, "values", nil, "Value per action, comma separated (required)")
	cmd.Flags().Float32Var(&lambda, "lambda", 0, "Regularization coefficient")
	cmd.Flags().Float32Var(&c, "c", 0, "Search coefficient used with --visits (default from config)")
	cmd.Flags().IntVar(&visits, "visits", 0, "Total visits N of the node")
	for _, name := range []string{"prior", "values"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(fmt.Sprintf("failed to mark --%s required: %v", name, err))
		}
	}
	return cmd
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// resolveLambda picks --lambda when given, otherwise derives it from the search coefficient.
func resolveLambda(cmd *cobra.Command, cfg *config.Config) (float32, error) {
	if cmd.Flags().Changed("lambda") {
		return lambda, nil
	}

	coef := cfg.Search.C
	if cmd.Flags().Changed("c") {
		coef = c
	}
	l, err := regpolicy.Lambda(coef, visits, len(prior))
	if err != nil {
		return 0, err
	}
	if l == 0 {
		return 0, fmt.Errorf("lambda is zero: pass --lambda or --visits > 0")
	}
	logger.Debug("Derived lambda",
		zap.Float32("c", coef),
		zap.Int("visits", visits),
		zap.Float32("lambda", l))
	return l, nil
}

func runSolve(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.Debug("Loaded config",
		zap.String("path", configPath),
		zap.Float32("epsilon", cfg.Solver.Epsilon),
		zap.Int("max_iterations", cfg.Solver.MaxIterations))

	l, err := resolveLambda(cmd, cfg)
	if err != nil {
		return err
	}

	pi, err := cfg.NewSolver().Solve(prior, values, l)
	if err != nil {
		logger.Error("Solve failed", zap.Int("n", len(prior)), zap.Float32("lambda", l), zap.Error(err))
		return err
	}

	var sum float32
	out := cmd.OutOrStdout()
	for i, p := range pi {
		sum += p
		fmt.Fprintf(out, "%d\t%.6g\n", i, p)
	}
	logger.Info("Solved policy",
		zap.Int("n", len(pi)),
		zap.Float32("lambda", l),
		zap.Float32("sum", sum))
	return nil
}
