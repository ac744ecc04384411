package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/cardex/internal/config"
	logpkg "github.com/kailas-cloud/cardex/internal/logger"
	"github.com/kailas-cloud/cardex/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries what every subcommand needs after the root pre-run.
type app struct {
	env    string
	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "cardex",
		Short: "Semantic card retrieval",
		Long: `cardex embeds note cards and finds an owner's closest card for a free-text query.

Examples:
  cardex serve
  cardex store --id c1 --title "Rust ownership" --type note --owner u1
  cardex query --owner u1 "rust ownership"`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version.Version, version.Commit, version.Date),
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.env, "env", config.GetEnv(),
		"environment; selects config/{env}.yaml (default from ENV or local)")

	root.AddCommand(newServeCmd(a), newStoreCmd(a), newQueryCmd(a))
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logpkg.NewLogger(a.env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}
