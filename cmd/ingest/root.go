package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/FACorreiaa/statement-ledger/pkg/config"
)

// version is set with -ldflags at build time.
var version = "dev"

type app struct {
	envFile string
	cfg     *config.Config
	logger  *slog.Logger
}

// newRootCommand creates the root CLI command with all subcommands registered.
func newRootCommand() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:     "ingest",
		Short:   "Import bank statements into a categorized ledger",
		Version: version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.envFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = cfg.Log.NewLogger()
			slog.SetDefault(a.logger)
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	rootCmd.AddCommand(
		newMigrateCommand(a),
		newDetectCommand(a),
		newImportCommand(a),
		newCategoriesCommand(a),
		newRecategorizeCommand(a),
		newBatchesCommand(a),
		newExportCommand(a),
		newSummaryCommand(a),
		newServeCommand(a),
	)
	return rootCmd
}

// run builds the dependencies, calls fn and releases them.
func (a *app) run(ctx context.Context, fn func(ctx context.Context, deps *Dependencies) error) error {
	deps, err := InitDependencies(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	defer deps.Cleanup()
	return fn(ctx, deps)
}
