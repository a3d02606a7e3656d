// Package commands holds the ledgerctl operator commands.
package commands

import (
	"context"
	"fmt"
	"io"
	"unicode"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"payrecon/internal/app"
	"payrecon/internal/config"
	"payrecon/kit/observability"
)

// Opener builds the application for one command run.
type Opener func(ctx context.Context, configPath string) (*app.App, func(), error)

// OpenApp loads configuration from configPath and the environment and wires
// the full application.
func OpenApp(ctx context.Context, configPath string) (*app.App, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	logger = logger.With(zap.String("process", "ledgerctl"))
	a, cleanup, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return a, func() {
		cleanup()
		_ = logger.Sync()
	}, nil
}

// env opens the application on first use so flag and usage errors never
// touch the ledger.
type env struct {
	open    Opener
	cfgFile string

	app     *app.App
	cleanup func()
}

func (e *env) App(ctx context.Context) (*app.App, error) {
	if e.app != nil {
		return e.app, nil
	}
	a, cleanup, err := e.open(ctx, e.cfgFile)
	if err != nil {
		return nil, err
	}
	e.app, e.cleanup = a, cleanup
	return a, nil
}

func (e *env) Close() {
	if e.cleanup != nil {
		e.cleanup()
		e.cleanup = nil
	}
}

// Execute runs the command line in args, writing results to out.
func Execute(ctx context.Context, args []string, out io.Writer, open Opener) error {
	e := &env{open: open}
	defer e.Close()

	root := NewRootCmd(e)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)
	return root.ExecuteContext(ctx)
}

func NewRootCmd(e *env) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "ledgerctl inspects and repairs the payment ledger",
		Long:          `ledgerctl inspects balances and history, lists stuck payouts, resolves them by hand and runs the reconciliation sweep.`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().StringVarP(&e.cfgFile, "config", "c", "", "set the config file path")

	rootCmd.AddCommand(NewMigrateCmd(e))
	rootCmd.AddCommand(NewBalanceCmd(e))
	rootCmd.AddCommand(NewHistoryCmd(e))
	rootCmd.AddCommand(NewStuckCmd(e))
	rootCmd.AddCommand(NewResolveCmd(e))
	rootCmd.AddCommand(NewReconcileCmd(e))
	return rootCmd
}

func Capitalize(s string) string {
	if len(s) == 0 {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
