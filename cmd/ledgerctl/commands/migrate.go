package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func NewMigrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending ledger schema migrations",
		Long: `Open the configured ledger, which applies any pending schema migrations,
and check that it answers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.App(cmd.Context())
			if err != nil {
				return err
			}
			if err := a.Store.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("ledger did not answer: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), pterm.Success.Sprintf("ledger schema is up to date (%s)", a.Config.Database.Driver))
			return nil
		},
	}
}
