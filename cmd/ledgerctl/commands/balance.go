package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"payrecon/internal/money"
)

func NewBalanceCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <account-id>",
		Short: "Show an account balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.App(cmd.Context())
			if err != nil {
				return err
			}
			acc, err := a.Store.GetAccount(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get account %s: %w", args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), pterm.Info.Sprintf("%s balance: %s %s", acc.ID, money.Format(acc.Balance), a.Config.Gateway.Currency))
			return nil
		},
	}
}
