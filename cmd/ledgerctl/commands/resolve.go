package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"payrecon/internal/ledger"
	"payrecon/internal/money"
)

func NewResolveCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <transaction-id> completed|failed",
		Short: "Close a pending payout by hand",
		Long: `Settle a payout the poller gave up on. "completed" keeps the debit and needs
the gateway's payout id on record; "failed" credits the amount back.`,
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(ledger.StatusCompleted), string(ledger.StatusFailed)},
		RunE: func(cmd *cobra.Command, args []string) error {
			status := ledger.Status(args[1])
			if status != ledger.StatusCompleted && status != ledger.StatusFailed {
				return fmt.Errorf("status must be completed or failed, got %q", args[1])
			}
			a, err := e.App(cmd.Context())
			if err != nil {
				return err
			}
			tx, err := a.Payout.Resolve(cmd.Context(), args[0], status)
			if err != nil {
				return fmt.Errorf("failed to resolve %s: %w", args[0], err)
			}
			acc, err := a.Store.GetAccount(cmd.Context(), tx.AccountID)
			if err != nil {
				return fmt.Errorf("failed to get account %s: %w", tx.AccountID, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), pterm.Success.Sprintf("payout %s is %s, %s balance: %s", tx.ID, tx.Status, acc.ID, money.Format(acc.Balance)))
			return nil
		},
	}
}
