package commands

import (
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"payrecon/internal/ledger"
)

type stuckFlags struct {
	OlderThan time.Duration
}

func NewStuckCmd(e *env) *cobra.Command {
	flags := &stuckFlags{}

	cmd := &cobra.Command{
		Use:   "stuck",
		Short: "List pending payouts older than a threshold",
		Long: `List payouts still pending after --older-than. Rows without an external
ref were never acknowledged by the gateway.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.OlderThan < 0 {
				return fmt.Errorf("--older-than must not be negative")
			}
			a, err := e.App(cmd.Context())
			if err != nil {
				return err
			}
			now := time.Now()
			txs, err := a.Store.ListPending(cmd.Context(), ledger.TypePayout, now.Add(-flags.OlderThan))
			if err != nil {
				return fmt.Errorf("failed to list pending payouts: %w", err)
			}
			if len(txs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), pterm.Success.Sprintf("no payouts pending for more than %s", flags.OlderThan))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), pterm.Warning.Sprintf("%d payouts pending for more than %s", len(txs), flags.OlderThan))
			return renderTransactions(cmd.OutOrStdout(), txs, now)
		},
	}

	cmd.Flags().DurationVar(&flags.OlderThan, "older-than", 10*time.Minute, "Only list payouts created before now minus this duration")

	return cmd
}
