package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"payrecon/internal/ledger"
	"payrecon/internal/money"
)

type historyFlags struct {
	Limit int
}

type HistoryCommandRunner struct {
	env   *env
	flags *historyFlags
}

func NewHistoryCmd(e *env) *cobra.Command {
	flags := &historyFlags{}

	cmd := &cobra.Command{
		Use:   "history <account-id>",
		Short: "List an account's transactions, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runner := &HistoryCommandRunner{env: e, flags: flags}
			return runner.Run(cmd, args[0])
		},
	}

	cmd.Flags().IntVarP(&flags.Limit, "limit", "n", ledger.DefaultListLimit, "Maximum number of transactions to show")

	return cmd
}

func (r *HistoryCommandRunner) Run(cmd *cobra.Command, accountID string) error {
	a, err := r.env.App(cmd.Context())
	if err != nil {
		return err
	}
	if _, err := a.Store.GetAccount(cmd.Context(), accountID); err != nil {
		return fmt.Errorf("failed to get account %s: %w", accountID, err)
	}
	txs, err := ledger.Collect(a.Store.ListTransactions(cmd.Context(), accountID, r.flags.Limit))
	if err != nil {
		return fmt.Errorf("failed to list transactions: %w", err)
	}
	if len(txs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), pterm.Info.Sprintf("%s has no transactions", accountID))
		return nil
	}
	return renderTransactions(cmd.OutOrStdout(), txs, time.Time{})
}

// renderTransactions prints txs as a table. A non-zero now adds an age column.
func renderTransactions(w io.Writer, txs []*ledger.Transaction, now time.Time) error {
	header := []string{"ID", "Account", "Type", "Amount", "Status", "External ref", "Created"}
	if !now.IsZero() {
		header = append(header, "Age")
	}
	data := pterm.TableData{header}
	for _, tx := range txs {
		row := []string{
			tx.ID,
			tx.AccountID,
			string(tx.Type),
			money.Format(tx.Amount),
			string(tx.Status),
			tx.ExternalRef,
			tx.CreatedAt.UTC().Format(time.RFC3339),
		}
		if !now.IsZero() {
			row = append(row, now.Sub(tx.CreatedAt).Truncate(time.Second).String())
		}
		data = append(data, row)
	}
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	fmt.Fprintln(w, out)
	return nil
}
