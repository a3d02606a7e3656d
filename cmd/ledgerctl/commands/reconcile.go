package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

type reconcileFlags struct {
	NoWait    bool
	SkipStuck bool
}

func NewReconcileCmd(e *env) *cobra.Command {
	flags := &reconcileFlags{}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one recovery sweep over pending payouts",
		Long: `Hand submitted payouts to the poller, resubmit unacknowledged ones with their
original token and escalate those past the resubmit deadline. Payouts already
escalated as stuck are polled again unless --skip-stuck is set. Waits for the
started pollers unless --no-wait is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.App(cmd.Context())
			if err != nil {
				return err
			}
			sweep := a.Payout.RecoverAll
			if flags.SkipStuck {
				sweep = a.Payout.Recover
			}
			report, err := sweep(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
			if !flags.NoWait {
				a.Pollers.Wait()
			}

			out, err := pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
				{"Tracked", "Resubmitted", "Compensated", "Escalated", "Waiting", "Skipped"},
				{
					fmt.Sprint(report.Tracked),
					fmt.Sprint(report.Resubmitted),
					fmt.Sprint(report.Compensated),
					fmt.Sprint(report.Escalated),
					fmt.Sprint(report.Waiting),
					fmt.Sprint(report.Skipped),
				},
			}).Srender()
			if err != nil {
				return fmt.Errorf("failed to render table: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			fmt.Fprintln(cmd.OutOrStdout(), pterm.Success.Sprint("sweep finished"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&flags.NoWait, "no-wait", false, "Return without waiting for started pollers")
	cmd.Flags().BoolVar(&flags.SkipStuck, "skip-stuck", false, "Leave payouts already escalated as stuck alone")

	return cmd
}
