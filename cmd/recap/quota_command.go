package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newQuotaCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show the account's remaining enrichment capacity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := ctx.requireAccount()
			if err != nil {
				return err
			}
			return ctx.withRuntime(func(rt *runtime) error {
				record, err := rt.store.GetAccount(cmd.Context(), account)
				if err != nil {
					return err
				}
				if record == nil {
					return fmt.Errorf("account %s not found", account)
				}
				remaining, err := rt.quota.RemainingCapacity(cmd.Context(), account)
				if err != nil {
					return err
				}
				plan, ok := rt.cfg.Plans[record.PlanTier]
				if !ok {
					return fmt.Errorf("no plan configured for tier %q", record.PlanTier)
				}

				if jsonOut {
					return writeJSON(cmd, map[string]any{
						"account":   account,
						"tier":      record.PlanTier,
						"period":    plan.Period,
						"limit":     plan.Limit,
						"remaining": remaining,
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable(
					[]string{"Account", "Tier", "Period", "Limit", "Remaining"},
					[][]string{{
						account,
						record.PlanTier,
						plan.Period,
						fmt.Sprintf("%d", plan.Limit),
						fmt.Sprintf("%d", remaining),
					}},
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of a table")
	return cmd
}
