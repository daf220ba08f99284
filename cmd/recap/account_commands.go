package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func newAccountCommand(ctx *commandContext) *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Account management",
	}

	accountCmd.AddCommand(newAccountCreateCommand(ctx))
	accountCmd.AddCommand(newAccountPlanCommand(ctx))

	return accountCmd
}

func newAccountCreateCommand(ctx *commandContext) *cobra.Command {
	var tier string
	var anchorDay int

	cmd := &cobra.Command{
		Use:   "create <account-id>",
		Short: "Create an account on a configured plan tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if id == "" {
				return fmt.Errorf("account id is required")
			}
			return ctx.withRuntime(func(rt *runtime) error {
				if _, ok := rt.cfg.Plans[tier]; !ok {
					return fmt.Errorf("unknown plan tier %q; configured tiers: %s", tier, planTiers(rt))
				}
				anchor := anchorPointer(anchorDay)
				account, err := rt.store.CreateAccount(cmd.Context(), id, tier, anchor)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created account %s on tier %s\n", account.ID, account.PlanTier)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&tier, "tier", "t", "free", "Plan tier for the new account")
	cmd.Flags().IntVar(&anchorDay, "anchor-day", 0, "Day of month the subscription began (monthly plans)")
	return cmd
}

func newAccountPlanCommand(ctx *commandContext) *cobra.Command {
	var anchorDay int

	cmd := &cobra.Command{
		Use:   "plan <account-id> <tier>",
		Short: "Move an account to a different plan tier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			tier := strings.TrimSpace(args[1])
			return ctx.withRuntime(func(rt *runtime) error {
				if _, ok := rt.cfg.Plans[tier]; !ok {
					return fmt.Errorf("unknown plan tier %q; configured tiers: %s", tier, planTiers(rt))
				}
				if err := rt.store.SetPlan(cmd.Context(), id, tier, anchorPointer(anchorDay)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Account %s moved to tier %s\n", id, tier)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&anchorDay, "anchor-day", 0, "Day of month the subscription began (monthly plans)")
	return cmd
}

func anchorPointer(day int) *int {
	if day <= 0 {
		return nil
	}
	return &day
}

func planTiers(rt *runtime) string {
	tiers := make([]string, 0, len(rt.cfg.Plans))
	for name := range rt.cfg.Plans {
		tiers = append(tiers, name)
	}
	sort.Strings(tiers)
	return strings.Join(tiers, ", ")
}
