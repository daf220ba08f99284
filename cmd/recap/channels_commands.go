package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"recap/internal/store"
)

func newChannelsCommand(ctx *commandContext) *cobra.Command {
	channelsCmd := &cobra.Command{
		Use:   "channels",
		Short: "Manage the account's subscribed channels",
	}

	channelsCmd.AddCommand(newChannelsAddCommand(ctx))
	channelsCmd.AddCommand(newChannelsListCommand(ctx))

	return channelsCmd
}

func newChannelsAddCommand(ctx *commandContext) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "add <channel-id-or-url>",
		Short: "Subscribe the account to a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := ctx.requireAccount()
			if err != nil {
				return err
			}
			externalID, err := resolveChannelID(args[0])
			if err != nil {
				return err
			}
			url := ""
			if strings.Contains(args[0], "/") {
				url = strings.TrimSpace(args[0])
			}
			return ctx.withRuntime(func(rt *runtime) error {
				if err := rt.store.AddChannel(cmd.Context(), &store.Channel{
					Account:    account,
					Name:       strings.TrimSpace(name),
					URL:        url,
					ExternalID: externalID,
				}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Subscribed %s to channel %s\n", account, externalID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name for attribution matching")
	return cmd
}

func newChannelsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the account's subscribed channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := ctx.requireAccount()
			if err != nil {
				return err
			}
			return ctx.withRuntime(func(rt *runtime) error {
				channels, err := rt.store.ChannelsByAccount(cmd.Context(), account)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, channels)
				}
				out := cmd.OutOrStdout()
				if len(channels) == 0 {
					fmt.Fprintf(out, "No channels subscribed for %s\n", account)
					return nil
				}
				rows := make([][]string, 0, len(channels))
				for _, channel := range channels {
					rows = append(rows, []string{
						channel.ExternalID,
						channel.Name,
						channel.URL,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Channel", "Name", "URL"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of a table")
	return cmd
}
