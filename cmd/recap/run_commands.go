package main

import (
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"recap/internal/fetch"
	"recap/internal/ledger"
	"recap/internal/pipeline"
	"recap/internal/store"
)

type runFlags struct {
	limit        int
	sinceDays    int
	instructions string
	skipCaptions bool
	jsonOut      bool
}

func (f *runFlags) register(cmd *cobra.Command, withLimit bool) {
	if withLimit {
		cmd.Flags().IntVarP(&f.limit, "limit", "n", 0, "Maximum items per channel (0 uses the configured default)")
		cmd.Flags().IntVar(&f.sinceDays, "since", 0, "Only include items published in the last N days")
	}
	cmd.Flags().StringVarP(&f.instructions, "instructions", "i", "", "Custom enrichment instructions (forces regeneration)")
	cmd.Flags().BoolVar(&f.skipCaptions, "no-captions", false, "Fetch metadata only; skip caption download and enrichment")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "Emit JSON instead of a table")
}

func (f *runFlags) window() fetch.Window {
	if f.sinceDays <= 0 {
		return fetch.Window{}
	}
	return fetch.Window{From: time.Now().AddDate(0, 0, -f.sinceDays)}
}

func newDigestCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "digest",
		Short: "Run the bulk digest over the account's subscribed channels",
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
				locators := make([]fetch.Locator, 0, len(channels))
				for _, channel := range channels {
					if channel.ExternalID == "" {
						fmt.Fprintf(cmd.ErrOrStderr(), "Skipping channel %q: no external id\n", channel.Name)
						continue
					}
					locators = append(locators, fetch.Locator{
						Kind:      fetch.LocatorChannel,
						ChannelID: channel.ExternalID,
						Limit:     flags.limit,
					})
				}
				if len(locators) == 0 {
					return fmt.Errorf("account %s has no subscribed channels; add one with `recap channels add`", account)
				}
				return executeRun(cmd, rt, rt.quota, pipeline.Request{
					Account:      account,
					Kind:         pipeline.RunDigest,
					Locators:     locators,
					Instructions: flags.instructions,
					DateWindow:   flags.window(),
					SkipCaptions: flags.skipCaptions,
				}, flags.jsonOut)
			})
		},
	}

	flags.register(cmd, true)
	return cmd
}

func newChannelCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "channel <channel-id-or-url>...",
		Short: "Enrich the latest items from one or more channels",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			account, err := ctx.requireAccount()
			if err != nil {
				return err
			}
			locators := make([]fetch.Locator, 0, len(args))
			for _, arg := range args {
				channelID, err := resolveChannelID(arg)
				if err != nil {
					return err
				}
				locators = append(locators, fetch.Locator{
					Kind:      fetch.LocatorChannel,
					ChannelID: channelID,
					Limit:     flags.limit,
				})
			}
			return ctx.withRuntime(func(rt *runtime) error {
				return executeRun(cmd, rt, rt.quota, pipeline.Request{
					Account:      account,
					Kind:         pipeline.RunChannel,
					Locators:     locators,
					Instructions: flags.instructions,
					DateWindow:   flags.window(),
					SkipCaptions: flags.skipCaptions,
				}, flags.jsonOut)
			})
		},
	}

	flags.register(cmd, true)
	return cmd
}

func newURLCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "url <video-url>...",
		Short: "Enrich one or more videos by URL",
		Long: "Enrich one or more videos by URL. Without --account the run draws on\n" +
			"the machine-local guest allowance instead of an account's plan.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			locators := make([]fetch.Locator, 0, len(args))
			for _, arg := range args {
				if _, err := fetch.ParseVideoID(arg); err != nil {
					return err
				}
				locators = append(locators, fetch.Locator{Kind: fetch.LocatorURL, URL: arg})
			}
			return ctx.withRuntime(func(rt *runtime) error {
				account := ctx.account()
				quota := pipeline.Quota(rt.quota)
				if account == "" {
					account = guestFingerprint()
					quota = ledger.NewGuestLedger(rt.store, rt.cfg.Guest, rt.logger)
					fmt.Fprintln(cmd.ErrOrStderr(), "No account given; using the guest allowance")
				}
				return executeRun(cmd, rt, quota, pipeline.Request{
					Account:      account,
					Kind:         pipeline.RunURL,
					Locators:     locators,
					Instructions: flags.instructions,
					SkipCaptions: flags.skipCaptions,
				}, flags.jsonOut)
			})
		},
	}

	flags.register(cmd, false)
	return cmd
}

func executeRun(cmd *cobra.Command, rt *runtime, quota pipeline.Quota, request pipeline.Request, jsonOut bool) error {
	p, err := rt.buildPipeline(quota)
	if err != nil {
		return err
	}
	outcome, err := p.Execute(cmd.Context(), request)
	if err != nil {
		return err
	}
	if jsonOut {
		return writeOutcomeJSON(cmd, outcome)
	}
	printOutcome(cmd, outcome)
	return nil
}

func resolveChannelID(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if strings.Contains(arg, "/") {
		return fetch.ParseChannelID(arg)
	}
	if arg == "" {
		return "", fmt.Errorf("empty channel reference")
	}
	return arg, nil
}

// guestFingerprint derives a stable machine-local key so repeated guest
// invocations share one allowance.
func guestFingerprint() string {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	username := ""
	if current, err := user.Current(); err == nil {
		username = current.Username
	}
	return ledger.Fingerprint(host, username)
}

func writeOutcomeJSON(cmd *cobra.Command, outcome *pipeline.Outcome) error {
	type jsonEntity struct {
		ContentID string `json:"content_id"`
		Title     string `json:"title"`
		Channel   string `json:"channel,omitempty"`
		Summary   string `json:"summary"`
	}
	entities := make([]jsonEntity, 0, len(outcome.Produced))
	for _, entity := range outcome.Produced {
		entities = append(entities, jsonEntity{
			ContentID: entity.ContentID,
			Title:     entity.Title,
			Channel:   channelDisplay(entity),
			Summary:   entity.Summary,
		})
	}
	payload := map[string]any{
		"run_token": outcome.RunToken,
		"produced":  entities,
		"failed":    outcome.FailedContentIDs,
	}
	if outcome.Record != nil {
		payload["item_count"] = outcome.Record.ItemCount
		payload["duration_seconds"] = outcome.Record.DurationSeconds
	}
	return writeJSON(cmd, payload)
}

func printOutcome(cmd *cobra.Command, outcome *pipeline.Outcome) {
	out := cmd.OutOrStdout()
	if len(outcome.Produced) == 0 && len(outcome.FailedContentIDs) == 0 {
		fmt.Fprintln(out, "Nothing new; quota untouched")
		return
	}

	rows := make([][]string, 0, len(outcome.Produced))
	for _, entity := range outcome.Produced {
		rows = append(rows, []string{
			entity.ContentID,
			entity.Title,
			channelDisplay(entity),
			formatDuration(entity.DurationSeconds),
		})
	}
	if len(rows) > 0 {
		fmt.Fprintln(out, renderTable(
			[]string{"Content", "Title", "Channel", "Length"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
		))
	}
	fmt.Fprintf(out, "Produced %d summaries", len(outcome.Produced))
	if len(outcome.FailedContentIDs) > 0 {
		fmt.Fprintf(out, ", %d failed (%s)", len(outcome.FailedContentIDs), strings.Join(outcome.FailedContentIDs, ", "))
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Run token: %s\n", outcome.RunToken)
}

func channelDisplay(entity *store.Entity) string {
	if entity.ChannelName != "" {
		return entity.ChannelName
	}
	return entity.ChannelLabel
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	if d >= time.Hour {
		return fmt.Sprintf("%.1fh", d.Hours())
	}
	if d >= time.Minute {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}
