package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"recap/internal/config"
	"recap/internal/enrich"
	"recap/internal/pipeline"
	"recap/internal/store"
)

func newConfigDoctorCommand(ctx *commandContext) *cobra.Command {
	var ping bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the configuration and its collaborators end to end",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			failed := false

			report := func(label string, kind statusKind, message string) {
				if kind == statusError {
					failed = true
				}
				fmt.Fprintln(out, renderStatusLine(label, kind, message, colorize))
			}

			report("config", statusOK, "loaded and valid")
			checkStore(cfg, report)
			checkProvider(cmd, cfg, ping, report)
			checkNotifications(cfg, report)

			if failed {
				return errors.New("doctor found problems")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&ping, "ping", false, "Probe the enrichment provider with a live request")
	return cmd
}

func checkStore(cfg *config.Config, report func(string, statusKind, string)) {
	st, err := store.Open(cfg)
	if err != nil {
		report("store", statusError, err.Error())
		return
	}
	defer st.Close()
	report("store", statusOK, fmt.Sprintf("%s backend ready", cfg.Store.Backend))
}

func checkProvider(cmd *cobra.Command, cfg *config.Config, ping bool, report func(string, statusKind, string)) {
	if strings.TrimSpace(cfg.Enrichment.APIKey) == "" {
		report("provider", statusError, "enrichment.api_key is not set")
		return
	}
	provider, err := pipeline.NewProvider(cfg.Enrichment)
	if err != nil {
		report("provider", statusError, err.Error())
		return
	}
	if !ping {
		report("provider", statusOK, fmt.Sprintf("%s configured (use --ping for a live probe)", provider.Name()))
		return
	}
	checker, ok := provider.(enrich.HealthChecker)
	if !ok {
		report("provider", statusWarn, fmt.Sprintf("%s does not support health probes", provider.Name()))
		return
	}
	if err := checker.HealthCheck(cmd.Context()); err != nil {
		report("provider", statusError, err.Error())
		return
	}
	report("provider", statusOK, fmt.Sprintf("%s reachable", provider.Name()))
}

func checkNotifications(cfg *config.Config, report func(string, statusKind, string)) {
	if strings.TrimSpace(cfg.Notifications.Topic) == "" {
		report("notifications", statusInfo, "disabled (no topic configured)")
		return
	}
	report("notifications", statusOK, "topic configured")
}
