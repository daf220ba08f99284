package main

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"recap/internal/config"
	"recap/internal/fetch"
	"recap/internal/ledger"
	"recap/internal/logging"
	"recap/internal/notifications"
	"recap/internal/pipeline"
	"recap/internal/store"
)

type commandContext struct {
	configFlag  *string
	accountFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, accountFlag *string) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		accountFlag: accountFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) account() string {
	if c.accountFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.accountFlag)
}

func (c *commandContext) requireAccount() (string, error) {
	account := c.account()
	if account == "" {
		return "", errors.New("an account is required; pass --account")
	}
	return account, nil
}

// runtime bundles the assembled collaborators for one command invocation.
// The store is closed when withRuntime returns.
type runtime struct {
	cfg    *config.Config
	store  *store.Store
	logger *slog.Logger
	quota  *ledger.Ledger
}

func (c *commandContext) withRuntime(fn func(*runtime) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	rt := &runtime{
		cfg:    cfg,
		store:  st,
		logger: logger,
		quota:  ledger.New(st, ledger.NewConfigOracle(st, cfg.Plans), logger),
	}
	return fn(rt)
}

// buildPipeline wires the full execution stack over the given quota. The
// account ledger and the guest ledger both fit the same slot.
func (rt *runtime) buildPipeline(quota pipeline.Quota) (*pipeline.Pipeline, error) {
	provider, err := pipeline.NewProvider(rt.cfg.Enrichment)
	if err != nil {
		return nil, err
	}
	return pipeline.New(pipeline.Deps{
		Quota:      quota,
		Fetcher:    fetch.NewClient(rt.cfg.Fetch, rt.logger),
		Entities:   rt.store,
		Reconciler: pipeline.NewReconciler(quota, rt.store, rt.logger),
		Provider:   provider,
		Notifier:   notifications.NewService(rt.cfg.Notifications),
		Enrichment: rt.cfg.Enrichment,
		Fetch:      rt.cfg.Fetch,
		Logger:     rt.logger,
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
