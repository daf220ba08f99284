package ledger

import (
	"context"
	"fmt"

	"recap/internal/config"
	"recap/internal/services"
	"recap/internal/store"
)

// TierReader resolves the plan tier recorded for an account.
type TierReader interface {
	GetAccount(ctx context.Context, id string) (*store.Account, error)
}

// ConfigOracle resolves plans from the configured plan table and the
// account's recorded tier. It is the default BillingOracle; a billing
// service integration would replace it behind the same interface.
type ConfigOracle struct {
	accounts TierReader
	plans    map[string]config.Plan
}

// NewConfigOracle creates an oracle over the configured plan table.
func NewConfigOracle(accounts TierReader, plans map[string]config.Plan) *ConfigOracle {
	return &ConfigOracle{accounts: accounts, plans: plans}
}

// PlanOf implements BillingOracle.
func (o *ConfigOracle) PlanOf(ctx context.Context, account string) (Plan, error) {
	record, err := o.accounts.GetAccount(ctx, account)
	if err != nil {
		return Plan{}, services.Wrap(services.ErrTransient, "ledger", "plan_of", "failed to load account", err)
	}
	if record == nil {
		return Plan{}, services.Wrap(services.ErrNotFound, "ledger", "plan_of",
			fmt.Sprintf("account %s not found", account), nil)
	}
	plan, ok := o.plans[record.PlanTier]
	if !ok {
		return Plan{}, services.Wrap(services.ErrConfiguration, "ledger", "plan_of",
			fmt.Sprintf("no plan configured for tier %q", record.PlanTier), nil)
	}
	period := PeriodMonthly
	if Period(plan.Period) == PeriodDaily {
		period = PeriodDaily
	}
	return Plan{Tier: record.PlanTier, Period: period, Limit: plan.Limit}, nil
}

// StaticOracle returns the same plan for every account. Used by tests and
// for fixed-tier deployments.
type StaticOracle struct {
	Plan Plan
}

// PlanOf implements BillingOracle.
func (o StaticOracle) PlanOf(context.Context, string) (Plan, error) {
	return o.Plan, nil
}

var (
	_ BillingOracle = (*ConfigOracle)(nil)
	_ BillingOracle = StaticOracle{}
	_ UsageStore    = (*store.Store)(nil)
)
