package billing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/soyjavierquiroz/kurukin-core/ledger"
	"github.com/soyjavierquiroz/kurukin-core/store"
)

// Applier applies normalized membership events to the ledger and the
// subscription state.
type Applier struct {
	ledger *ledger.Service
	subs   store.SubscriptionStore
	rules  []Rule
	logger *slog.Logger
}

// NewApplier creates an Applier. Nil or empty rules fall back to the
// shipped defaults.
func NewApplier(l *ledger.Service, subs store.SubscriptionStore, rules []Rule, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	rules = SanitizeRules(rules)
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Applier{ledger: l, subs: subs, rules: rules, logger: logger}
}

// Rules returns the active plan-to-credit rules.
func (a *Applier) Rules() []Rule { return a.rules }

// Handle routes one event. Unknown events are ignored without error; a
// repeated transaction is a no-op success.
func (a *Applier) Handle(ctx context.Context, ev *Event) (*ledger.Result, error) {
	switch ev.Kind {
	case TransactionCompleted:
		return a.applyTransaction(ctx, ev)
	case SubscriptionInactive:
		return nil, a.applyLapse(ctx, ev)
	default:
		a.logger.Debug("ignoring membership event", "kind", ev.Kind)
		return nil, nil
	}
}

func (a *Applier) applyTransaction(ctx context.Context, ev *Event) (*ledger.Result, error) {
	if ev.TenantID == "" {
		return nil, fmt.Errorf("transaction event without tenant reference")
	}
	if ev.Status != "" && ev.Status != "complete" && ev.Status != "completed" {
		a.logger.Debug("skipping non-complete transaction",
			"tenant_id", ev.TenantID, "status", ev.Status)
		return nil, nil
	}

	rule, ok := FindRule(a.rules, ev.ProductID)
	if !ok || !rule.Enabled {
		a.logger.Info("no credit rule for product",
			"tenant_id", ev.TenantID, "product_id", ev.ProductID)
		return nil, nil
	}
	amount, err := rule.Amount()
	if err != nil {
		return nil, err
	}

	dedupeRef := "mepr_txn:" + ev.TransactionID
	if ev.TransactionID == "" {
		return nil, fmt.Errorf("transaction event without transaction id")
	}
	source := "memberpress_purchase"
	if ev.SubscriptionID != "" {
		source = "memberpress_renewal"
	}

	res, err := a.ledger.AddCredits(ctx, ev.TenantID, amount, ledger.Movement{
		Source:    source,
		DedupeRef: dedupeRef,
		Note:      rule.Label,
	})
	if err != nil {
		return nil, err
	}

	// A completed payment proves the subscription is alive again.
	if err := a.subs.SetActive(ctx, ev.TenantID, true); err != nil {
		a.logger.Error("failed to mark subscription active",
			"tenant_id", ev.TenantID, "error", err)
	}
	if err := a.ledger.ClearGrace(ctx, ev.TenantID); err != nil {
		a.logger.Error("failed to clear grace window",
			"tenant_id", ev.TenantID, "error", err)
	}
	return &res, nil
}

func (a *Applier) applyLapse(ctx context.Context, ev *Event) error {
	if ev.TenantID == "" {
		return fmt.Errorf("subscription event without tenant reference")
	}
	if err := a.subs.SetActive(ctx, ev.TenantID, false); err != nil {
		return err
	}
	return a.ledger.StartGrace(ctx, ev.TenantID)
}
