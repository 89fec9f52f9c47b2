package ledger

import (
	"context"
	"time"

	"github.com/soyjavierquiroz/kurukin-core/store"
)

// Sweep expires credits for tenants whose grace deadline has passed. Each
// tenant is re-checked against the subscription state first; a tenant that
// became active again just loses the deadline, not the balance.
// Returns the number of tenants whose balance was zeroed.
func (s *Service) Sweep(ctx context.Context, now time.Time) (int, error) {
	tenants, err := s.grace.ListElapsed(ctx, now, 100)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, tenantID := range tenants {
		active := false
		if s.checker != nil {
			active, err = s.checker.Active(ctx, tenantID)
			if err != nil {
				s.logger.Error("sweep: subscription check failed, skipping tenant",
					"tenant_id", tenantID, "error", err)
				continue
			}
		}
		if active {
			if err := s.grace.Clear(ctx, tenantID); err != nil {
				s.logger.Error("sweep: failed to clear grace for active tenant",
					"tenant_id", tenantID, "error", err)
			}
			continue
		}

		before, err := s.balances.Get(ctx, tenantID)
		if err != nil {
			s.logger.Error("sweep: failed to read balance",
				"tenant_id", tenantID, "error", err)
			continue
		}
		if err := s.balances.Set(ctx, tenantID, "0.000000"); err != nil {
			s.logger.Error("sweep: failed to zero balance",
				"tenant_id", tenantID, "error", err)
			continue
		}
		if err := s.grace.Clear(ctx, tenantID); err != nil {
			s.logger.Error("sweep: failed to clear grace deadline",
				"tenant_id", tenantID, "error", err)
		}
		s.appendEntry(ctx, &store.LedgerEntry{
			TenantID:      tenantID,
			Type:          store.EntryExpired,
			Amount:        before,
			Currency:      s.currency,
			BalanceBefore: before,
			BalanceAfter:  "0.000000",
			Source:        "sweeper",
			Note:          "grace period elapsed",
		})
		s.logger.Info("credits expired", "tenant_id", tenantID, "amount", before)
		s.metrics.balanceExpired()
		expired++
	}
	return expired, nil
}

// RunSweeper runs Sweep on a fixed interval until the context is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx, time.Now()); err != nil {
				s.logger.Error("credit expiry sweep failed", "error", err)
			}
		}
	}
}
