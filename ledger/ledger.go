// Package ledger keeps the prepaid credit bookkeeping: an append-only
// movement log, a mutable balance mirror, idempotency markers for external
// billing events, and the grace-period lifecycle after subscription lapse.
// All amounts are fixed-point decimals with exactly 6 fractional digits;
// float arithmetic never touches a balance.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/soyjavierquiroz/kurukin-core/store"
)

// Validation errors, rejected before any write.
var (
	ErrInvalidTenant = errors.New("invalid tenant")
	ErrInvalidAmount = errors.New("invalid amount")
)

// ActiveChecker answers whether a tenant's subscription is currently
// active. The expiry sweep re-checks it before zeroing a balance.
type ActiveChecker interface {
	Active(ctx context.Context, tenantID string) (bool, error)
}

// Config tunes the ledger service.
type Config struct {
	// MinRequired is the balance a tenant must strictly exceed to process
	// messages. Default "0.010000".
	MinRequired string
	// GraceDays is the grace window after a subscription lapses. Default 365.
	GraceDays int
	// Currency recorded on movements. Default "USD".
	Currency string
}

// Movement describes the bookkeeping metadata of one credit operation.
type Movement struct {
	// Type is the ledger entry type; defaults to the base credit type.
	Type string
	// Source names the originating system (membership, admin, ...).
	Source string
	// DedupeRef is the external reference that makes the operation
	// replay-safe. When set, a repeated reference is a no-op success.
	DedupeRef string
	Note      string
}

// Result reports the outcome of a credit operation.
type Result struct {
	// Balance is the tenant's balance after the operation.
	Balance string
	// Applied is false when the operation was a duplicate no-op.
	Applied bool
}

// Service implements the credit ledger.
type Service struct {
	entries  store.LedgerStore
	balances store.BalanceStore
	markers  store.MarkerStore
	grace    store.GraceStore
	checker  ActiveChecker

	minRequired decimal.Decimal
	graceDays   int
	currency    string
	logger      *slog.Logger
	metrics     *Metrics
}

// WithMetrics attaches Prometheus counters to the service.
func (s *Service) WithMetrics(m *Metrics) *Service {
	s.metrics = m
	return s
}

// New creates a ledger Service.
func New(entries store.LedgerStore, balances store.BalanceStore, markers store.MarkerStore,
	grace store.GraceStore, checker ActiveChecker, cfg Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinRequired == "" {
		cfg.MinRequired = "0.010000"
	}
	minRequired, err := decimal.NewFromString(cfg.MinRequired)
	if err != nil {
		return nil, fmt.Errorf("parse min required balance: %w", err)
	}
	if cfg.GraceDays <= 0 {
		cfg.GraceDays = 365
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	return &Service{
		entries:     entries,
		balances:    balances,
		markers:     markers,
		grace:       grace,
		checker:     checker,
		minRequired: minRequired,
		graceDays:   cfg.GraceDays,
		currency:    cfg.Currency,
		logger:      logger,
	}, nil
}

// DedupeHash derives the idempotency marker for an external reference.
func DedupeHash(ref string) string {
	sum := sha256.Sum256([]byte(ref))
	return hex.EncodeToString(sum[:])[:24]
}

// parseAmount validates and normalizes an amount to 6 fractional digits.
func parseAmount(amount string) (decimal.Decimal, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	return d.Round(6), nil
}

// AddCredits adds a positive amount to the tenant's balance. When the
// movement carries a DedupeRef that was already applied, the call returns
// the current balance with Applied=false and no error: replaying a billing
// notification is safe.
func (s *Service) AddCredits(ctx context.Context, tenantID, amount string, m Movement) (Result, error) {
	if tenantID == "" {
		return Result{}, ErrInvalidTenant
	}
	delta, err := parseAmount(amount)
	if err != nil {
		return Result{}, err
	}
	if delta.Sign() <= 0 {
		return Result{}, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}

	var hash string
	if m.DedupeRef != "" {
		hash = DedupeHash(m.DedupeRef)
		if err := s.markers.PutIfAbsent(ctx, tenantID, hash); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				balance, berr := s.balances.Get(ctx, tenantID)
				if berr != nil {
					return Result{}, berr
				}
				s.logger.Info("duplicate credit ignored",
					"tenant_id", tenantID, "ref_hash", hash)
				s.metrics.duplicateSuppressed()
				return Result{Balance: balance, Applied: false}, nil
			}
			return Result{}, err
		}
	}

	before, err := s.balances.Get(ctx, tenantID)
	if err != nil {
		s.releaseMarker(ctx, tenantID, hash)
		return Result{}, err
	}
	beforeDec, err := decimal.NewFromString(before)
	if err != nil {
		s.releaseMarker(ctx, tenantID, hash)
		return Result{}, fmt.Errorf("stored balance is corrupt: %w", err)
	}
	after := beforeDec.Add(delta).StringFixed(6)
	if err := s.balances.Set(ctx, tenantID, after); err != nil {
		s.releaseMarker(ctx, tenantID, hash)
		return Result{}, err
	}

	s.appendEntry(ctx, &store.LedgerEntry{
		TenantID:      tenantID,
		Type:          orDefault(m.Type, store.EntryCredit),
		Amount:        delta.StringFixed(6),
		Currency:      s.currency,
		BalanceBefore: beforeDec.StringFixed(6),
		BalanceAfter:  after,
		Source:        m.Source,
		Ref:           hash,
		Note:          m.Note,
	})
	s.logger.Info("credits added",
		"tenant_id", tenantID, "amount", delta.StringFixed(6), "balance", after, "source", m.Source)
	s.metrics.creditApplied()
	return Result{Balance: after, Applied: true}, nil
}

// SetCredits overwrites the tenant's balance with an absolute amount.
// Negative amounts are rejected; zero is allowed.
func (s *Service) SetCredits(ctx context.Context, tenantID, amount string, m Movement) (Result, error) {
	if tenantID == "" {
		return Result{}, ErrInvalidTenant
	}
	target, err := parseAmount(amount)
	if err != nil {
		return Result{}, err
	}
	if target.Sign() < 0 {
		return Result{}, fmt.Errorf("%w: amount must not be negative", ErrInvalidAmount)
	}

	before, err := s.balances.Get(ctx, tenantID)
	if err != nil {
		return Result{}, err
	}
	after := target.StringFixed(6)
	if err := s.balances.Set(ctx, tenantID, after); err != nil {
		return Result{}, err
	}

	s.appendEntry(ctx, &store.LedgerEntry{
		TenantID:      tenantID,
		Type:          orDefault(m.Type, store.EntryAdminSet),
		Amount:        after,
		Currency:      s.currency,
		BalanceBefore: before,
		BalanceAfter:  after,
		Source:        m.Source,
		Note:          m.Note,
	})
	s.logger.Info("balance set",
		"tenant_id", tenantID, "balance", after, "source", m.Source)
	return Result{Balance: after, Applied: true}, nil
}

// MinRequired returns the configured processing threshold as a 6-decimal
// string.
func (s *Service) MinRequired() string {
	return s.minRequired.StringFixed(6)
}

// Balance returns the tenant's current balance as a 6-decimal string.
func (s *Service) Balance(ctx context.Context, tenantID string) (string, error) {
	if tenantID == "" {
		return "", ErrInvalidTenant
	}
	return s.balances.Get(ctx, tenantID)
}

// CanProcess reports whether the tenant may process messages: the balance
// must strictly exceed the configured minimum. Equality is not enough.
func (s *Service) CanProcess(ctx context.Context, tenantID string) (bool, string, error) {
	balance, err := s.Balance(ctx, tenantID)
	if err != nil {
		return false, "", err
	}
	d, err := decimal.NewFromString(balance)
	if err != nil {
		return false, "", fmt.Errorf("stored balance is corrupt: %w", err)
	}
	return d.GreaterThan(s.minRequired), balance, nil
}

// History returns the tenant's most recent ledger entries.
func (s *Service) History(ctx context.Context, tenantID string, limit int) ([]*store.LedgerEntry, error) {
	if tenantID == "" {
		return nil, ErrInvalidTenant
	}
	return s.entries.ListByTenant(ctx, tenantID, limit)
}

// StartGrace opens the grace window for a tenant whose subscription
// lapsed. The balance stays intact until the window elapses.
func (s *Service) StartGrace(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return ErrInvalidTenant
	}
	until := time.Now().Add(time.Duration(s.graceDays) * 24 * time.Hour)
	if err := s.grace.Set(ctx, tenantID, until); err != nil {
		return err
	}
	s.appendEntry(ctx, &store.LedgerEntry{
		TenantID: tenantID,
		Type:     store.EntryGraceStart,
		Amount:   "0.000000",
		Currency: s.currency,
		Source:   "membership",
		Note:     "grace period until " + until.UTC().Format(time.RFC3339),
	})
	s.logger.Info("grace period started", "tenant_id", tenantID, "until", until)
	return nil
}

// ClearGrace closes the grace window, typically after a new purchase.
func (s *Service) ClearGrace(ctx context.Context, tenantID string) error {
	if tenantID == "" {
		return ErrInvalidTenant
	}
	return s.grace.Clear(ctx, tenantID)
}

// GraceDeadline returns the tenant's grace deadline, if any.
func (s *Service) GraceDeadline(ctx context.Context, tenantID string) (time.Time, bool, error) {
	return s.grace.Get(ctx, tenantID)
}

// releaseMarker undoes an idempotency claim after a failed write, so the
// external event can be retried.
func (s *Service) releaseMarker(ctx context.Context, tenantID, hash string) {
	if hash == "" {
		return
	}
	if err := s.markers.Delete(ctx, tenantID, hash); err != nil {
		s.logger.Error("failed to release idempotency marker",
			"tenant_id", tenantID, "ref_hash", hash, "error", err)
	}
}

// appendEntry writes a movement to the log. The balance write already
// happened; a log failure is reported but does not fail the operation.
func (s *Service) appendEntry(ctx context.Context, e *store.LedgerEntry) {
	if err := s.entries.Append(ctx, e); err != nil {
		s.logger.Error("failed to append ledger entry",
			"tenant_id", e.TenantID, "type", e.Type, "error", err)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
