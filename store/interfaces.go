package store

import (
	"context"
	"time"
)

// RoutingStore persists tenant routing records.
type RoutingStore interface {
	// Get returns the record for a tenant, or ErrNotFound.
	Get(ctx context.Context, tenantID string) (*RoutingRecord, error)
	// FindByInstance returns the record owning a remote instance name,
	// or ErrNotFound.
	FindByInstance(ctx context.Context, instanceName string) (*RoutingRecord, error)
	// Put inserts or replaces the record for rec.TenantID.
	Put(ctx context.Context, rec *RoutingRecord) error
}

// LedgerStore is the append-only credit movement log.
type LedgerStore interface {
	Append(ctx context.Context, entry *LedgerEntry) error
	// ListByTenant returns up to limit entries, most recent first.
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]*LedgerEntry, error)
}

// BalanceStore holds the mutable balance mirror, one value per tenant.
// Balances are fixed 6-decimal strings; Get returns "0.000000" for tenants
// with no balance yet.
type BalanceStore interface {
	Get(ctx context.Context, tenantID string) (string, error)
	Set(ctx context.Context, tenantID, balance string) error
}

// MarkerStore persists idempotency markers: one-way hashes of external
// transaction references. PutIfAbsent is the atomic gate that prevents
// double-crediting; it must behave as a true insert-if-not-exists.
type MarkerStore interface {
	// PutIfAbsent stores the marker, or returns ErrDuplicate if it exists.
	PutIfAbsent(ctx context.Context, tenantID, hash string) error
	// Delete removes a marker. Used to release a claim when the balance
	// write that followed it failed.
	Delete(ctx context.Context, tenantID, hash string) error
	Exists(ctx context.Context, tenantID, hash string) (bool, error)
}

// GraceStore tracks per-tenant grace deadlines after subscription lapse.
type GraceStore interface {
	Set(ctx context.Context, tenantID string, until time.Time) error
	Clear(ctx context.Context, tenantID string) error
	// Get returns the deadline and whether one is set.
	Get(ctx context.Context, tenantID string) (time.Time, bool, error)
	// ListElapsed returns tenants whose deadline is strictly before now.
	ListElapsed(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// PointerStore persists round-robin pointers keyed by an arbitrary name
// (here: vertical). Next returns the index to use for this pick and
// advances the stored pointer to index+1.
type PointerStore interface {
	Next(ctx context.Context, key string, modulo int) (int, error)
}

// SubscriptionStore records the last-known subscription state per tenant,
// updated from membership events and read by the expiry sweep.
type SubscriptionStore interface {
	SetActive(ctx context.Context, tenantID string, active bool) error
	// Active returns false for tenants never seen.
	Active(ctx context.Context, tenantID string) (bool, error)
}

// SettingsStore persists the tenant profile.
type SettingsStore interface {
	// Get returns the settings for a tenant, or ErrNotFound.
	Get(ctx context.Context, tenantID string) (*TenantSettings, error)
	Put(ctx context.Context, s *TenantSettings) error
}
