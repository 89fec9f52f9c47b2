package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// In-memory implementations, thread-safe, for tests and single-process use.
// ---------------------------------------------------------------------------

// InMemoryRoutingStore is an in-memory RoutingStore.
type InMemoryRoutingStore struct {
	mu      sync.Mutex
	records map[string]*RoutingRecord
}

// NewInMemoryRoutingStore creates a new InMemoryRoutingStore.
func NewInMemoryRoutingStore() *InMemoryRoutingStore {
	return &InMemoryRoutingStore{records: make(map[string]*RoutingRecord)}
}

func (s *InMemoryRoutingStore) Get(_ context.Context, tenantID string) (*RoutingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *InMemoryRoutingStore) FindByInstance(_ context.Context, instanceName string) (*RoutingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.InstanceName == instanceName {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *InMemoryRoutingStore) Put(_ context.Context, rec *RoutingRecord) error {
	if rec.TenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	cp.UpdatedAt = time.Now()
	if existing, ok := s.records[rec.TenantID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.UpdatedAt
	}
	s.records[rec.TenantID] = &cp
	return nil
}

// InMemoryLedgerStore is an in-memory LedgerStore.
type InMemoryLedgerStore struct {
	mu      sync.Mutex
	entries []*LedgerEntry
}

// NewInMemoryLedgerStore creates a new InMemoryLedgerStore.
func NewInMemoryLedgerStore() *InMemoryLedgerStore {
	return &InMemoryLedgerStore{}
}

func (s *InMemoryLedgerStore) Append(_ context.Context, entry *LedgerEntry) error {
	if entry.TenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *InMemoryLedgerStore) ListByTenant(_ context.Context, tenantID string, limit int) ([]*LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*LedgerEntry
	for _, e := range s.entries {
		if e.TenantID == tenantID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// InMemoryBalanceStore is an in-memory BalanceStore.
type InMemoryBalanceStore struct {
	mu       sync.Mutex
	balances map[string]string
}

// NewInMemoryBalanceStore creates a new InMemoryBalanceStore.
func NewInMemoryBalanceStore() *InMemoryBalanceStore {
	return &InMemoryBalanceStore{balances: make(map[string]string)}
}

func (s *InMemoryBalanceStore) Get(_ context.Context, tenantID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.balances[tenantID]; ok {
		return b, nil
	}
	return "0.000000", nil
}

func (s *InMemoryBalanceStore) Set(_ context.Context, tenantID, balance string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[tenantID] = balance
	return nil
}

// InMemoryMarkerStore is an in-memory MarkerStore.
type InMemoryMarkerStore struct {
	mu      sync.Mutex
	markers map[string]time.Time
}

// NewInMemoryMarkerStore creates a new InMemoryMarkerStore.
func NewInMemoryMarkerStore() *InMemoryMarkerStore {
	return &InMemoryMarkerStore{markers: make(map[string]time.Time)}
}

func markerKey(tenantID, hash string) string { return tenantID + "\x00" + hash }

func (s *InMemoryMarkerStore) PutIfAbsent(_ context.Context, tenantID, hash string) error {
	if hash == "" {
		return fmt.Errorf("marker hash is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := markerKey(tenantID, hash)
	if _, ok := s.markers[key]; ok {
		return ErrDuplicate
	}
	s.markers[key] = time.Now()
	return nil
}

func (s *InMemoryMarkerStore) Delete(_ context.Context, tenantID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, markerKey(tenantID, hash))
	return nil
}

func (s *InMemoryMarkerStore) Exists(_ context.Context, tenantID, hash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.markers[markerKey(tenantID, hash)]
	return ok, nil
}

// InMemoryGraceStore is an in-memory GraceStore.
type InMemoryGraceStore struct {
	mu        sync.Mutex
	deadlines map[string]time.Time
}

// NewInMemoryGraceStore creates a new InMemoryGraceStore.
func NewInMemoryGraceStore() *InMemoryGraceStore {
	return &InMemoryGraceStore{deadlines: make(map[string]time.Time)}
}

func (s *InMemoryGraceStore) Set(_ context.Context, tenantID string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadlines[tenantID] = until
	return nil
}

func (s *InMemoryGraceStore) Clear(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deadlines, tenantID)
	return nil
}

func (s *InMemoryGraceStore) Get(_ context.Context, tenantID string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.deadlines[tenantID]
	return until, ok, nil
}

func (s *InMemoryGraceStore) ListElapsed(_ context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for tenantID, until := range s.deadlines {
		if until.Before(now) {
			out = append(out, tenantID)
		}
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// InMemoryPointerStore is an in-memory PointerStore.
type InMemoryPointerStore struct {
	mu       sync.Mutex
	pointers map[string]int
}

// NewInMemoryPointerStore creates a new InMemoryPointerStore.
func NewInMemoryPointerStore() *InMemoryPointerStore {
	return &InMemoryPointerStore{pointers: make(map[string]int)}
}

func (s *InMemoryPointerStore) Next(_ context.Context, key string, modulo int) (int, error) {
	if modulo <= 0 {
		return 0, fmt.Errorf("modulo must be positive, got %d", modulo)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.pointers[key] % modulo
	s.pointers[key] = idx + 1
	return idx, nil
}

// InMemorySubscriptionStore is an in-memory SubscriptionStore.
type InMemorySubscriptionStore struct {
	mu     sync.Mutex
	active map[string]bool
}

// NewInMemorySubscriptionStore creates a new InMemorySubscriptionStore.
func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{active: make(map[string]bool)}
}

func (s *InMemorySubscriptionStore) SetActive(_ context.Context, tenantID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[tenantID] = active
	return nil
}

func (s *InMemorySubscriptionStore) Active(_ context.Context, tenantID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[tenantID], nil
}

// InMemorySettingsStore is an in-memory SettingsStore.
type InMemorySettingsStore struct {
	mu       sync.Mutex
	settings map[string]*TenantSettings
}

// NewInMemorySettingsStore creates a new InMemorySettingsStore.
func NewInMemorySettingsStore() *InMemorySettingsStore {
	return &InMemorySettingsStore{settings: make(map[string]*TenantSettings)}
}

func (s *InMemorySettingsStore) Get(_ context.Context, tenantID string) (*TenantSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.settings[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *InMemorySettingsStore) Put(_ context.Context, rec *TenantSettings) error {
	if rec.TenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	cp.UpdatedAt = time.Now()
	s.settings[rec.TenantID] = &cp
	return nil
}

// ---------------------------------------------------------------------------
// Compile-time interface assertions
// ---------------------------------------------------------------------------

var (
	_ RoutingStore      = (*InMemoryRoutingStore)(nil)
	_ LedgerStore       = (*InMemoryLedgerStore)(nil)
	_ BalanceStore      = (*InMemoryBalanceStore)(nil)
	_ MarkerStore       = (*InMemoryMarkerStore)(nil)
	_ GraceStore        = (*InMemoryGraceStore)(nil)
	_ PointerStore      = (*InMemoryPointerStore)(nil)
	_ SubscriptionStore = (*InMemorySubscriptionStore)(nil)
	_ SettingsStore     = (*InMemorySettingsStore)(nil)
)
