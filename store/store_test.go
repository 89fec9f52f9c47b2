package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// openTestDB opens a throwaway SQLite database for one test.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "store_test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRoutingStores(t *testing.T) {
	runRoutingTests(t, "InMemory", func(t *testing.T) RoutingStore {
		return NewInMemoryRoutingStore()
	})
	runRoutingTests(t, "SQLite", func(t *testing.T) RoutingStore {
		s, err := NewSQLiteRoutingStore(openTestDB(t))
		if err != nil {
			t.Fatalf("new sqlite routing store: %v", err)
		}
		return s
	})
}

func runRoutingTests(t *testing.T, name string, newStore func(t *testing.T) RoutingStore) {
	ctx := context.Background()

	t.Run(name+"/GetMissing", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(ctx, "t-1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run(name+"/PutGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		rec := &RoutingRecord{
			TenantID:     "t-1",
			InstanceName: "maria-lopez",
			Vertical:     "dental",
			StackID:      "stack-a",
			Endpoint:     "https://evo.example.com",
			Credential:   "secret-key",
			WebhookBase:  "https://hooks.example.com",
			RouterID:     "ab12-cd34",
			EventType:    "MESSAGES_UPSERT",
		}
		if err := s.Put(ctx, rec); err != nil {
			t.Fatalf("put: %v", err)
		}
		got, err := s.Get(ctx, "t-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.InstanceName != "maria-lopez" || got.Endpoint != "https://evo.example.com" {
			t.Fatalf("unexpected record: %+v", got)
		}
		if !got.Pinned() {
			t.Fatal("record with endpoint, credential and webhook base should be pinned")
		}
		if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
			t.Fatal("timestamps should be populated")
		}
	})

	t.Run(name+"/PutReplaces", func(t *testing.T) {
		s := newStore(t)
		rec := &RoutingRecord{TenantID: "t-1", InstanceName: "maria-lopez", Vertical: "general"}
		if err := s.Put(ctx, rec); err != nil {
			t.Fatalf("put: %v", err)
		}
		rec.Vertical = "dental"
		rec.RouterID = "ffff"
		if err := s.Put(ctx, rec); err != nil {
			t.Fatalf("second put: %v", err)
		}
		got, err := s.Get(ctx, "t-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Vertical != "dental" || got.RouterID != "ffff" {
			t.Fatalf("update not applied: %+v", got)
		}
	})

	t.Run(name+"/FindByInstance", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, &RoutingRecord{TenantID: "t-1", InstanceName: "maria-lopez"}); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := s.Put(ctx, &RoutingRecord{TenantID: "t-2", InstanceName: "juan-perez"}); err != nil {
			t.Fatalf("put: %v", err)
		}
		got, err := s.FindByInstance(ctx, "juan-perez")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if got.TenantID != "t-2" {
			t.Fatalf("expected t-2, got %q", got.TenantID)
		}
		if _, err := s.FindByInstance(ctx, "nobody"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run(name+"/PutRequiresTenant", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, &RoutingRecord{InstanceName: "x"}); err == nil {
			t.Fatal("expected error for empty tenant id")
		}
	})
}

func TestLedgerStores(t *testing.T) {
	runLedgerTests(t, "InMemory", func(t *testing.T) LedgerStore {
		return NewInMemoryLedgerStore()
	})
	runLedgerTests(t, "SQLite", func(t *testing.T) LedgerStore {
		s, err := NewSQLiteLedgerStore(openTestDB(t))
		if err != nil {
			t.Fatalf("new sqlite ledger store: %v", err)
		}
		return s
	})
}

func runLedgerTests(t *testing.T, name string, newStore func(t *testing.T) LedgerStore) {
	ctx := context.Background()

	t.Run(name+"/AppendAndList", func(t *testing.T) {
		s := newStore(t)
		base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		for i := 0; i < 3; i++ {
			err := s.Append(ctx, &LedgerEntry{
				TenantID:  "t-1",
				Type:      EntryCredit,
				Amount:    "10.000000",
				Currency:  "USD",
				Source:    "membership",
				CreatedAt: base.Add(time.Duration(i) * time.Minute),
			})
			if err != nil {
				t.Fatalf("append %d: %v", i, err)
			}
		}
		if err := s.Append(ctx, &LedgerEntry{TenantID: "t-2", Type: EntryCredit, Amount: "1.000000", CreatedAt: base}); err != nil {
			t.Fatalf("append other tenant: %v", err)
		}

		entries, err := s.ListByTenant(ctx, "t-1", 10)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(entries) != 3 {
			t.Fatalf("expected 3 entries, got %d", len(entries))
		}
		for i := 1; i < len(entries); i++ {
			if entries[i].CreatedAt.After(entries[i-1].CreatedAt) {
				t.Fatalf("entries not in most-recent-first order: %v then %v",
					entries[i-1].CreatedAt, entries[i].CreatedAt)
			}
		}
	})

	t.Run(name+"/ListHonorsLimit", func(t *testing.T) {
		s := newStore(t)
		base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		for i := 0; i < 5; i++ {
			err := s.Append(ctx, &LedgerEntry{
				TenantID:  "t-1",
				Type:      EntryAdminAdd,
				Amount:    "1.000000",
				CreatedAt: base.Add(time.Duration(i) * time.Second),
			})
			if err != nil {
				t.Fatalf("append %d: %v", i, err)
			}
		}
		entries, err := s.ListByTenant(ctx, "t-1", 2)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(entries) != 2 {
			t.Fatalf("expected 2 entries, got %d", len(entries))
		}
	})

	t.Run(name+"/AppendRequiresTenant", func(t *testing.T) {
		s := newStore(t)
		if err := s.Append(ctx, &LedgerEntry{Type: EntryCredit, Amount: "1.000000"}); err == nil {
			t.Fatal("expected error for empty tenant id")
		}
	})
}

func TestBalanceStores(t *testing.T) {
	runBalanceTests(t, "InMemory", func(t *testing.T) BalanceStore {
		return NewInMemoryBalanceStore()
	})
	runBalanceTests(t, "SQLite", func(t *testing.T) BalanceStore {
		s, err := NewSQLiteBalanceStore(openTestDB(t))
		if err != nil {
			t.Fatalf("new sqlite balance store: %v", err)
		}
		return s
	})
}

func runBalanceTests(t *testing.T, name string, newStore func(t *testing.T) BalanceStore) {
	ctx := context.Background()

	t.Run(name+"/DefaultsToZero", func(t *testing.T) {
		s := newStore(t)
		b, err := s.Get(ctx, "t-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if b != "0.000000" {
			t.Fatalf("expected 0.000000, got %q", b)
		}
	})

	t.Run(name+"/SetThenGet", func(t *testing.T) {
		s := newStore(t)
		if err := s.Set(ctx, "t-1", "12.345678"); err != nil {
			t.Fatalf("set: %v", err)
		}
		if err := s.Set(ctx, "t-1", "0.500000"); err != nil {
			t.Fatalf("second set: %v", err)
		}
		b, err := s.Get(ctx, "t-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if b != "0.500000" {
			t.Fatalf("expected 0.500000, got %q", b)
		}
	})
}

func TestMarkerStores(t *testing.T) {
	runMarkerTests(t, "InMemory", func(t *testing.T) MarkerStore {
		return NewInMemoryMarkerStore()
	})
	runMarkerTests(t, "SQLite", func(t *testing.T) MarkerStore {
		s, err := NewSQLiteMarkerStore(openTestDB(t))
		if err != nil {
			t.Fatalf("new sqlite marker store: %v", err)
		}
		return s
	})
}

func runMarkerTests(t *testing.T, name string, newStore func(t *testing.T) MarkerStore) {
	ctx := context.Background()

	t.Run(name+"/PutIfAbsentClaimsOnce", func(t *testing.T) {
		s := newStore(t)
		if err := s.PutIfAbsent(ctx, "t-1", "abc123"); err != nil {
			t.Fatalf("first put: %v", err)
		}
		if err := s.PutIfAbsent(ctx, "t-1", "abc123"); !errors.Is(err, ErrDuplicate) {
			t.Fatalf("expected ErrDuplicate, got %v", err)
		}
		// Same hash for a different tenant is a distinct marker.
		if err := s.PutIfAbsent(ctx, "t-2", "abc123"); err != nil {
			t.Fatalf("other tenant put: %v", err)
		}
	})

	t.Run(name+"/DeleteReleasesClaim", func(t *testing.T) {
		s := newStore(t)
		if err := s.PutIfAbsent(ctx, "t-1", "abc123"); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := s.Delete(ctx, "t-1", "abc123"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		ok, err := s.Exists(ctx, "t-1", "abc123")
		if err != nil {
			t.Fatalf("exists: %v", err)
		}
		if ok {
			t.Fatal("marker should be gone after delete")
		}
		if err := s.PutIfAbsent(ctx, "t-1", "abc123"); err != nil {
			t.Fatalf("re-put after delete: %v", err)
		}
	})

	t.Run(name+"/EmptyHashRejected", func(t *testing.T) {
		s := newStore(t)
		if err := s.PutIfAbsent(ctx, "t-1", ""); err == nil {
			t.Fatal("expected error for empty hash")
		}
	})
}

func TestGraceStores(t *testing.T) {
	runGraceTests(t, "InMemory", func(t *testing.T) GraceStore {
		return NewInMemoryGraceStore()
	})
	runGraceTests(t, "SQLite", func(t *testing.T) GraceStore {
		s, err := NewSQLiteGraceStore(openTestDB(t))
		if err != nil {
			t.Fatalf("new sqlite grace store: %v", err)
		}
		return s
	})
}

func runGraceTests(t *testing.T, name string, newStore func(t *testing.T) GraceStore) {
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run(name+"/SetGetClear", func(t *testing.T) {
		s := newStore(t)
		if _, ok, err := s.Get(ctx, "t-1"); err != nil || ok {
			t.Fatalf("expected no deadline, got ok=%v err=%v", ok, err)
		}
		until := now.Add(365 * 24 * time.Hour)
		if err := s.Set(ctx, "t-1", until); err != nil {
			t.Fatalf("set: %v", err)
		}
		got, ok, err := s.Get(ctx, "t-1")
		if err != nil || !ok {
			t.Fatalf("get: ok=%v err=%v", ok, err)
		}
		if !got.Equal(until) {
			t.Fatalf("expected %v, got %v", until, got)
		}
		if err := s.Clear(ctx, "t-1"); err != nil {
			t.Fatalf("clear: %v", err)
		}
		if _, ok, _ := s.Get(ctx, "t-1"); ok {
			t.Fatal("deadline should be cleared")
		}
	})

	t.Run(name+"/ListElapsed", func(t *testing.T) {
		s := newStore(t)
		if err := s.Set(ctx, "t-old", now.Add(-time.Hour)); err != nil {
			t.Fatalf("set: %v", err)
		}
		if err := s.Set(ctx, "t-older", now.Add(-48*time.Hour)); err != nil {
			t.Fatalf("set: %v", err)
		}
		if err := s.Set(ctx, "t-future", now.Add(time.Hour)); err != nil {
			t.Fatalf("set: %v", err)
		}
		elapsed, err := s.ListElapsed(ctx, now, 10)
		if err != nil {
			t.Fatalf("list elapsed: %v", err)
		}
		if len(elapsed) != 2 {
			t.Fatalf("expected 2 elapsed tenants, got %v", elapsed)
		}
		for _, id := range elapsed {
			if id == "t-future" {
				t.Fatal("future deadline must not be listed")
			}
		}
	})
}

func TestPointerStores(t *testing.T) {
	runPointerTests(t, "InMemory", func(t *testing.T) PointerStore {
		return NewInMemoryPointerStore()
	})
	runPointerTests(t, "SQLite", func(t *testing.T) PointerStore {
		s, err := NewSQLitePointerStore(openTestDB(t))
		if err != nil {
			t.Fatalf("new sqlite pointer store: %v", err)
		}
		return s
	})
}

func runPointerTests(t *testing.T, name string, newStore func(t *testing.T) PointerStore) {
	ctx := context.Background()

	t.Run(name+"/RoundRobinCycle", func(t *testing.T) {
		s := newStore(t)
		want := []int{0, 1, 2, 0, 1, 2}
		for i, w := range want {
			got, err := s.Next(ctx, "dental", 3)
			if err != nil {
				t.Fatalf("next %d: %v", i, err)
			}
			if got != w {
				t.Fatalf("pick %d: expected index %d, got %d", i, w, got)
			}
		}
	})

	t.Run(name+"/IndependentKeys", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Next(ctx, "dental", 3); err != nil {
			t.Fatalf("next: %v", err)
		}
		got, err := s.Next(ctx, "legal", 3)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if got != 0 {
			t.Fatalf("fresh key should start at 0, got %d", got)
		}
	})

	t.Run(name+"/ShrinkingModulo", func(t *testing.T) {
		s := newStore(t)
		for i := 0; i < 5; i++ {
			if _, err := s.Next(ctx, "dental", 5); err != nil {
				t.Fatalf("next: %v", err)
			}
		}
		// Pointer is now 5; a smaller pool must still yield a valid index.
		got, err := s.Next(ctx, "dental", 2)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if got < 0 || got >= 2 {
			t.Fatalf("index %d out of range for modulo 2", got)
		}
	})

	t.Run(name+"/RejectsBadModulo", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Next(ctx, "dental", 0); err == nil {
			t.Fatal("expected error for zero modulo")
		}
	})
}

func TestSubscriptionStores(t *testing.T) {
	runSubscriptionTests(t, "InMemory", func(t *testing.T) SubscriptionStore {
		return NewInMemorySubscriptionStore()
	})
	runSubscriptionTests(t, "SQLite", func(t *testing.T) SubscriptionStore {
		s, err := NewSQLiteSubscriptionStore(openTestDB(t))
		if err != nil {
			t.Fatalf("new sqlite subscription store: %v", err)
		}
		return s
	})
}

func runSubscriptionTests(t *testing.T, name string, newStore func(t *testing.T) SubscriptionStore) {
	ctx := context.Background()

	t.Run(name+"/UnknownTenantInactive", func(t *testing.T) {
		s := newStore(t)
		active, err := s.Active(ctx, "t-1")
		if err != nil {
			t.Fatalf("active: %v", err)
		}
		if active {
			t.Fatal("unknown tenant should be inactive")
		}
	})

	t.Run(name+"/Toggle", func(t *testing.T) {
		s := newStore(t)
		if err := s.SetActive(ctx, "t-1", true); err != nil {
			t.Fatalf("set active: %v", err)
		}
		if active, _ := s.Active(ctx, "t-1"); !active {
			t.Fatal("expected active")
		}
		if err := s.SetActive(ctx, "t-1", false); err != nil {
			t.Fatalf("set inactive: %v", err)
		}
		if active, _ := s.Active(ctx, "t-1"); active {
			t.Fatal("expected inactive")
		}
	})
}

func TestSettingsStores(t *testing.T) {
	runSettingsTests(t, "InMemory", func(t *testing.T) SettingsStore {
		return NewInMemorySettingsStore()
	})
	runSettingsTests(t, "SQLite", func(t *testing.T) SettingsStore {
		s, err := NewSQLiteSettingsStore(openTestDB(t))
		if err != nil {
			t.Fatalf("new sqlite settings store: %v", err)
		}
		return s
	})
}

func runSettingsTests(t *testing.T, name string, newStore func(t *testing.T) SettingsStore) {
	ctx := context.Background()

	t.Run(name+"/GetMissing", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.Get(ctx, "t-1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run(name+"/PutGetRoundTrip", func(t *testing.T) {
		s := newStore(t)
		rec := &TenantSettings{
			TenantID:     "t-1",
			Vertical:     "dental",
			SystemPrompt: "You are a receptionist.",
			Services:     "cleaning, whitening",
			VoiceEnabled: true,
			VoiceID:      "voice-7",
			VoiceKey:     "xi-secret-key",
			BYOKEnabled:  true,
		}
		if err := s.Put(ctx, rec); err != nil {
			t.Fatalf("put: %v", err)
		}
		got, err := s.Get(ctx, "t-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Vertical != "dental" || !got.VoiceEnabled || got.VoiceKey != "xi-secret-key" {
			t.Fatalf("unexpected settings: %+v", got)
		}
		if got.UpdatedAt.IsZero() {
			t.Fatal("updated_at should be populated")
		}
	})

	t.Run(name+"/PutReplaces", func(t *testing.T) {
		s := newStore(t)
		if err := s.Put(ctx, &TenantSettings{TenantID: "t-1", Vertical: "general"}); err != nil {
			t.Fatalf("put: %v", err)
		}
		if err := s.Put(ctx, &TenantSettings{TenantID: "t-1", Vertical: "legal", VoiceEnabled: true}); err != nil {
			t.Fatalf("second put: %v", err)
		}
		got, err := s.Get(ctx, "t-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Vertical != "legal" || !got.VoiceEnabled {
			t.Fatalf("update not applied: %+v", got)
		}
	})
}
