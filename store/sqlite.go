package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// SQLite-backed implementations. The caller opens and closes the *sql.DB;
// each constructor ensures its own table exists so stores can share one
// connection or use separate ones.
// ---------------------------------------------------------------------------

const routingCreateTableSQL = `
CREATE TABLE IF NOT EXISTS routing_records (
	tenant_id     TEXT PRIMARY KEY,
	instance_name TEXT NOT NULL,
	vertical      TEXT NOT NULL DEFAULT '',
	stack_id      TEXT NOT NULL DEFAULT '',
	endpoint      TEXT NOT NULL DEFAULT '',
	credential    TEXT NOT NULL DEFAULT '',
	webhook_base  TEXT NOT NULL DEFAULT '',
	router_id     TEXT NOT NULL DEFAULT '',
	event_type    TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_routing_instance ON routing_records(instance_name);
`

// SQLiteRoutingStore is a SQLite-backed implementation of RoutingStore.
type SQLiteRoutingStore struct {
	db *sql.DB
}

// NewSQLiteRoutingStore creates a new SQLiteRoutingStore and ensures the
// required table exists.
func NewSQLiteRoutingStore(db *sql.DB) (*SQLiteRoutingStore, error) {
	if _, err := db.Exec(routingCreateTableSQL); err != nil {
		return nil, fmt.Errorf("create routing table: %w", err)
	}
	return &SQLiteRoutingStore{db: db}, nil
}

func (s *SQLiteRoutingStore) Get(ctx context.Context, tenantID string) (*RoutingRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT tenant_id, instance_name, vertical, stack_id, endpoint, credential,
		        webhook_base, router_id, event_type, created_at, updated_at
		 FROM routing_records WHERE tenant_id = ?`,
		tenantID,
	)
	return scanRoutingRecord(row)
}

func (s *SQLiteRoutingStore) FindByInstance(ctx context.Context, instanceName string) (*RoutingRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT tenant_id, instance_name, vertical, stack_id, endpoint, credential,
		        webhook_base, router_id, event_type, created_at, updated_at
		 FROM routing_records WHERE instance_name = ? LIMIT 1`,
		instanceName,
	)
	return scanRoutingRecord(row)
}

func (s *SQLiteRoutingStore) Put(ctx context.Context, rec *RoutingRecord) error {
	if rec.TenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	now := time.Now()
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO routing_records
		 (tenant_id, instance_name, vertical, stack_id, endpoint, credential,
		  webhook_base, router_id, event_type, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(tenant_id) DO UPDATE SET
		   instance_name = excluded.instance_name,
		   vertical      = excluded.vertical,
		   stack_id      = excluded.stack_id,
		   endpoint      = excluded.endpoint,
		   credential    = excluded.credential,
		   webhook_base  = excluded.webhook_base,
		   router_id     = excluded.router_id,
		   event_type    = excluded.event_type,
		   updated_at    = excluded.updated_at`,
		rec.TenantID, rec.InstanceName, rec.Vertical, rec.StackID, rec.Endpoint,
		rec.Credential, rec.WebhookBase, rec.RouterID, rec.EventType,
		createdAt.UTC().Format("2006-01-02 15:04:05"),
		now.UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return fmt.Errorf("upsert routing record: %w", err)
	}
	return nil
}

func scanRoutingRecord(row *sql.Row) (*RoutingRecord, error) {
	var rec RoutingRecord
	var createdAt, updatedAt string
	err := row.Scan(&rec.TenantID, &rec.InstanceName, &rec.Vertical, &rec.StackID,
		&rec.Endpoint, &rec.Credential, &rec.WebhookBase, &rec.RouterID,
		&rec.EventType, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query routing record: %w", err)
	}
	if rec.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if rec.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &rec, nil
}

const ledgerCreateTableSQL = `
CREATE TABLE IF NOT EXISTS ledger_entries (
	id             TEXT PRIMARY KEY,
	tenant_id      TEXT NOT NULL,
	type           TEXT NOT NULL,
	amount         TEXT NOT NULL,
	currency       TEXT NOT NULL DEFAULT '',
	balance_before TEXT NOT NULL DEFAULT '',
	balance_after  TEXT NOT NULL DEFAULT '',
	source         TEXT NOT NULL DEFAULT '',
	ref            TEXT NOT NULL DEFAULT '',
	note           TEXT NOT NULL DEFAULT '',
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_ledger_tenant ON ledger_entries(tenant_id, created_at);
`

// SQLiteLedgerStore is a SQLite-backed implementation of LedgerStore.
type SQLiteLedgerStore struct {
	db *sql.DB
}

// NewSQLiteLedgerStore creates a new SQLiteLedgerStore and ensures the
// required table exists.
func NewSQLiteLedgerStore(db *sql.DB) (*SQLiteLedgerStore, error) {
	if _, err := db.Exec(ledgerCreateTableSQL); err != nil {
		return nil, fmt.Errorf("create ledger table: %w", err)
	}
	return &SQLiteLedgerStore{db: db}, nil
}

func (s *SQLiteLedgerStore) Append(ctx context.Context, entry *LedgerEntry) error {
	if entry.TenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	id := entry.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_entries
		 (id, tenant_id, type, amount, currency, balance_before, balance_after,
		  source, ref, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), entry.TenantID, entry.Type, entry.Amount, entry.Currency,
		entry.BalanceBefore, entry.BalanceAfter, entry.Source, entry.Ref, entry.Note,
		createdAt.UTC().Format("2006-01-02 15:04:05.999999"),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

func (s *SQLiteLedgerStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, type, amount, currency, balance_before, balance_after,
		        source, ref, note, created_at
		 FROM ledger_entries
		 WHERE tenant_id = ?
		 ORDER BY created_at DESC, rowid DESC
		 LIMIT ?`,
		tenantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query ledger entries: %w", err)
	}
	defer rows.Close()

	var out []*LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var id, createdAt string
		if err := rows.Scan(&id, &e.TenantID, &e.Type, &e.Amount, &e.Currency,
			&e.BalanceBefore, &e.BalanceAfter, &e.Source, &e.Ref, &e.Note, &createdAt); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse entry id: %w", err)
		}
		if e.CreatedAt, err = parseSQLiteTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

const balanceCreateTableSQL = `
CREATE TABLE IF NOT EXISTS balances (
	tenant_id TEXT PRIMARY KEY,
	balance   TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// SQLiteBalanceStore is a SQLite-backed implementation of BalanceStore.
type SQLiteBalanceStore struct {
	db *sql.DB
}

// NewSQLiteBalanceStore creates a new SQLiteBalanceStore and ensures the
// required table exists.
func NewSQLiteBalanceStore(db *sql.DB) (*SQLiteBalanceStore, error) {
	if _, err := db.Exec(balanceCreateTableSQL); err != nil {
		return nil, fmt.Errorf("create balances table: %w", err)
	}
	return &SQLiteBalanceStore{db: db}, nil
}

func (s *SQLiteBalanceStore) Get(ctx context.Context, tenantID string) (string, error) {
	var balance string
	err := s.db.QueryRowContext(ctx,
		`SELECT balance FROM balances WHERE tenant_id = ?`, tenantID,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return "0.000000", nil
	}
	if err != nil {
		return "", fmt.Errorf("query balance: %w", err)
	}
	return balance, nil
}

func (s *SQLiteBalanceStore) Set(ctx context.Context, tenantID, balance string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO balances (tenant_id, balance, updated_at)
		 VALUES (?, ?, datetime('now'))
		 ON CONFLICT(tenant_id) DO UPDATE SET
		   balance = excluded.balance,
		   updated_at = excluded.updated_at`,
		tenantID, balance,
	)
	if err != nil {
		return fmt.Errorf("upsert balance: %w", err)
	}
	return nil
}

const markerCreateTableSQL = `
CREATE TABLE IF NOT EXISTS credit_markers (
	tenant_id  TEXT NOT NULL,
	hash       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (tenant_id, hash)
);
`

// SQLiteMarkerStore is a SQLite-backed implementation of MarkerStore. The
// composite primary key makes PutIfAbsent a true atomic insert-if-not-exists.
type SQLiteMarkerStore struct {
	db *sql.DB
}

// NewSQLiteMarkerStore creates a new SQLiteMarkerStore and ensures the
// required table exists.
func NewSQLiteMarkerStore(db *sql.DB) (*SQLiteMarkerStore, error) {
	if _, err := db.Exec(markerCreateTableSQL); err != nil {
		return nil, fmt.Errorf("create markers table: %w", err)
	}
	return &SQLiteMarkerStore{db: db}, nil
}

func (s *SQLiteMarkerStore) PutIfAbsent(ctx context.Context, tenantID, hash string) error {
	if hash == "" {
		return fmt.Errorf("marker hash is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO credit_markers (tenant_id, hash) VALUES (?, ?)`,
		tenantID, hash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert marker: %w", err)
	}
	return nil
}

func (s *SQLiteMarkerStore) Delete(ctx context.Context, tenantID, hash string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM credit_markers WHERE tenant_id = ? AND hash = ?`,
		tenantID, hash,
	)
	if err != nil {
		return fmt.Errorf("delete marker: %w", err)
	}
	return nil
}

func (s *SQLiteMarkerStore) Exists(ctx context.Context, tenantID, hash string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM credit_markers WHERE tenant_id = ? AND hash = ?`,
		tenantID, hash,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query marker: %w", err)
	}
	return true, nil
}

const graceCreateTableSQL = `
CREATE TABLE IF NOT EXISTS grace_deadlines (
	tenant_id TEXT PRIMARY KEY,
	until     DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_grace_until ON grace_deadlines(until);
`

// SQLiteGraceStore is a SQLite-backed implementation of GraceStore.
type SQLiteGraceStore struct {
	db *sql.DB
}

// NewSQLiteGraceStore creates a new SQLiteGraceStore and ensures the
// required table exists.
func NewSQLiteGraceStore(db *sql.DB) (*SQLiteGraceStore, error) {
	if _, err := db.Exec(graceCreateTableSQL); err != nil {
		return nil, fmt.Errorf("create grace table: %w", err)
	}
	return &SQLiteGraceStore{db: db}, nil
}

func (s *SQLiteGraceStore) Set(ctx context.Context, tenantID string, until time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO grace_deadlines (tenant_id, until) VALUES (?, ?)
		 ON CONFLICT(tenant_id) DO UPDATE SET until = excluded.until`,
		tenantID, until.UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return fmt.Errorf("upsert grace deadline: %w", err)
	}
	return nil
}

func (s *SQLiteGraceStore) Clear(ctx context.Context, tenantID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM grace_deadlines WHERE tenant_id = ?`, tenantID,
	)
	if err != nil {
		return fmt.Errorf("clear grace deadline: %w", err)
	}
	return nil
}

func (s *SQLiteGraceStore) Get(ctx context.Context, tenantID string) (time.Time, bool, error) {
	var until string
	err := s.db.QueryRowContext(ctx,
		`SELECT until FROM grace_deadlines WHERE tenant_id = ?`, tenantID,
	).Scan(&until)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query grace deadline: %w", err)
	}
	t, err := parseSQLiteTime(until)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse grace deadline: %w", err)
	}
	return t, true, nil
}

func (s *SQLiteGraceStore) ListElapsed(ctx context.Context, now time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT tenant_id FROM grace_deadlines WHERE until < ? ORDER BY tenant_id LIMIT ?`,
		now.UTC().Format("2006-01-02 15:04:05"), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query elapsed deadlines: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var tenantID string
		if err := rows.Scan(&tenantID); err != nil {
			return nil, fmt.Errorf("scan tenant id: %w", err)
		}
		out = append(out, tenantID)
	}
	return out, rows.Err()
}

const pointerCreateTableSQL = `
CREATE TABLE IF NOT EXISTS rr_pointers (
	key     TEXT PRIMARY KEY,
	pointer INTEGER NOT NULL DEFAULT 0
);
`

// SQLitePointerStore is a SQLite-backed implementation of PointerStore.
type SQLitePointerStore struct {
	db *sql.DB
}

// NewSQLitePointerStore creates a new SQLitePointerStore and ensures the
// required table exists.
func NewSQLitePointerStore(db *sql.DB) (*SQLitePointerStore, error) {
	if _, err := db.Exec(pointerCreateTableSQL); err != nil {
		return nil, fmt.Errorf("create pointers table: %w", err)
	}
	return &SQLitePointerStore{db: db}, nil
}

func (s *SQLitePointerStore) Next(ctx context.Context, key string, modulo int) (int, error) {
	if modulo <= 0 {
		return 0, fmt.Errorf("modulo must be positive, got %d", modulo)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin pointer tx: %w", err)
	}
	defer tx.Rollback()

	var pointer int
	err = tx.QueryRowContext(ctx,
		`SELECT pointer FROM rr_pointers WHERE key = ?`, key,
	).Scan(&pointer)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("query pointer: %w", err)
	}

	idx := pointer % modulo
	_, err = tx.ExecContext(ctx,
		`INSERT INTO rr_pointers (key, pointer) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET pointer = excluded.pointer`,
		key, idx+1,
	)
	if err != nil {
		return 0, fmt.Errorf("advance pointer: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit pointer tx: %w", err)
	}
	return idx, nil
}

const subscriptionCreateTableSQL = `
CREATE TABLE IF NOT EXISTS subscriptions (
	tenant_id  TEXT PRIMARY KEY,
	active     INTEGER NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// SQLiteSubscriptionStore is a SQLite-backed implementation of SubscriptionStore.
type SQLiteSubscriptionStore struct {
	db *sql.DB
}

// NewSQLiteSubscriptionStore creates a new SQLiteSubscriptionStore and ensures
// the required table exists.
func NewSQLiteSubscriptionStore(db *sql.DB) (*SQLiteSubscriptionStore, error) {
	if _, err := db.Exec(subscriptionCreateTableSQL); err != nil {
		return nil, fmt.Errorf("create subscriptions table: %w", err)
	}
	return &SQLiteSubscriptionStore{db: db}, nil
}

func (s *SQLiteSubscriptionStore) SetActive(ctx context.Context, tenantID string, active bool) error {
	val := 0
	if active {
		val = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (tenant_id, active, updated_at)
		 VALUES (?, ?, datetime('now'))
		 ON CONFLICT(tenant_id) DO UPDATE SET
		   active = excluded.active,
		   updated_at = excluded.updated_at`,
		tenantID, val,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

func (s *SQLiteSubscriptionStore) Active(ctx context.Context, tenantID string) (bool, error) {
	var active int
	err := s.db.QueryRowContext(ctx,
		`SELECT active FROM subscriptions WHERE tenant_id = ?`, tenantID,
	).Scan(&active)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query subscription: %w", err)
	}
	return active != 0, nil
}

const settingsCreateTableSQL = `
CREATE TABLE IF NOT EXISTS tenant_settings (
	tenant_id     TEXT PRIMARY KEY,
	vertical      TEXT NOT NULL DEFAULT '',
	system_prompt TEXT NOT NULL DEFAULT '',
	profile       TEXT NOT NULL DEFAULT '',
	services      TEXT NOT NULL DEFAULT '',
	rules         TEXT NOT NULL DEFAULT '',
	voice_enabled INTEGER NOT NULL DEFAULT 0,
	voice_id      TEXT NOT NULL DEFAULT '',
	voice_key     TEXT NOT NULL DEFAULT '',
	byok_enabled  INTEGER NOT NULL DEFAULT 0,
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);
`

// SQLiteSettingsStore is a SQLite-backed implementation of SettingsStore.
type SQLiteSettingsStore struct {
	db *sql.DB
}

// NewSQLiteSettingsStore creates a new SQLiteSettingsStore and ensures the
// required table exists.
func NewSQLiteSettingsStore(db *sql.DB) (*SQLiteSettingsStore, error) {
	if _, err := db.Exec(settingsCreateTableSQL); err != nil {
		return nil, fmt.Errorf("create settings table: %w", err)
	}
	return &SQLiteSettingsStore{db: db}, nil
}

func (s *SQLiteSettingsStore) Get(ctx context.Context, tenantID string) (*TenantSettings, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT tenant_id, vertical, system_prompt, profile, services, rules,
		        voice_enabled, voice_id, voice_key, byok_enabled, updated_at
		 FROM tenant_settings WHERE tenant_id = ?`,
		tenantID,
	)
	var rec TenantSettings
	var voiceEnabled, byokEnabled int
	var updatedAt string
	err := row.Scan(&rec.TenantID, &rec.Vertical, &rec.SystemPrompt, &rec.Profile,
		&rec.Services, &rec.Rules, &voiceEnabled, &rec.VoiceID, &rec.VoiceKey,
		&byokEnabled, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	rec.VoiceEnabled = voiceEnabled != 0
	rec.BYOKEnabled = byokEnabled != 0
	if rec.UpdatedAt, err = parseSQLiteTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &rec, nil
}

func (s *SQLiteSettingsStore) Put(ctx context.Context, rec *TenantSettings) error {
	if rec.TenantID == "" {
		return fmt.Errorf("tenant id is required")
	}
	voiceEnabled := 0
	if rec.VoiceEnabled {
		voiceEnabled = 1
	}
	byokEnabled := 0
	if rec.BYOKEnabled {
		byokEnabled = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenant_settings
		 (tenant_id, vertical, system_prompt, profile, services, rules,
		  voice_enabled, voice_id, voice_key, byok_enabled, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(tenant_id) DO UPDATE SET
		   vertical      = excluded.vertical,
		   system_prompt = excluded.system_prompt,
		   profile       = excluded.profile,
		   services      = excluded.services,
		   rules         = excluded.rules,
		   voice_enabled = excluded.voice_enabled,
		   voice_id      = excluded.voice_id,
		   voice_key     = excluded.voice_key,
		   byok_enabled  = excluded.byok_enabled,
		   updated_at    = excluded.updated_at`,
		rec.TenantID, rec.Vertical, rec.SystemPrompt, rec.Profile, rec.Services,
		rec.Rules, voiceEnabled, rec.VoiceID, rec.VoiceKey, byokEnabled,
		time.Now().UTC().Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return fmt.Errorf("upsert settings: %w", err)
	}
	return nil
}

// isUniqueViolation checks if an error is a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	// modernc.org/sqlite returns errors containing "UNIQUE constraint failed"
	return strings.Contains(err.Error(), "UNIQUE")
}

// sqliteTimeFormats lists the time formats that SQLite may return.
var sqliteTimeFormats = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// parseSQLiteTime parses a time string returned by SQLite.
func parseSQLiteTime(s string) (time.Time, error) {
	for _, layout := range sqliteTimeFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}

// ---------------------------------------------------------------------------
// Compile-time interface assertions
// ---------------------------------------------------------------------------

var (
	_ RoutingStore      = (*SQLiteRoutingStore)(nil)
	_ LedgerStore       = (*SQLiteLedgerStore)(nil)
	_ BalanceStore      = (*SQLiteBalanceStore)(nil)
	_ MarkerStore       = (*SQLiteMarkerStore)(nil)
	_ GraceStore        = (*SQLiteGraceStore)(nil)
	_ PointerStore      = (*SQLitePointerStore)(nil)
	_ SubscriptionStore = (*SQLiteSubscriptionStore)(nil)
	_ SettingsStore     = (*SQLiteSettingsStore)(nil)
)
