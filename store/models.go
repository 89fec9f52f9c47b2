package store

import (
	"time"

	"github.com/google/uuid"
)

// RoutingRecord assigns a tenant to one gateway stack. Once Endpoint,
// Credential and WebhookBase are all non-empty the record is pinned and
// those three fields must never be reassigned to a different stack.
// RouterID and EventType are exempt and may be backfilled later.
type RoutingRecord struct {
	TenantID     string    `json:"tenant_id"`
	InstanceName string    `json:"instance_name"`
	Vertical     string    `json:"vertical"`
	StackID      string    `json:"stack_id"`
	Endpoint     string    `json:"endpoint"`
	Credential   string    `json:"-"`
	WebhookBase  string    `json:"webhook_base"`
	RouterID     string    `json:"router_id"`
	EventType    string    `json:"event_type"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Pinned reports whether the record's routing fields are locked in.
func (r *RoutingRecord) Pinned() bool {
	return r.Endpoint != "" && r.Credential != "" && r.WebhookBase != ""
}

// Ledger entry types.
const (
	EntryCredit     = "credit_base"
	EntryAdminSet   = "credit_admin_set"
	EntryAdminAdd   = "credit_admin_add"
	EntryGraceStart = "grace_start"
	EntryExpired    = "credit_expired"
)

// LedgerEntry is one immutable movement in a tenant's credit history.
// Amount and the balance snapshots are fixed-point decimal strings with
// exactly 6 fractional digits; an empty balance string means "not recorded"
// (informational movements such as grace_start).
type LedgerEntry struct {
	ID            uuid.UUID `json:"id"`
	TenantID      string    `json:"tenant_id"`
	Type          string    `json:"type"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency"`
	BalanceBefore string    `json:"balance_before,omitempty"`
	BalanceAfter  string    `json:"balance_after,omitempty"`
	Source        string    `json:"source"`
	Ref           string    `json:"ref,omitempty"`
	Note          string    `json:"note,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// TenantSettings holds the tenant-editable profile consumed by the
// downstream automation engine. VoiceKey is stored as-is and masked at the
// API boundary; it never appears in logs.
type TenantSettings struct {
	TenantID     string    `json:"tenant_id"`
	Vertical     string    `json:"vertical"`
	SystemPrompt string    `json:"system_prompt"`
	Profile      string    `json:"profile"`
	Services     string    `json:"services"`
	Rules        string    `json:"rules"`
	VoiceEnabled bool      `json:"voice_enabled"`
	VoiceID      string    `json:"voice_id"`
	VoiceKey     string    `json:"-"`
	BYOKEnabled  bool      `json:"byok_enabled"`
	UpdatedAt    time.Time `json:"updated_at"`
}
