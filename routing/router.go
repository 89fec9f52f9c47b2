// Package routing owns the tenant-to-stack assignment: which gateway
// endpoint, credential and webhook receiver a tenant's WhatsApp instance
// lives on. Assignments are sticky; once a tenant is pinned to a stack it
// never silently migrates.
package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/soyjavierquiroz/kurukin-core/registry"
	"github.com/soyjavierquiroz/kurukin-core/store"
)

// Defaults are the instance-wide fallback gateway settings used when no
// stack can serve a tenant.
type Defaults struct {
	Endpoint    string
	Credential  string
	WebhookBase string
}

// Router resolves and maintains per-tenant routing records.
type Router struct {
	records  store.RoutingStore
	registry *registry.Registry
	defaults Defaults
	logger   *slog.Logger
}

// New creates a Router.
func New(records store.RoutingStore, reg *registry.Registry, defaults Defaults, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	defaults.Endpoint = strings.TrimRight(strings.TrimSpace(defaults.Endpoint), "/")
	defaults.WebhookBase = NormalizeWebhookBase(defaults.WebhookBase)
	return &Router{records: records, registry: reg, defaults: defaults, logger: logger}
}

// EnsureRecord returns the tenant's routing record, creating or completing
// it as needed. The instance name is derived from the login once and never
// changes afterwards. A pinned record keeps its endpoint, credential and
// webhook base forever; only the vertical and the backfillable fields
// (router id, event type) may still change. An empty vertical keeps the
// record's current one (or "general" for a fresh record).
func (r *Router) EnsureRecord(ctx context.Context, tenantID, login, vertical string) (*store.RoutingRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant id is required")
	}
	vertical = registry.Slug(vertical)

	rec, err := r.records.Get(ctx, tenantID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		instance := registry.Slug(login)
		if instance == "" {
			instance = "tenant-" + tenantID
		}
		if vertical == "" {
			vertical = "general"
		}
		rec = &store.RoutingRecord{
			TenantID:     tenantID,
			InstanceName: instance,
			Vertical:     vertical,
			EventType:    registry.DefaultEventTypeName,
		}
	case err != nil:
		return nil, err
	}

	dirty := false
	if vertical != "" && rec.Vertical != vertical {
		rec.Vertical = vertical
		dirty = true
	}

	if !rec.Pinned() {
		if err := r.assign(ctx, rec); err != nil {
			return nil, err
		}
		dirty = true
	} else if rec.RouterID == "" || rec.EventType == "" {
		r.backfill(rec)
		dirty = true
	}

	if dirty {
		if err := r.records.Put(ctx, rec); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// Get returns the tenant's routing record without creating one.
func (r *Router) Get(ctx context.Context, tenantID string) (*store.RoutingRecord, error) {
	return r.records.Get(ctx, tenantID)
}

// FindByInstance resolves the tenant owning a remote instance name.
func (r *Router) FindByInstance(ctx context.Context, instanceName string) (*store.RoutingRecord, error) {
	return r.records.FindByInstance(ctx, instanceName)
}

// assign fills the routing fields of an unpinned record from a freshly
// picked stack, falling back to the instance-wide defaults when no stack
// is available.
func (r *Router) assign(ctx context.Context, rec *store.RoutingRecord) error {
	stack, err := r.registry.PickForVertical(ctx, rec.Vertical)
	if err != nil {
		if !errors.Is(err, registry.ErrNoStacks) {
			return err
		}
		if r.defaults.Endpoint == "" {
			return fmt.Errorf("no stack for vertical %q and no default gateway configured", rec.Vertical)
		}
		rec.StackID = ""
		rec.Endpoint = r.defaults.Endpoint
		rec.Credential = r.defaults.Credential
		rec.WebhookBase = r.defaults.WebhookBase
		if rec.EventType == "" {
			rec.EventType = registry.DefaultEventTypeName
		}
		r.logger.Warn("no stack available, using default gateway",
			"tenant_id", rec.TenantID, "vertical", rec.Vertical)
		return nil
	}

	rec.StackID = stack.StackID
	rec.Endpoint = stack.GatewayEndpoint
	rec.Credential = stack.GatewayCredential
	rec.WebhookBase = NormalizeWebhookBase(stack.WebhookBaseURL)
	rec.RouterID = stack.RouterID
	rec.EventType = stack.DefaultEventType
	r.logger.Info("tenant assigned to stack",
		"tenant_id", rec.TenantID,
		"vertical", rec.Vertical,
		"stack_id", stack.StackID,
		"instance", rec.InstanceName)
	return nil
}

// backfill completes router id and event type on an already pinned record
// from its stack's current definition. The pinned fields are untouched and
// no round-robin pointer is advanced.
func (r *Router) backfill(rec *store.RoutingRecord) {
	if rec.StackID != "" {
		if stack, ok := r.registry.Get(rec.StackID); ok {
			if rec.RouterID == "" {
				rec.RouterID = stack.RouterID
			}
			if rec.EventType == "" {
				rec.EventType = stack.DefaultEventType
			}
		}
	}
	if rec.EventType == "" {
		rec.EventType = registry.DefaultEventTypeName
	}
}

// NormalizeWebhookBase trims a webhook base URL down to the receiver root:
// trailing slashes go, and a path that already contains a /webhook segment
// is cut before it so the per-tenant path can be appended cleanly.
func NormalizeWebhookBase(base string) string {
	base = strings.TrimSpace(base)
	if idx := strings.Index(base, "/webhook"); idx > 0 {
		base = base[:idx]
	}
	return strings.TrimRight(base, "/")
}

// WebhookURL builds the full per-tenant webhook callback URL.
func WebhookURL(rec *store.RoutingRecord) string {
	return fmt.Sprintf("%s/webhook/%s/%s/%s",
		NormalizeWebhookBase(rec.WebhookBase), rec.RouterID, rec.Vertical, rec.InstanceName)
}
