package billing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EventKind classifies a membership notification.
type EventKind string

const (
	// TransactionCompleted is a finished purchase or renewal payment.
	TransactionCompleted EventKind = "transaction_completed"
	// SubscriptionInactive covers cancel, expire and stop notifications.
	SubscriptionInactive EventKind = "subscription_inactive"
	// EventUnknown is anything this system does not act on.
	EventUnknown EventKind = "unknown"
)

// Event is a normalized membership notification.
type Event struct {
	Kind           EventKind
	TenantID       string
	ProductID      int
	TransactionID  string
	SubscriptionID string
	Status         string
}

// ParseEvent decodes a membership webhook payload. Membership systems are
// inconsistent about field names and nesting, so the parser reads a
// candidate list per field and unwraps an optional "data" envelope.
func ParseEvent(body []byte) (*Event, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode billing event: %w", err)
	}

	name := stringField(raw, "event", "type", "action")
	data := raw
	if nested, ok := raw["data"].(map[string]any); ok {
		data = nested
	}

	ev := &Event{
		Kind:           classifyEvent(name),
		TenantID:       stringField(data, "user_ref", "tenant_id", "user_id", "member_id"),
		ProductID:      intField(data, "product_id", "membership_id"),
		TransactionID:  stringField(data, "trans_num", "transaction_id", "txn_id", "id"),
		SubscriptionID: stringField(data, "subscription_id", "sub_id"),
		Status:         strings.ToLower(stringField(data, "status", "txn_status")),
	}
	return ev, nil
}

func classifyEvent(name string) EventKind {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "transaction") && strings.Contains(n, "complete"):
		return TransactionCompleted
	case strings.Contains(n, "subscription") &&
		(strings.Contains(n, "expire") || strings.Contains(n, "cancel") ||
			strings.Contains(n, "stop") || strings.Contains(n, "inactive")):
		return SubscriptionInactive
	default:
		return EventUnknown
	}
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				return t
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64)
		case json.Number:
			return t.String()
		}
	}
	return ""
}

func intField(m map[string]any, keys ...string) int {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			return int(t)
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
				return n
			}
		}
	}
	return 0
}
