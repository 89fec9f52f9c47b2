package registry

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Stack describes one gateway deployment an operator has provisioned:
// a WhatsApp gateway endpoint, its credential, and the webhook receiver
// that gateway should call back into.
type Stack struct {
	StackID            string   `yaml:"stack_id"`
	GatewayEndpoint    string   `yaml:"gateway_endpoint"`
	GatewayCredential  string   `yaml:"gateway_credential"`
	WebhookBaseURL     string   `yaml:"webhook_base_url"`
	RouterID           string   `yaml:"router_id"`
	SupportedVerticals []string `yaml:"supported_verticals"`
	DefaultEventType   string   `yaml:"default_event_type"`
	Active             bool     `yaml:"active"`
	Capacity           int      `yaml:"capacity"`
}

// DefaultEventTypeName is the webhook event subscribed to when a stack
// does not declare one.
const DefaultEventTypeName = "MESSAGES_UPSERT"

// Normalize fills derived defaults and sanitizes operator-entered fields.
// Every stack supports the "general" vertical in addition to whatever the
// operator listed.
func (s *Stack) Normalize() {
	s.StackID = strings.TrimSpace(s.StackID)
	s.GatewayEndpoint = strings.TrimRight(strings.TrimSpace(s.GatewayEndpoint), "/")
	s.GatewayCredential = strings.TrimSpace(s.GatewayCredential)
	s.WebhookBaseURL = strings.TrimRight(strings.TrimSpace(s.WebhookBaseURL), "/")
	s.RouterID = SanitizeRouterID(s.RouterID)
	s.DefaultEventType = SanitizeEventType(s.DefaultEventType)

	seen := map[string]bool{}
	var verticals []string
	for _, v := range s.SupportedVerticals {
		v = Slug(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		verticals = append(verticals, v)
	}
	if !seen["general"] {
		verticals = append(verticals, "general")
	}
	s.SupportedVerticals = verticals
}

// Supports reports whether the stack serves the given vertical.
func (s *Stack) Supports(vertical string) bool {
	for _, v := range s.SupportedVerticals {
		if v == vertical {
			return true
		}
	}
	return false
}

// SanitizeRouterID strips every character outside hex digits and hyphens.
func SanitizeRouterID(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SanitizeEventType strips every character outside letters, digits,
// underscore, dot and hyphen, falling back to DefaultEventTypeName when
// nothing survives.
func SanitizeEventType(ev string) string {
	var b strings.Builder
	for _, r := range ev {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '_', r == '.', r == '-':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return DefaultEventTypeName
	}
	return b.String()
}

// Slug lowercases a name and collapses everything outside [a-z0-9] into
// single hyphens. Used for instance names and vertical keys.
func Slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastHyphen := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteRune('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// stacksFile is the on-disk layout of the stack inventory.
type stacksFile struct {
	Stacks []Stack `yaml:"stacks"`
}

// LoadStacksFile reads and normalizes the stack inventory from a YAML file.
// Stacks without a stack_id or gateway endpoint are rejected.
func LoadStacksFile(path string) ([]Stack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stacks file: %w", err)
	}
	var f stacksFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse stacks file: %w", err)
	}
	for i := range f.Stacks {
		f.Stacks[i].Normalize()
		if f.Stacks[i].StackID == "" {
			return nil, fmt.Errorf("stack %d: stack_id is required", i)
		}
		if f.Stacks[i].GatewayEndpoint == "" {
			return nil, fmt.Errorf("stack %q: gateway_endpoint is required", f.Stacks[i].StackID)
		}
	}
	return f.Stacks, nil
}
