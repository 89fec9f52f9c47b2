package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/soyjavierquiroz/kurukin-core/gateway"
	"github.com/soyjavierquiroz/kurukin-core/registry"
	"github.com/soyjavierquiroz/kurukin-core/routing"
	"github.com/soyjavierquiroz/kurukin-core/store"
)

// CredentialValidator checks a voice provider API key against the
// provider's own API.
type CredentialValidator interface {
	Validate(ctx context.Context, apiKey string) (bool, error)
}

// SettingsHandler serves the tenant profile consumed by the automation
// engine: vertical, AI prompt, business data blocks and voice settings.
type SettingsHandler struct {
	settings  store.SettingsStore
	router    *routing.Router
	validator CredentialValidator
	logger    *slog.Logger
}

// NewSettingsHandler creates a SettingsHandler. validator may be nil, in
// which case credential validation reports an error.
func NewSettingsHandler(settings store.SettingsStore, router *routing.Router, validator CredentialValidator, logger *slog.Logger) *SettingsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsHandler{settings: settings, router: router, validator: validator, logger: logger}
}

type settingsPayload struct {
	Vertical     string `json:"vertical"`
	SystemPrompt string `json:"system_prompt"`
	Profile      string `json:"profile"`
	Services     string `json:"services"`
	Rules        string `json:"rules"`
	VoiceEnabled bool   `json:"voice_enabled"`
	VoiceID      string `json:"voice_id"`
	VoiceKey     string `json:"voice_key"`
	BYOKEnabled  bool   `json:"byok_enabled"`
}

// Get returns the tenant settings. The voice key is always masked; the
// real value never leaves the server.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	s, err := h.settings.Get(r.Context(), tenant.ID)
	if errors.Is(err, store.ErrNotFound) {
		s = &store.TenantSettings{TenantID: tenant.ID, Vertical: "general"}
	} else if err != nil {
		h.logger.Error("settings read failed", "tenant_id", tenant.ID, "error", err)
		WriteError(w, http.StatusInternalServerError, "could not read settings")
		return
	}
	WriteJSON(w, http.StatusOK, h.view(s))
}

// Put replaces the tenant settings. A masked or empty voice key keeps the
// stored key untouched, so a client echoing back what Get returned never
// destroys the real credential. A vertical change re-syncs the routing
// record (the stack pin never moves).
func (h *SettingsHandler) Put(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var in settingsPayload
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	current, err := h.settings.Get(r.Context(), tenant.ID)
	if errors.Is(err, store.ErrNotFound) {
		current = &store.TenantSettings{TenantID: tenant.ID}
	} else if err != nil {
		h.logger.Error("settings read failed", "tenant_id", tenant.ID, "error", err)
		WriteError(w, http.StatusInternalServerError, "could not read settings")
		return
	}

	vertical := registry.Slug(in.Vertical)
	if vertical == "" {
		vertical = orDefault(current.Vertical, "general")
	}

	next := &store.TenantSettings{
		TenantID:     tenant.ID,
		Vertical:     vertical,
		SystemPrompt: in.SystemPrompt,
		Profile:      in.Profile,
		Services:     in.Services,
		Rules:        in.Rules,
		VoiceEnabled: in.VoiceEnabled,
		VoiceID:      strings.TrimSpace(in.VoiceID),
		VoiceKey:     current.VoiceKey,
		BYOKEnabled:  in.BYOKEnabled,
		UpdatedAt:    time.Now().UTC(),
	}
	if key := strings.TrimSpace(in.VoiceKey); key != "" && !isMaskedKey(key) {
		next.VoiceKey = key
	}

	if err := h.settings.Put(r.Context(), next); err != nil {
		h.logger.Error("settings write failed", "tenant_id", tenant.ID, "error", err)
		WriteError(w, http.StatusInternalServerError, "could not save settings")
		return
	}

	if h.router != nil {
		if _, err := h.router.EnsureRecord(r.Context(), tenant.ID, tenant.Login, vertical); err != nil {
			h.logger.Warn("routing vertical sync failed",
				"tenant_id", tenant.ID, "vertical", vertical, "error", err)
		}
	}
	WriteJSON(w, http.StatusOK, h.view(next))
}

// ValidateCredential checks a voice API key against the provider without
// storing it. A masked key cannot be validated; the client must paste the
// real one.
func (h *SettingsHandler) ValidateCredential(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var in struct {
		APIKey string `json:"api_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	key := strings.TrimSpace(in.APIKey)
	if key == "" {
		WriteError(w, http.StatusBadRequest, "api_key is required")
		return
	}
	if isMaskedKey(key) {
		WriteError(w, http.StatusBadRequest, "a masked key cannot be validated")
		return
	}
	if h.validator == nil {
		WriteError(w, http.StatusServiceUnavailable, "credential validation is not configured")
		return
	}
	valid, err := h.validator.Validate(r.Context(), key)
	if err != nil {
		h.logger.Warn("credential validation unavailable", "tenant_id", tenant.ID, "error", err)
		WriteError(w, http.StatusBadGateway, "the voice provider could not be reached")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"valid": valid})
}

func (h *SettingsHandler) view(s *store.TenantSettings) settingsPayload {
	masked := ""
	if s.VoiceKey != "" {
		masked = gateway.MaskKey(s.VoiceKey)
	}
	return settingsPayload{
		Vertical:     s.Vertical,
		SystemPrompt: s.SystemPrompt,
		Profile:      s.Profile,
		Services:     s.Services,
		Rules:        s.Rules,
		VoiceEnabled: s.VoiceEnabled,
		VoiceID:      s.VoiceID,
		VoiceKey:     masked,
		BYOKEnabled:  s.BYOKEnabled,
	}
}

// isMaskedKey detects a key that was already masked on the way out.
func isMaskedKey(key string) bool {
	return strings.Contains(key, "****")
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// ElevenLabsValidator validates keys against the ElevenLabs user endpoint.
type ElevenLabsValidator struct {
	Endpoint string
	Client   *http.Client
}

// NewElevenLabsValidator creates a validator against the given API base
// (empty means the public API).
func NewElevenLabsValidator(endpoint string) *ElevenLabsValidator {
	if endpoint == "" {
		endpoint = "https://api.elevenlabs.io"
	}
	return &ElevenLabsValidator{
		Endpoint: strings.TrimRight(endpoint, "/"),
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Validate calls GET /v1/user with the key. A 2xx means the key works,
// 401 or 403 means it does not; anything else is a provider error.
func (v *ElevenLabsValidator) Validate(ctx context.Context, apiKey string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.Endpoint+"/v1/user", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("xi-api-key", apiKey)
	resp, err := v.Client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return true, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, nil
	default:
		return false, fmt.Errorf("voice provider returned status %d", resp.StatusCode)
	}
}

var _ CredentialValidator = (*ElevenLabsValidator)(nil)
