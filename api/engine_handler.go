package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/soyjavierquiroz/kurukin-core/ledger"
	"github.com/soyjavierquiroz/kurukin-core/routing"
	"github.com/soyjavierquiroz/kurukin-core/store"
)

// engineConfigVersion is bumped whenever the payload shape changes, so
// downstream engines can detect stale caches.
const engineConfigVersion = "2.0"

// EngineHandler serves the machine-to-machine configuration endpoint the
// downstream automation engine polls, keyed by remote instance name.
type EngineHandler struct {
	router   *routing.Router
	settings store.SettingsStore
	subs     store.SubscriptionStore
	ledger   *ledger.Service
	logger   *slog.Logger
}

// NewEngineHandler creates an EngineHandler.
func NewEngineHandler(router *routing.Router, settings store.SettingsStore, subs store.SubscriptionStore, svc *ledger.Service, logger *slog.Logger) *EngineHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EngineHandler{router: router, settings: settings, subs: subs, ledger: svc, logger: logger}
}

type engineRouterLogic struct {
	WorkflowMode string `json:"workflow_mode"`
	ClusterNode  string `json:"cluster_node"`
	Version      string `json:"version"`
}

type engineAIBrain struct {
	Provider     string `json:"provider"`
	APIKey       string `json:"api_key"`
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt"`
}

type engineVoiceConfig struct {
	Provider string `json:"provider"`
	Enabled  bool   `json:"enabled"`
	APIKey   string `json:"api_key"`
	VoiceID  string `json:"voice_id"`
	ModelID  string `json:"model_id"`
}

type engineBusinessBlock struct {
	Category string `json:"category"`
	Content  string `json:"content"`
}

type engineConnection struct {
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"apikey"`
}

type engineConfigResponse struct {
	Status      string                `json:"status"`
	InstanceID  string                `json:"instance_id"`
	RouterLogic engineRouterLogic     `json:"router_logic"`
	AIBrain     engineAIBrain         `json:"ai_brain"`
	VoiceConfig engineVoiceConfig     `json:"voice_config"`
	Business    []engineBusinessBlock `json:"business_data"`
	Connection  engineConnection      `json:"evolution_connection"`
}

// Config resolves the full engine configuration for an instance. Unknown
// instances get 404; instances whose membership lapsed get 402 so the
// engine stops processing for them.
func (h *EngineHandler) Config(w http.ResponseWriter, r *http.Request) {
	instanceID := sanitizeInstanceID(r.URL.Query().Get("instance_id"))
	if instanceID == "" {
		WriteError(w, http.StatusBadRequest, "instance_id is required")
		return
	}

	rec, err := h.router.FindByInstance(r.Context(), instanceID)
	if errors.Is(err, store.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "unknown instance")
		return
	} else if err != nil {
		h.logger.Error("instance lookup failed", "instance", instanceID, "error", err)
		WriteError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	active, err := h.subs.Active(r.Context(), rec.TenantID)
	if err != nil {
		h.logger.Error("subscription check failed", "tenant_id", rec.TenantID, "error", err)
		WriteError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	if !active {
		if _, ok, gerr := h.ledger.GraceDeadline(r.Context(), rec.TenantID); gerr != nil || !ok {
			WriteError(w, http.StatusPaymentRequired, "membership is not active")
			return
		}
		// Grace window still open: the tenant keeps service for now.
	}

	settings, err := h.settings.Get(r.Context(), rec.TenantID)
	if errors.Is(err, store.ErrNotFound) {
		settings = &store.TenantSettings{TenantID: rec.TenantID, Vertical: rec.Vertical}
	} else if err != nil {
		h.logger.Error("settings read failed", "tenant_id", rec.TenantID, "error", err)
		WriteError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	canProcess, _, err := h.ledger.CanProcess(r.Context(), rec.TenantID)
	if err != nil {
		h.logger.Error("balance check failed", "tenant_id", rec.TenantID, "error", err)
		WriteError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	status := "active"
	if !canProcess {
		status = "out_of_credits"
	}

	resp := engineConfigResponse{
		Status:     status,
		InstanceID: instanceID,
		RouterLogic: engineRouterLogic{
			WorkflowMode: orDefault(settings.Vertical, rec.Vertical),
			ClusterNode:  rec.StackID,
			Version:      engineConfigVersion,
		},
		AIBrain: engineAIBrain{
			Provider:     "openai",
			Model:        "gpt-4o-mini",
			SystemPrompt: settings.SystemPrompt,
		},
		VoiceConfig: engineVoiceConfig{
			Provider: "elevenlabs",
			Enabled:  settings.VoiceEnabled,
			APIKey:   settings.VoiceKey,
			VoiceID:  settings.VoiceID,
			ModelID:  "eleven_multilingual_v2",
		},
		Business: businessBlocks(settings),
		Connection: engineConnection{
			Endpoint: rec.Endpoint,
			APIKey:   rec.Credential,
		},
	}
	WriteJSON(w, http.StatusOK, resp)
}

// businessBlocks flattens the free-text profile fields into the labelled
// blocks the engine prompt builder expects. Empty fields are skipped.
func businessBlocks(s *store.TenantSettings) []engineBusinessBlock {
	blocks := make([]engineBusinessBlock, 0, 3)
	for _, b := range []engineBusinessBlock{
		{Category: "COMPANY_PROFILE", Content: s.Profile},
		{Category: "SERVICES_LIST", Content: s.Services},
		{Category: "RULES", Content: s.Rules},
	} {
		if strings.TrimSpace(b.Content) != "" {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

// sanitizeInstanceID strips anything outside [a-z0-9_-] after lowering.
func sanitizeInstanceID(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	var b strings.Builder
	for _, r := range raw {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
