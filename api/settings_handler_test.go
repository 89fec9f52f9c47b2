package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSettingsRoundTripMasksVoiceKey(t *testing.T) {
	env := newTestEnv(t)
	token := signToken(t, "7", "maria")

	rec := env.doRequest(t, http.MethodPut, "/api/v1/settings", token, "", settingsPayload{
		Vertical:     "Dental",
		SystemPrompt: "You are the clinic receptionist.",
		Profile:      "Clinica Sonrisa, Lima",
		VoiceEnabled: true,
		VoiceID:      "voice-1",
		VoiceKey:     "sk_live_1234567890abc",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = env.doRequest(t, http.MethodGet, "/api/v1/settings", token, "", nil)
	var out settingsPayload
	decodeData(t, rec, &out)
	if out.Vertical != "dental" {
		t.Errorf("vertical = %q, want slugged", out.Vertical)
	}
	if !strings.Contains(out.VoiceKey, "****") {
		t.Errorf("voice key %q not masked", out.VoiceKey)
	}
	if strings.Contains(out.VoiceKey, "1234567890") {
		t.Errorf("voice key %q leaks the middle", out.VoiceKey)
	}

	stored, err := env.settings.Get(context.Background(), "7")
	if err != nil {
		t.Fatalf("stored settings: %v", err)
	}
	if stored.VoiceKey != "sk_live_1234567890abc" {
		t.Fatalf("stored key = %q", stored.VoiceKey)
	}
}

func TestSettingsEchoedMaskNeverOverwritesKey(t *testing.T) {
	env := newTestEnv(t)
	token := signToken(t, "7", "maria")

	env.doRequest(t, http.MethodPut, "/api/v1/settings", token, "",
		settingsPayload{VoiceKey: "sk_live_1234567890abc"})

	// Client saves the form again, echoing back the masked value.
	rec := env.doRequest(t, http.MethodPut, "/api/v1/settings", token, "",
		settingsPayload{VoiceKey: "sk_l****abc", SystemPrompt: "updated"})
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d", rec.Code)
	}

	stored, err := env.settings.Get(context.Background(), "7")
	if err != nil {
		t.Fatalf("stored settings: %v", err)
	}
	if stored.VoiceKey != "sk_live_1234567890abc" {
		t.Fatalf("stored key = %q, masked echo overwrote it", stored.VoiceKey)
	}
	if stored.SystemPrompt != "updated" {
		t.Fatalf("system prompt = %q, update lost", stored.SystemPrompt)
	}
}

func TestSettingsVerticalChangeSyncsRouting(t *testing.T) {
	env := newTestEnv(t)
	token := signToken(t, "7", "maria")

	// Pin the record first via a connection call.
	env.doRequest(t, http.MethodGet, "/api/v1/connection/status", token, "", nil)
	before, err := env.records.Get(context.Background(), "7")
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	env.doRequest(t, http.MethodPut, "/api/v1/settings", token, "",
		settingsPayload{Vertical: "legal"})

	after, err := env.records.Get(context.Background(), "7")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if after.Vertical != "legal" {
		t.Fatalf("vertical = %q, want legal", after.Vertical)
	}
	if after.Endpoint != before.Endpoint || after.Credential != before.Credential {
		t.Fatal("vertical change moved the stack pin")
	}
	if after.InstanceName != before.InstanceName {
		t.Fatal("vertical change renamed the instance")
	}
}

func TestValidateCredentialRejectsMaskedKey(t *testing.T) {
	env := newTestEnv(t)
	rec := env.doRequest(t, http.MethodPost, "/api/v1/validate-credential",
		signToken(t, "7", "maria"), "", map[string]string{"api_key": "sk_l****abc"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if env.validator.seen != "" {
		t.Fatal("masked key reached the validator")
	}
}

func TestValidateCredentialReportsVerdict(t *testing.T) {
	env := newTestEnv(t)
	env.validator.valid = false
	rec := env.doRequest(t, http.MethodPost, "/api/v1/validate-credential",
		signToken(t, "7", "maria"), "", map[string]string{"api_key": "sk_live_bad"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out map[string]bool
	decodeData(t, rec, &out)
	if out["valid"] {
		t.Fatal("valid = true, want false")
	}
}

func TestElevenLabsValidator(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/user" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotKey = r.Header.Get("xi-api-key")
		if gotKey == "good" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	v := NewElevenLabsValidator(srv.URL)
	ctx := context.Background()

	ok, err := v.Validate(ctx, "good")
	if err != nil || !ok {
		t.Fatalf("good key: ok=%v err=%v", ok, err)
	}
	ok, err = v.Validate(ctx, "bad")
	if err != nil || ok {
		t.Fatalf("bad key: ok=%v err=%v", ok, err)
	}
	if gotKey != "bad" {
		t.Fatalf("header key = %q", gotKey)
	}
}
