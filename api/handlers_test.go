package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"

	"github.com/soyjavierquiroz/kurukin-core/billing"
	"github.com/soyjavierquiroz/kurukin-core/gateway"
	"github.com/soyjavierquiroz/kurukin-core/ledger"
	"github.com/soyjavierquiroz/kurukin-core/registry"
	"github.com/soyjavierquiroz/kurukin-core/routing"
	"github.com/soyjavierquiroz/kurukin-core/store"
)

const (
	testJWTSecret   = "test-jwt-secret"
	testAdminSecret = "test-admin-secret"
)

// fakeGW is a scriptable GatewayClient.
type fakeGW struct {
	connectFn func(ctx context.Context, t gateway.Target) (*gateway.QRResult, error)
	stateFn   func(ctx context.Context, t gateway.Target) (string, error)
	resetFn   func(ctx context.Context, t gateway.Target) (*gateway.QRResult, error)
}

func (f *fakeGW) ConnectAndGetQR(ctx context.Context, t gateway.Target) (*gateway.QRResult, error) {
	if f.connectFn == nil {
		return &gateway.QRResult{Base64: "data:image/png;base64,QR"}, nil
	}
	return f.connectFn(ctx, t)
}

func (f *fakeGW) ConnectionState(ctx context.Context, t gateway.Target) (string, error) {
	if f.stateFn == nil {
		return "open", nil
	}
	return f.stateFn(ctx, t)
}

func (f *fakeGW) Reset(ctx context.Context, t gateway.Target) (*gateway.QRResult, error) {
	if f.resetFn == nil {
		return &gateway.QRResult{Base64: "data:image/png;base64,QR2"}, nil
	}
	return f.resetFn(ctx, t)
}

// stubValidator approves or rejects every key.
type stubValidator struct {
	valid bool
	err   error
	seen  string
}

func (v *stubValidator) Validate(_ context.Context, apiKey string) (bool, error) {
	v.seen = apiKey
	return v.valid, v.err
}

type testEnv struct {
	mux       *http.ServeMux
	gw        *fakeGW
	validator *stubValidator
	settings  store.SettingsStore
	subs      store.SubscriptionStore
	records   store.RoutingStore
	ledger    *ledger.Service
	router    *routing.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	stack := registry.Stack{
		StackID:            "st-1",
		GatewayEndpoint:    "http://gw.local",
		GatewayCredential:  "stack-key",
		WebhookBaseURL:     "https://hooks.local",
		RouterID:           "ab12",
		SupportedVerticals: []string{"general"},
		Active:             true,
	}
	stack.Normalize()
	reg := registry.New([]registry.Stack{stack}, store.NewInMemoryPointerStore(), logger)

	records := store.NewInMemoryRoutingStore()
	router := routing.New(records, reg, routing.Defaults{}, logger)

	subs := store.NewInMemorySubscriptionStore()
	led, err := ledger.New(
		store.NewInMemoryLedgerStore(),
		store.NewInMemoryBalanceStore(),
		store.NewInMemoryMarkerStore(),
		store.NewInMemoryGraceStore(),
		subs, ledger.Config{}, logger)
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}

	settings := store.NewInMemorySettingsStore()
	gw := &fakeGW{}
	validator := &stubValidator{valid: true}

	mw := NewMiddleware([]byte(testJWTSecret), testAdminSecret)
	t.Cleanup(mw.Stop)

	mux := NewRouter(Handlers{
		Middleware: mw,
		Connection: NewConnectionHandler(router, gw, logger),
		Wallet:     NewWalletHandler(led, logger),
		Settings:   NewSettingsHandler(settings, router, validator, logger),
		Admin:      NewAdminHandler(led, logger),
		Billing:    NewBillingHandler(billing.NewApplier(led, subs, nil, logger), logger),
		Engine:     NewEngineHandler(router, settings, subs, led, logger),
	})

	return &testEnv{
		mux:       mux,
		gw:        gw,
		validator: validator,
		settings:  settings,
		subs:      subs,
		records:   records,
		ledger:    led,
		router:    router,
	}
}

func signToken(t *testing.T, sub, login string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"login": login,
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// doRequest performs a request against the env mux. auth is either a
// bearer token, the admin secret, or empty.
func (e *testEnv) doRequest(t *testing.T, method, path, bearer, admin string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, rd)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if admin != "" {
		req.Header.Set(AdminSecretHeader, admin)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	var env struct {
		Data  json.RawMessage `json:"data"`
		Error string          `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			t.Fatalf("decode data: %v (body %q)", err, rec.Body.String())
		}
	}
}

func TestRequireTenantRejectsMissingToken(t *testing.T) {
	env := newTestEnv(t)
	rec := env.doRequest(t, http.MethodGet, "/api/v1/wallet", "", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireTenantRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "7"})
	signed, err := token.SignedString([]byte("wrong-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	rec := env.doRequest(t, http.MethodGet, "/api/v1/wallet", signed, "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAdminRejectsWrongSecret(t *testing.T) {
	env := newTestEnv(t)
	rec := env.doRequest(t, http.MethodPost, "/api/v1/admin/credits", "", "nope",
		map[string]string{"user_ref": "7", "amount": "1"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.doRequest(t, http.MethodGet, "/healthz", "", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
