package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handlers bundles everything the HTTP router mounts.
type Handlers struct {
	Middleware *Middleware
	Connection *ConnectionHandler
	Wallet     *WalletHandler
	Settings   *SettingsHandler
	Admin      *AdminHandler
	Billing    *BillingHandler
	Engine     *EngineHandler
}

// NewRouter builds the ServeMux with all routes mounted behind their
// middleware. Tenant routes require a Bearer token and are rate limited
// per IP; admin and engine routes require the shared secret header.
func NewRouter(h Handlers) *http.ServeMux {
	mux := http.NewServeMux()

	limited := h.Middleware.RateLimit(60)
	tenant := func(fn http.HandlerFunc) http.Handler {
		return limited(h.Middleware.RequireTenant(fn))
	}
	admin := func(fn http.HandlerFunc) http.Handler {
		return h.Middleware.RequireAdmin(fn)
	}

	mux.Handle("GET /api/v1/connection/status", tenant(h.Connection.Status))
	mux.Handle("GET /api/v1/connection/qr", tenant(h.Connection.QR))
	mux.Handle("POST /api/v1/connection/reset", tenant(h.Connection.Reset))

	mux.Handle("GET /api/v1/wallet", tenant(h.Wallet.Get))

	mux.Handle("GET /api/v1/settings", tenant(h.Settings.Get))
	mux.Handle("POST /api/v1/settings", tenant(h.Settings.Put))
	mux.Handle("PUT /api/v1/settings", tenant(h.Settings.Put))
	mux.Handle("POST /api/v1/validate-credential", tenant(h.Settings.ValidateCredential))

	mux.Handle("POST /api/v1/admin/credits", admin(h.Admin.Credits))
	mux.Handle("POST /api/v1/billing/events", admin(h.Billing.Webhook))
	mux.Handle("GET /api/v1/engine/config", admin(h.Engine.Config))

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return mux
}
