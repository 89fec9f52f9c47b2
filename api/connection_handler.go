package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/soyjavierquiroz/kurukin-core/gateway"
	"github.com/soyjavierquiroz/kurukin-core/routing"
	"github.com/soyjavierquiroz/kurukin-core/store"
)

// GatewayClient is the gateway surface the connection endpoints need.
type GatewayClient interface {
	ConnectAndGetQR(ctx context.Context, t gateway.Target) (*gateway.QRResult, error)
	ConnectionState(ctx context.Context, t gateway.Target) (string, error)
	Reset(ctx context.Context, t gateway.Target) (*gateway.QRResult, error)
}

// ConnectionHandler serves the tenant-facing WhatsApp connection actions.
type ConnectionHandler struct {
	router *routing.Router
	gw     GatewayClient
	logger *slog.Logger
}

// NewConnectionHandler creates a ConnectionHandler.
func NewConnectionHandler(router *routing.Router, gw GatewayClient, logger *slog.Logger) *ConnectionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConnectionHandler{router: router, gw: gw, logger: logger}
}

type qrResponse struct {
	Base64  *string `json:"base64"`
	Code    *string `json:"code"`
	Message string  `json:"message,omitempty"`
}

// Status returns the remote instance connection state. A gateway that
// cannot be reached is reported as the network_error pseudo-state rather
// than an HTTP failure, so the frontend can render it.
func (h *ConnectionHandler) Status(w http.ResponseWriter, r *http.Request) {
	target, ok := h.resolveTarget(w, r)
	if !ok {
		return
	}
	state, err := h.gw.ConnectionState(r.Context(), target)
	if err != nil {
		ge := gateway.AsError(err)
		if ge.Kind == gateway.KindConfig {
			WriteError(w, http.StatusInternalServerError, ge.Hint)
			return
		}
		h.logger.Warn("connection state unavailable",
			"tenant_id", target.TenantID, "kind", ge.Kind, "error", err)
		WriteJSON(w, http.StatusOK, map[string]string{"state": "network_error"})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"state": state})
}

// QR runs the connect pipeline and returns the QR payload.
func (h *ConnectionHandler) QR(w http.ResponseWriter, r *http.Request) {
	target, ok := h.resolveTarget(w, r)
	if !ok {
		return
	}
	h.writeQR(w, r.Context(), target, h.gw.ConnectAndGetQR)
}

// Reset logs the instance out and reconnects, returning a fresh QR.
func (h *ConnectionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	target, ok := h.resolveTarget(w, r)
	if !ok {
		return
	}
	h.writeQR(w, r.Context(), target, h.gw.Reset)
}

func (h *ConnectionHandler) writeQR(w http.ResponseWriter, ctx context.Context, target gateway.Target,
	op func(context.Context, gateway.Target) (*gateway.QRResult, error)) {
	qr, err := op(ctx, target)
	if err != nil {
		ge := gateway.AsError(err)
		switch ge.Kind {
		case gateway.KindQRTimeout:
			// Not a hard failure: the tenant just retries the action.
			WriteJSON(w, http.StatusOK, qrResponse{Message: ge.Hint})
		case gateway.KindConfig:
			WriteError(w, http.StatusInternalServerError, ge.Hint)
		case gateway.KindUnauthorized:
			WriteError(w, http.StatusBadGateway, ge.Hint)
		case gateway.KindUnreachable:
			WriteError(w, http.StatusServiceUnavailable, ge.Hint)
		default:
			WriteError(w, http.StatusBadGateway, ge.Hint)
		}
		return
	}
	WriteJSON(w, http.StatusOK, qrResponse{Base64: &qr.Base64, Code: &qr.Code})
}

// resolveTarget ensures the tenant's routing record and builds the gateway
// target from it.
func (h *ConnectionHandler) resolveTarget(w http.ResponseWriter, r *http.Request) (gateway.Target, bool) {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		WriteError(w, http.StatusUnauthorized, "unauthorized")
		return gateway.Target{}, false
	}
	rec, err := h.router.EnsureRecord(r.Context(), tenant.ID, tenant.Login, "")
	if err != nil {
		h.logger.Error("failed to ensure routing record",
			"tenant_id", tenant.ID, "error", err)
		WriteError(w, http.StatusInternalServerError, "routing is not configured for this account")
		return gateway.Target{}, false
	}
	return targetFromRecord(rec), true
}

func targetFromRecord(rec *store.RoutingRecord) gateway.Target {
	return gateway.Target{
		TenantID:     rec.TenantID,
		Endpoint:     rec.Endpoint,
		Credential:   rec.Credential,
		InstanceName: rec.InstanceName,
		WebhookURL:   routing.WebhookURL(rec),
		EventType:    rec.EventType,
	}
}
