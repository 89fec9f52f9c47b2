package api

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/soyjavierquiroz/kurukin-core/billing"
)

const maxBillingBody = 256 << 10

// BillingHandler ingests membership webhooks and turns completed
// transactions into credits.
type BillingHandler struct {
	applier *billing.Applier
	logger  *slog.Logger
}

// NewBillingHandler creates a BillingHandler.
func NewBillingHandler(applier *billing.Applier, logger *slog.Logger) *BillingHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingHandler{applier: applier, logger: logger}
}

// Webhook accepts a membership event. Events that do not map to a credit
// rule, or that were already applied, are acknowledged anyway so the
// sender does not keep redelivering them.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBillingBody))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "could not read body")
		return
	}
	ev, err := billing.ParseEvent(body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "unrecognized event payload")
		return
	}

	res, err := h.applier.Handle(r.Context(), ev)
	if err != nil {
		h.logger.Error("billing event failed",
			"tenant_id", ev.TenantID, "kind", ev.Kind, "error", err)
		WriteError(w, http.StatusInternalServerError, "event could not be applied")
		return
	}

	out := map[string]any{"received": true}
	if res != nil {
		out["applied"] = res.Applied
		out["balance"] = res.Balance
	}
	WriteJSON(w, http.StatusOK, out)
}
