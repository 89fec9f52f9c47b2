package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/soyjavierquiroz/kurukin-core/ledger"
	"github.com/soyjavierquiroz/kurukin-core/store"
)

const defaultHistoryLimit = 20

// WalletHandler serves the tenant's credit balance and movement history.
type WalletHandler struct {
	ledger *ledger.Service
	logger *slog.Logger
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(svc *ledger.Service, logger *slog.Logger) *WalletHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WalletHandler{ledger: svc, logger: logger}
}

type walletResponse struct {
	Balance     string               `json:"credits_balance"`
	CanProcess  bool                 `json:"can_process"`
	MinRequired string               `json:"min_required"`
	GraceUntil  *time.Time           `json:"grace_until,omitempty"`
	History     []*store.LedgerEntry `json:"history"`
}

// Get returns the wallet snapshot: balance, whether the tenant is above
// the processing threshold, grace deadline if one is open, and the most
// recent ledger entries.
func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	if tenant == nil {
		WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	can, balance, err := h.ledger.CanProcess(r.Context(), tenant.ID)
	if err != nil {
		h.logger.Error("wallet read failed", "tenant_id", tenant.ID, "error", err)
		WriteError(w, http.StatusInternalServerError, "could not read wallet")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	history, err := h.ledger.History(r.Context(), tenant.ID, limit)
	if err != nil {
		h.logger.Error("wallet history failed", "tenant_id", tenant.ID, "error", err)
		WriteError(w, http.StatusInternalServerError, "could not read wallet")
		return
	}
	if history == nil {
		history = []*store.LedgerEntry{}
	}

	resp := walletResponse{
		Balance:     balance,
		CanProcess:  can,
		MinRequired: h.ledger.MinRequired(),
		History:     history,
	}
	if until, ok, err := h.ledger.GraceDeadline(r.Context(), tenant.ID); err == nil && ok {
		resp.GraceUntil = &until
	}
	WriteJSON(w, http.StatusOK, resp)
}
