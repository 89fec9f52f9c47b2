package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/soyjavierquiroz/kurukin-core/ledger"
	"github.com/soyjavierquiroz/kurukin-core/store"
)

// AdminHandler serves the operator-facing credit adjustments.
type AdminHandler struct {
	ledger *ledger.Service
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(svc *ledger.Service, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{ledger: svc, logger: logger}
}

type adminCreditRequest struct {
	UserRef       string `json:"user_ref"`
	Amount        string `json:"amount"`
	Mode          string `json:"mode"`
	TransactionID string `json:"transaction_id"`
	Note          string `json:"note"`
}

// Credits applies a manual balance adjustment. Mode "set" overwrites the
// balance, mode "add" (the default) tops it up. An optional transaction id
// makes an add idempotent across retries.
func (h *AdminHandler) Credits(w http.ResponseWriter, r *http.Request) {
	var in adminCreditRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if in.UserRef == "" {
		WriteError(w, http.StatusBadRequest, "user_ref is required")
		return
	}

	var (
		res ledger.Result
		err error
	)
	switch in.Mode {
	case "set":
		res, err = h.ledger.SetCredits(r.Context(), in.UserRef, in.Amount, ledger.Movement{
			Type:   store.EntryAdminSet,
			Source: "admin",
			Note:   in.Note,
		})
	case "", "add":
		m := ledger.Movement{
			Type:   store.EntryAdminAdd,
			Source: "admin",
			Note:   in.Note,
		}
		if in.TransactionID != "" {
			m.DedupeRef = "admin_txn:" + in.TransactionID
		}
		res, err = h.ledger.AddCredits(r.Context(), in.UserRef, in.Amount, m)
	default:
		WriteError(w, http.StatusBadRequest, "mode must be \"set\" or \"add\"")
		return
	}
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidAmount) || errors.Is(err, ledger.ErrInvalidTenant) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("admin credit adjustment failed",
			"user_ref", in.UserRef, "mode", in.Mode, "error", err)
		WriteError(w, http.StatusInternalServerError, "credit adjustment failed")
		return
	}

	h.logger.Info("admin credit adjustment",
		"user_ref", in.UserRef, "mode", orDefault(in.Mode, "add"),
		"applied", res.Applied, "balance", res.Balance)
	WriteJSON(w, http.StatusOK, map[string]any{
		"user_ref": in.UserRef,
		"balance":  res.Balance,
		"applied":  res.Applied,
	})
}
