package api

import (
	"context"
	"net/http"
	"testing"
)

func TestAdminCreditsAdd(t *testing.T) {
	env := newTestEnv(t)
	rec := env.doRequest(t, http.MethodPost, "/api/v1/admin/credits", "", testAdminSecret,
		adminCreditRequest{UserRef: "7", Amount: "2.500000", Note: "support topup"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var out map[string]any
	decodeData(t, rec, &out)
	if out["balance"] != "2.500000" {
		t.Fatalf("balance = %v", out["balance"])
	}
	if out["applied"] != true {
		t.Fatalf("applied = %v", out["applied"])
	}
}

func TestAdminCreditsSetOverwrites(t *testing.T) {
	env := newTestEnv(t)
	env.doRequest(t, http.MethodPost, "/api/v1/admin/credits", "", testAdminSecret,
		adminCreditRequest{UserRef: "7", Amount: "9.000000"})

	rec := env.doRequest(t, http.MethodPost, "/api/v1/admin/credits", "", testAdminSecret,
		adminCreditRequest{UserRef: "7", Amount: "1.000000", Mode: "set"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	balance, err := env.ledger.Balance(context.Background(), "7")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != "1.000000" {
		t.Fatalf("balance = %q, want 1.000000", balance)
	}
}

func TestAdminCreditsIdempotentWithTransactionID(t *testing.T) {
	env := newTestEnv(t)
	req := adminCreditRequest{UserRef: "7", Amount: "3.000000", TransactionID: "manual-42"}

	env.doRequest(t, http.MethodPost, "/api/v1/admin/credits", "", testAdminSecret, req)
	rec := env.doRequest(t, http.MethodPost, "/api/v1/admin/credits", "", testAdminSecret, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out map[string]any
	decodeData(t, rec, &out)
	if out["applied"] != false {
		t.Fatalf("applied = %v, want duplicate no-op", out["applied"])
	}
	if out["balance"] != "3.000000" {
		t.Fatalf("balance = %v", out["balance"])
	}
}

func TestAdminCreditsValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.doRequest(t, http.MethodPost, "/api/v1/admin/credits", "", testAdminSecret,
		adminCreditRequest{Amount: "1.000000"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing user_ref status = %d, want 400", rec.Code)
	}

	rec = env.doRequest(t, http.MethodPost, "/api/v1/admin/credits", "", testAdminSecret,
		adminCreditRequest{UserRef: "7", Amount: "-1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative amount status = %d, want 400", rec.Code)
	}

	rec = env.doRequest(t, http.MethodPost, "/api/v1/admin/credits", "", testAdminSecret,
		adminCreditRequest{UserRef: "7", Amount: "1", Mode: "multiply"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad mode status = %d, want 400", rec.Code)
	}
}
