package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/soyjavierquiroz/kurukin-core/ledger"
	"github.com/soyjavierquiroz/kurukin-core/store"
)

func TestWalletReturnsBalanceAndHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.ledger.AddCredits(ctx, "7", "5.000000", ledger.Movement{Source: "test"}); err != nil {
		t.Fatalf("seed credits: %v", err)
	}

	rec := env.doRequest(t, http.MethodGet, "/api/v1/wallet",
		signToken(t, "7", "maria"), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var out walletResponse
	decodeData(t, rec, &out)
	if out.Balance != "5.000000" {
		t.Errorf("balance = %q", out.Balance)
	}
	if !out.CanProcess {
		t.Error("can_process = false, want true")
	}
	if out.MinRequired != "0.010000" {
		t.Errorf("min_required = %q", out.MinRequired)
	}
	if len(out.History) != 1 {
		t.Fatalf("history entries = %d, want 1", len(out.History))
	}
	if out.History[0].Type != store.EntryCredit {
		t.Errorf("entry type = %q", out.History[0].Type)
	}
	if out.GraceUntil != nil {
		t.Error("grace_until set on a healthy wallet")
	}
}

func TestWalletEmptyTenant(t *testing.T) {
	env := newTestEnv(t)
	rec := env.doRequest(t, http.MethodGet, "/api/v1/wallet",
		signToken(t, "99", "nobody"), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out walletResponse
	decodeData(t, rec, &out)
	if out.Balance != "0.000000" {
		t.Errorf("balance = %q, want zero", out.Balance)
	}
	if out.CanProcess {
		t.Error("can_process = true with no credits")
	}
	if out.History == nil || len(out.History) != 0 {
		t.Errorf("history = %v, want empty slice", out.History)
	}
}

func TestWalletShowsGraceDeadline(t *testing.T) {
	env := newTestEnv(t)
	if err := env.ledger.StartGrace(context.Background(), "7"); err != nil {
		t.Fatalf("start grace: %v", err)
	}
	rec := env.doRequest(t, http.MethodGet, "/api/v1/wallet",
		signToken(t, "7", "maria"), "", nil)
	var out walletResponse
	decodeData(t, rec, &out)
	if out.GraceUntil == nil {
		t.Fatal("grace_until missing")
	}
}

func TestWalletHistoryLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := env.ledger.AddCredits(ctx, "7", "1.000000", ledger.Movement{Source: "test"}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	rec := env.doRequest(t, http.MethodGet, "/api/v1/wallet?limit=2",
		signToken(t, "7", "maria"), "", nil)
	var out walletResponse
	decodeData(t, rec, &out)
	if len(out.History) != 2 {
		t.Fatalf("history entries = %d, want 2", len(out.History))
	}
}
