package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTokenLedgerEnforcedOnSharedStore(t *testing.T) {
	ctx := context.Background()
	server, ledger := newLedgerForTest(t, time.Second)
	if !ledger.RevocationEnforced() {
		t.Fatal("expected revocation to be enforced on redis")
	}

	if err := ledger.RegisterAccess(ctx, "a1", "user-1", time.Hour); err != nil {
		t.Fatalf("register access: %v", err)
	}
	if err := ledger.RegisterRefresh(ctx, "r1", "user-1", 30*24*time.Hour); err != nil {
		t.Fatalf("register refresh: %v", err)
	}
	owner, ok, err := ledger.LookupAccess(ctx, "a1")
	if err != nil || !ok || owner != "user-1" {
		t.Fatalf("lookup access: owner=%q ok=%v err=%v", owner, ok, err)
	}
	if !server.Exists("ledgertest:ledger:access:a1") || !server.Exists("ledgertest:ledger:refresh:r1") {
		t.Fatalf("unexpected ledger keys %v", server.Keys())
	}
	if ttl := server.TTL("ledgertest:ledger:access:a1"); ttl != time.Hour {
		t.Fatalf("expected access record ttl to match token lifetime, got %v", ttl)
	}

	if err := ledger.RevokeAccess(ctx, "a1"); err != nil {
		t.Fatalf("revoke access: %v", err)
	}
	if _, ok, _ := ledger.LookupAccess(ctx, "a1"); ok {
		t.Fatal("expected revoked access record to be gone")
	}

	owner, ok, err = ledger.ConsumeRefresh(ctx, "r1")
	if err != nil || !ok || owner != "user-1" {
		t.Fatalf("consume refresh: owner=%q ok=%v err=%v", owner, ok, err)
	}
	if _, ok, _ := ledger.ConsumeRefresh(ctx, "r1"); ok {
		t.Fatal("expected refresh record to be consumed only once")
	}
	if _, ok, _ := ledger.LookupRefresh(ctx, "r1"); ok {
		t.Fatal("expected consumed refresh record to be gone")
	}
}

func TestTokenLedgerExpiresWithToken(t *testing.T) {
	ctx := context.Background()
	server, ledger := newLedgerForTest(t, time.Second)
	if err := ledger.RegisterAccess(ctx, "a1", "user-1", time.Minute); err != nil {
		t.Fatalf("register: %v", err)
	}
	server.FastForward(time.Minute + time.Second)
	if _, ok, _ := ledger.LookupAccess(ctx, "a1"); ok {
		t.Fatal("expected record to expire with the token")
	}
}

func TestTokenLedgerUntrackedOnLocalStore(t *testing.T) {
	ctx := context.Background()
	ledger := NewTokenLedger(NewInMemoryKVStore())
	if ledger.RevocationEnforced() {
		t.Fatal("expected in-memory ledger to be untracked")
	}
	if err := ledger.RegisterAccess(ctx, "a1", "user-1", time.Hour); !errors.Is(err, ErrLedgerUntracked) {
		t.Fatalf("expected ErrLedgerUntracked on register, got %v", err)
	}
	if _, _, err := ledger.LookupAccess(ctx, "a1"); !errors.Is(err, ErrLedgerUntracked) {
		t.Fatalf("expected ErrLedgerUntracked on lookup, got %v", err)
	}
	if _, _, err := ledger.ConsumeRefresh(ctx, "r1"); !errors.Is(err, ErrLedgerUntracked) {
		t.Fatalf("expected ErrLedgerUntracked on consume, got %v", err)
	}
	if err := ledger.RevokeAccess(ctx, "a1"); err != nil {
		t.Fatalf("revoke on untracked ledger should be a no-op: %v", err)
	}
}

func TestTokenLedgerEmptyJTI(t *testing.T) {
	ctx := context.Background()
	_, ledger := newLedgerForTest(t, time.Second)
	if _, ok, err := ledger.LookupAccess(ctx, ""); ok || err != nil {
		t.Fatalf("expected empty jti to be absent, ok=%v err=%v", ok, err)
	}
	if err := ledger.RevokeRefresh(ctx, ""); err != nil {
		t.Fatalf("revoke empty jti: %v", err)
	}
}

func TestTokenLedgerStoreOutage(t *testing.T) {
	ctx := context.Background()
	server, ledger := newLedgerForTest(t, 200*time.Millisecond)
	server.Close()
	if _, _, err := ledger.LookupAccess(ctx, "a1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if err := ledger.RegisterRefresh(ctx, "r1", "u", time.Hour); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable on register, got %v", err)
	}
}
