package service

import (
	"context"
	"time"

	"github.com/tutorlink/tutorlink-api/internal/domain"
	"github.com/tutorlink/tutorlink-api/internal/observability"
)

const ledgerKeyPrefix = "ledger:"

// TokenLedger records which issued tokens are still live. Revocation is only
// enforced on a shared backend: on the in-process fallback the ledger tracks
// nothing and every call reports ErrLedgerUntracked, so tokens are honored on
// signature and expiry alone.
type TokenLedger struct {
	store    KVStore
	enforced bool
}

func NewTokenLedger(store KVStore) *TokenLedger {
	return &TokenLedger{store: store, enforced: store != nil && store.Shared()}
}

func (l *TokenLedger) RevocationEnforced() bool { return l.enforced }

func (l *TokenLedger) RegisterAccess(ctx context.Context, jti, userID string, ttl time.Duration) error {
	return l.register(ctx, domain.TokenKindAccess, jti, userID, ttl)
}

func (l *TokenLedger) RegisterRefresh(ctx context.Context, jti, userID string, ttl time.Duration) error {
	return l.register(ctx, domain.TokenKindRefresh, jti, userID, ttl)
}

func (l *TokenLedger) LookupAccess(ctx context.Context, jti string) (string, bool, error) {
	return l.lookup(ctx, domain.TokenKindAccess, jti)
}

func (l *TokenLedger) LookupRefresh(ctx context.Context, jti string) (string, bool, error) {
	return l.lookup(ctx, domain.TokenKindRefresh, jti)
}

func (l *TokenLedger) RevokeAccess(ctx context.Context, jti string) error {
	return l.revoke(ctx, domain.TokenKindAccess, jti)
}

func (l *TokenLedger) RevokeRefresh(ctx context.Context, jti string) error {
	return l.revoke(ctx, domain.TokenKindRefresh, jti)
}

// ConsumeRefresh atomically looks up and revokes a refresh record. Of two
// concurrent rotations of the same token only one observes it.
func (l *TokenLedger) ConsumeRefresh(ctx context.Context, jti string) (string, bool, error) {
	if !l.enforced {
		return "", false, ErrLedgerUntracked
	}
	if jti == "" {
		return "", false, nil
	}
	userID, ok, err := l.store.GetDel(ctx, ledgerKey(domain.TokenKindRefresh, jti))
	if err != nil {
		observability.RecordLedgerOperation(ctx, "consume", string(domain.TokenKindRefresh), "error")
		return "", false, storeFailure("consume refresh token record", err)
	}
	observability.RecordLedgerOperation(ctx, "consume", string(domain.TokenKindRefresh), hitOutcome(ok))
	return userID, ok, nil
}

func (l *TokenLedger) register(ctx context.Context, kind domain.TokenKind, jti, userID string, ttl time.Duration) error {
	if !l.enforced {
		observability.RecordLedgerOperation(ctx, "register", string(kind), "untracked")
		return ErrLedgerUntracked
	}
	if err := l.store.Set(ctx, ledgerKey(kind, jti), userID, ttl); err != nil {
		observability.RecordLedgerOperation(ctx, "register", string(kind), "error")
		return storeFailure("register token record", err)
	}
	observability.RecordLedgerOperation(ctx, "register", string(kind), "success")
	return nil
}

func (l *TokenLedger) lookup(ctx context.Context, kind domain.TokenKind, jti string) (string, bool, error) {
	if !l.enforced {
		return "", false, ErrLedgerUntracked
	}
	if jti == "" {
		return "", false, nil
	}
	userID, ok, err := l.store.Get(ctx, ledgerKey(kind, jti))
	if err != nil {
		observability.RecordLedgerOperation(ctx, "lookup", string(kind), "error")
		return "", false, storeFailure("lookup token record", err)
	}
	observability.RecordLedgerOperation(ctx, "lookup", string(kind), hitOutcome(ok))
	return userID, ok, nil
}

func (l *TokenLedger) revoke(ctx context.Context, kind domain.TokenKind, jti string) error {
	if !l.enforced || jti == "" {
		return nil
	}
	if err := l.store.Delete(ctx, ledgerKey(kind, jti)); err != nil {
		observability.RecordLedgerOperation(ctx, "revoke", string(kind), "error")
		return storeFailure("revoke token record", err)
	}
	observability.RecordLedgerOperation(ctx, "revoke", string(kind), "success")
	return nil
}

func ledgerKey(kind domain.TokenKind, jti string) string {
	return ledgerKeyPrefix + string(kind) + ":" + jti
}

func hitOutcome(ok bool) string {
	if ok {
		return "hit"
	}
	return "miss"
}
