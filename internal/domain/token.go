package domain

type TokenKind string

const (
	TokenKindAccess  TokenKind = "access"
	TokenKindRefresh TokenKind = "refresh"
	TokenKindAdmin   TokenKind = "admin"
)

// TokenRecord marks a live, non-revoked token in the ledger. Its TTL mirrors
// the token's own expiry.
type TokenRecord struct {
	JTI    string
	UserID string
	Kind   TokenKind
}
