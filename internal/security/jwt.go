package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tutorlink/tutorlink-api/internal/domain"
)

var ErrInvalidToken = errors.New("invalid token")

const (
	DefaultAccessTTL  = time.Hour
	DefaultRefreshTTL = 30 * 24 * time.Hour
	DefaultAdminTTL   = 8 * time.Hour
)

type Claims struct {
	Kind  domain.TokenKind `json:"kind"`
	Role  string           `json:"role,omitempty"`
	Email string           `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type TokenTTLs struct {
	Access  time.Duration
	Refresh time.Duration
	Admin   time.Duration
}

// JWTManager signs and verifies bearer tokens. User tokens (access, refresh)
// and admin tokens use different secrets, so neither can be accepted as the
// other.
type JWTManager struct {
	issuer      string
	userSecret  []byte
	adminSecret []byte
	ttls        TokenTTLs
}

func NewJWTManager(issuer, userSecret, adminSecret string, ttls TokenTTLs) *JWTManager {
	if ttls.Access <= 0 {
		ttls.Access = DefaultAccessTTL
	}
	if ttls.Refresh <= 0 {
		ttls.Refresh = DefaultRefreshTTL
	}
	if ttls.Admin <= 0 {
		ttls.Admin = DefaultAdminTTL
	}
	return &JWTManager{
		issuer:      issuer,
		userSecret:  []byte(userSecret),
		adminSecret: []byte(adminSecret),
		ttls:        ttls,
	}
}

func (m *JWTManager) AccessTTL() time.Duration  { return m.ttls.Access }
func (m *JWTManager) RefreshTTL() time.Duration { return m.ttls.Refresh }
func (m *JWTManager) AdminTTL() time.Duration   { return m.ttls.Admin }

func (m *JWTManager) SignAccess(userID, role, jti string) (string, error) {
	return m.sign(Claims{Kind: domain.TokenKindAccess, Role: role}, userID, jti, m.ttls.Access, m.userSecret)
}

func (m *JWTManager) SignRefresh(userID, jti string) (string, error) {
	return m.sign(Claims{Kind: domain.TokenKindRefresh}, userID, jti, m.ttls.Refresh, m.userSecret)
}

func (m *JWTManager) SignAdmin(adminID, email string) (string, error) {
	return m.sign(Claims{Kind: domain.TokenKindAdmin, Email: email}, adminID, "", m.ttls.Admin, m.adminSecret)
}

// Verify checks signature, expiry, issuer and that the token is of the
// expected kind. Every failure is reported as ErrInvalidToken.
func (m *JWTManager) Verify(raw string, kind domain.TokenKind) (*Claims, error) {
	secret := m.userSecret
	if kind == domain.TokenKindAdmin {
		secret = m.adminSecret
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Kind != kind {
		return nil, fmt.Errorf("%w: unexpected token kind %q", ErrInvalidToken, claims.Kind)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

func (m *JWTManager) sign(claims Claims, subject, jti string, ttl time.Duration, secret []byte) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    m.issuer,
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        jti,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
