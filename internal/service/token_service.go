package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tutorlink/tutorlink-api/internal/domain"
	"github.com/tutorlink/tutorlink-api/internal/repository"
	"github.com/tutorlink/tutorlink-api/internal/security"
)

type TokenPair struct {
	AccessToken  string
	RefreshToken string
	AccessJTI    string
	RefreshJTI   string
}

// TokenService mints access/refresh pairs and keeps the ledger in step with
// them.
type TokenService struct {
	jwtMgr *security.JWTManager
	ledger *TokenLedger
	users  UserDirectory
}

func NewTokenService(jwtMgr *security.JWTManager, ledger *TokenLedger, users UserDirectory) *TokenService {
	return &TokenService{jwtMgr: jwtMgr, ledger: ledger, users: users}
}

// Issue signs a new pair for user. A ledger write failure is logged and does
// not prevent issuance.
func (s *TokenService) Issue(ctx context.Context, user *domain.User) (*TokenPair, error) {
	userID := user.ID.String()
	pair := &TokenPair{AccessJTI: uuid.NewString(), RefreshJTI: uuid.NewString()}

	var err error
	pair.AccessToken, err = s.jwtMgr.SignAccess(userID, user.Role, pair.AccessJTI)
	if err != nil {
		return nil, err
	}
	pair.RefreshToken, err = s.jwtMgr.SignRefresh(userID, pair.RefreshJTI)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.RegisterAccess(ctx, pair.AccessJTI, userID, s.jwtMgr.AccessTTL()); err != nil {
		logLedgerRegisterFailure(ctx, "access", err)
	}
	if err := s.ledger.RegisterRefresh(ctx, pair.RefreshJTI, userID, s.jwtMgr.RefreshTTL()); err != nil {
		logLedgerRegisterFailure(ctx, "refresh", err)
	}
	return pair, nil
}

// Rotate exchanges a refresh token for a new pair. With revocation enforced
// the old refresh record is consumed, so a token can be rotated only once.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string) (*TokenPair, *domain.User, error) {
	claims, err := s.jwtMgr.Verify(refreshToken, domain.TokenKindRefresh)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}
	if s.ledger.RevocationEnforced() && claims.ID != "" {
		owner, ok, err := s.ledger.ConsumeRefresh(ctx, claims.ID)
		if err != nil {
			return nil, nil, err
		}
		if !ok || owner != claims.Subject {
			return nil, nil, ErrInvalidToken
		}
	}
	user, err := s.users.FindActiveByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil, ErrInvalidToken
		}
		return nil, nil, err
	}
	pair, err := s.Issue(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

// RevokeAccess drops the ledger record of an already verified access token.
func (s *TokenService) RevokeAccess(ctx context.Context, claims *security.Claims) error {
	if claims == nil {
		return nil
	}
	return s.ledger.RevokeAccess(ctx, claims.ID)
}

// RevokeRefreshToken revokes a raw refresh token if it verifies and belongs
// to userID. Tokens that do not verify are ignored.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, refreshToken, userID string) error {
	claims, err := s.jwtMgr.Verify(refreshToken, domain.TokenKindRefresh)
	if err != nil || claims.Subject != userID {
		return nil
	}
	return s.ledger.RevokeRefresh(ctx, claims.ID)
}

func (s *TokenService) RevocationEnforced() bool { return s.ledger.RevocationEnforced() }

func logLedgerRegisterFailure(ctx context.Context, kind string, err error) {
	if errors.Is(err, ErrLedgerUntracked) {
		slog.DebugContext(ctx, "token ledger untracked, token not registered", "kind", kind)
		return
	}
	slog.WarnContext(ctx, "token ledger register failed, issuing untracked token", "kind", kind, "error", err.Error())
}
