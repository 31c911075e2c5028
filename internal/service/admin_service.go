package service

import (
	"context"
	"strings"

	"github.com/tutorlink/tutorlink-api/internal/domain"
	"github.com/tutorlink/tutorlink-api/internal/security"
)

// AdminService provisions admins and mints their tokens out of band. There
// is no interactive admin login.
type AdminService struct {
	admins AdminDirectory
	jwtMgr *security.JWTManager
}

func NewAdminService(admins AdminDirectory, jwtMgr *security.JWTManager) *AdminService {
	return &AdminService{admins: admins, jwtMgr: jwtMgr}
}

func (s *AdminService) Create(ctx context.Context, email, name string) (*domain.Admin, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, &ValidationError{Field: "email", Reason: "must be an email address"}
	}
	return s.admins.Create(ctx, email, name)
}

// IssueToken signs an admin token for an active admin identified by id or,
// when id is empty, by email.
func (s *AdminService) IssueToken(ctx context.Context, id, email string) (string, *domain.Admin, error) {
	var (
		admin *domain.Admin
		err   error
	)
	if strings.TrimSpace(id) != "" {
		admin, err = s.admins.FindActiveByID(ctx, id)
	} else {
		admin, err = s.admins.FindActiveByEmail(ctx, email)
	}
	if err != nil {
		return "", nil, err
	}
	if email != "" && !strings.EqualFold(strings.TrimSpace(email), admin.Email) {
		return "", nil, &ValidationError{Field: "email", Reason: "does not match admin"}
	}
	tok, err := s.jwtMgr.SignAdmin(admin.ID.String(), admin.Email)
	if err != nil {
		return "", nil, err
	}
	return tok, admin, nil
}
