package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/tutorlink/tutorlink-api/internal/domain"
)

type Profile struct {
	User                *domain.User
	RequiresLegalAccept bool
	NextStep            string
}

type UserService struct {
	users UserDirectory
	legal LegalDirectory
}

func NewUserService(users UserDirectory, legal LegalDirectory) *UserService {
	return &UserService{users: users, legal: legal}
}

func (s *UserService) Profile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.users.FindActiveByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.profile(ctx, user)
}

// SelectRole sets the marketplace role. It can be chosen once.
func (s *UserService) SelectRole(ctx context.Context, userID, role string) (*Profile, error) {
	if role != domain.RoleStudent && role != domain.RoleTutor {
		return nil, &ValidationError{Field: "role", Reason: "must be student or tutor"}
	}
	user, err := s.users.SetRole(ctx, userID, role)
	if err != nil {
		if errors.Is(err, ErrRoleAlreadySet) {
			return nil, ErrRoleAlreadySet
		}
		return nil, err
	}
	return s.profile(ctx, user)
}

func (s *UserService) AcceptLegal(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.users.FindActiveByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.legal.AcceptActive(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("accept legal documents: %w", err)
	}
	return s.profile(ctx, user)
}

func (s *UserService) profile(ctx context.Context, user *domain.User) (*Profile, error) {
	pending, err := s.legal.HasPendingAcceptance(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("check legal acceptance: %w", err)
	}
	return &Profile{User: user, RequiresLegalAccept: pending, NextStep: nextStep(pending, user)}, nil
}
