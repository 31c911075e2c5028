package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/tutorlink/tutorlink-api/internal/domain"
)

type UserDirectory interface {
	FindActiveByPhone(ctx context.Context, phone string) (*domain.User, error)
	FindActiveByID(ctx context.Context, id string) (*domain.User, error)
	Create(ctx context.Context, phone, countryCode string) (*domain.User, error)
	SetRole(ctx context.Context, id, role string) (*domain.User, error)
}

type AdminDirectory interface {
	FindActiveByID(ctx context.Context, id string) (*domain.Admin, error)
	FindActiveByEmail(ctx context.Context, email string) (*domain.Admin, error)
	Create(ctx context.Context, email, name string) (*domain.Admin, error)
}

type LegalDirectory interface {
	HasPendingAcceptance(ctx context.Context, userID uuid.UUID) (bool, error)
	AcceptActive(ctx context.Context, userID uuid.UUID) error
}

type OTPSender interface {
	SendOTP(ctx context.Context, phone, code string) error
	Enabled() bool
}
