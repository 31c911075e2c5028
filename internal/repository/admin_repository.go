package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tutorlink/tutorlink-api/internal/domain"
	"github.com/tutorlink/tutorlink-api/internal/observability"
)

type AdminRepository interface {
	FindActiveByID(ctx context.Context, id string) (*domain.Admin, error)
	FindActiveByEmail(ctx context.Context, email string) (*domain.Admin, error)
	Create(ctx context.Context, email, name string) (*domain.Admin, error)
}

type GormAdminRepository struct{ db *gorm.DB }

func NewAdminRepository(db *gorm.DB) AdminRepository { return &GormAdminRepository{db: db} }

func (r *GormAdminRepository) FindActiveByID(ctx context.Context, id string) (*domain.Admin, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrAdminNotFound
	}
	var a domain.Admin
	err = r.db.WithContext(ctx).Where("id = ?", uid).First(&a).Error
	return r.result(ctx, "find_active_by_id", &a, err)
}

func (r *GormAdminRepository) FindActiveByEmail(ctx context.Context, email string) (*domain.Admin, error) {
	var a domain.Admin
	err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&a).Error
	return r.result(ctx, "find_active_by_email", &a, err)
}

func (r *GormAdminRepository) Create(ctx context.Context, email, name string) (*domain.Admin, error) {
	a := domain.Admin{Email: strings.ToLower(strings.TrimSpace(email)), Name: name}
	if err := r.db.WithContext(ctx).Create(&a).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "admin", "create", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "admin", "create", "success")
	return &a, nil
}

func (r *GormAdminRepository) result(ctx context.Context, op string, a *domain.Admin, err error) (*domain.Admin, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "admin", op, "not_found")
			return nil, ErrAdminNotFound
		}
		observability.RecordRepositoryOperation(ctx, "admin", op, "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "admin", op, "success")
	return a, nil
}
