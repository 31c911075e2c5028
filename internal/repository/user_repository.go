package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tutorlink/tutorlink-api/internal/domain"
	"github.com/tutorlink/tutorlink-api/internal/observability"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrRoleAlreadySet = errors.New("role already set")
	ErrAdminNotFound  = errors.New("admin not found")
)

type UserRepository interface {
	FindActiveByPhone(ctx context.Context, phone string) (*domain.User, error)
	FindActiveByID(ctx context.Context, id string) (*domain.User, error)
	Create(ctx context.Context, phone, countryCode string) (*domain.User, error)
	SetRole(ctx context.Context, id, role string) (*domain.User, error)
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

func (r *GormUserRepository) FindActiveByPhone(ctx context.Context, phone string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Where("phone_number = ?", phone).First(&u).Error
	return r.result(ctx, "find_active_by_phone", &u, err)
}

func (r *GormUserRepository) FindActiveByID(ctx context.Context, id string) (*domain.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "find_active_by_id", "not_found")
		return nil, ErrUserNotFound
	}
	var u domain.User
	err = r.db.WithContext(ctx).Where("id = ?", uid).First(&u).Error
	return r.result(ctx, "find_active_by_id", &u, err)
}

// Create inserts a user for phone. A concurrent insert of the same phone
// resolves to the existing row.
func (r *GormUserRepository) Create(ctx context.Context, phone, countryCode string) (*domain.User, error) {
	u := domain.User{PhoneNumber: phone, CountryCode: countryCode}
	err := r.db.WithContext(ctx).Create(&u).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		observability.RecordRepositoryOperation(ctx, "user", "create", "conflict")
		return r.FindActiveByPhone(ctx, phone)
	}
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "create", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "user", "create", "success")
	return &u, nil
}

// SetRole assigns a role once; a user that already has one is left as is.
func (r *GormUserRepository) SetRole(ctx context.Context, id, role string) (*domain.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrUserNotFound
	}
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND (role = '' OR role IS NULL)", uid).
		Update("role", role)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "user", "set_role", "error")
		return nil, res.Error
	}
	u, err := r.FindActiveByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "user", "set_role", "conflict")
		return u, ErrRoleAlreadySet
	}
	observability.RecordRepositoryOperation(ctx, "user", "set_role", "success")
	return u, nil
}

func (r *GormUserRepository) result(ctx context.Context, op string, u *domain.User, err error) (*domain.User, error) {
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "user", op, "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(ctx, "user", op, "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "user", op, "success")
	return u, nil
}
