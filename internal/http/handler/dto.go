package handler

import (
	"time"

	"github.com/tutorlink/tutorlink-api/internal/domain"
)

type userResponse struct {
	ID          string    `json:"id"`
	PhoneNumber string    `json:"phone_number"`
	CountryCode string    `json:"country_code"`
	Role        *string   `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

func toUserResponse(u *domain.User) userResponse {
	out := userResponse{
		ID:          u.ID.String(),
		PhoneNumber: u.PhoneNumber,
		CountryCode: u.CountryCode,
		CreatedAt:   u.CreatedAt,
	}
	if u.Role != "" {
		role := u.Role
		out.Role = &role
	}
	return out
}
