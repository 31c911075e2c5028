package domain

import "time"

// OtpSession is one outstanding phone verification challenge. The code is
// only kept as a bcrypt hash.
type OtpSession struct {
	ID          string    `json:"-"`
	PhoneNumber string    `json:"phone_number"`
	CodeHash    string    `json:"code_hash"`
	Attempts    int       `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}
