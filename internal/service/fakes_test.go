package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/tutorlink/tutorlink-api/internal/domain"
	"github.com/tutorlink/tutorlink-api/internal/repository"
)

type fakeUsers struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]*domain.User
	findErr error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: map[uuid.UUID]*domain.User{}}
}

func (f *fakeUsers) FindActiveByPhone(_ context.Context, phone string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, u := range f.byID {
		if u.PhoneNumber == phone {
			c := *u
			return &c, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (f *fakeUsers) FindActiveByID(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, repository.ErrUserNotFound
	}
	u, ok := f.byID[uid]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsers) Create(_ context.Context, phone, countryCode string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &domain.User{ID: uuid.New(), PhoneNumber: phone, CountryCode: countryCode}
	f.byID[u.ID] = u
	c := *u
	return &c, nil
}

func (f *fakeUsers) SetRole(_ context.Context, id, role string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uid, _ := uuid.Parse(id)
	u, ok := f.byID[uid]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	if u.Role != "" {
		c := *u
		return &c, repository.ErrRoleAlreadySet
	}
	u.Role = role
	c := *u
	return &c, nil
}

func (f *fakeUsers) remove(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
}

type fakeLegal struct {
	pending  map[uuid.UUID]bool
	pendAll  bool
	checkErr error
}

func (f *fakeLegal) HasPendingAcceptance(_ context.Context, userID uuid.UUID) (bool, error) {
	if f.checkErr != nil {
		return false, f.checkErr
	}
	if p, ok := f.pending[userID]; ok {
		return p, nil
	}
	return f.pendAll, nil
}

func (f *fakeLegal) AcceptActive(_ context.Context, userID uuid.UUID) error {
	if f.pending == nil {
		f.pending = map[uuid.UUID]bool{}
	}
	f.pending[userID] = false
	return nil
}

type fakeSender struct {
	mu      sync.Mutex
	enabled bool
	fail    bool
	sent    map[string]string
}

func (f *fakeSender) Enabled() bool { return f.enabled }

func (f *fakeSender) SendOTP(_ context.Context, phone, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("gateway returned 502")
	}
	if f.sent == nil {
		f.sent = map[string]string{}
	}
	f.sent[phone] = code
	return nil
}

func (f *fakeSender) lastCode(phone string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent[phone]
}

type fakeAdmins struct {
	byID map[uuid.UUID]*domain.Admin
}

func newFakeAdmins() *fakeAdmins {
	return &fakeAdmins{byID: map[uuid.UUID]*domain.Admin{}}
}

func (f *fakeAdmins) FindActiveByID(_ context.Context, id string) (*domain.Admin, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, repository.ErrAdminNotFound
	}
	a, ok := f.byID[uid]
	if !ok {
		return nil, repository.ErrAdminNotFound
	}
	return a, nil
}

func (f *fakeAdmins) FindActiveByEmail(_ context.Context, email string) (*domain.Admin, error) {
	for _, a := range f.byID {
		if strings.EqualFold(a.Email, strings.TrimSpace(email)) {
			return a, nil
		}
	}
	return nil, repository.ErrAdminNotFound
}

func (f *fakeAdmins) Create(_ context.Context, email, name string) (*domain.Admin, error) {
	a := &domain.Admin{ID: uuid.New(), Email: strings.ToLower(strings.TrimSpace(email)), Name: name}
	f.byID[a.ID] = a
	return a, nil
}
