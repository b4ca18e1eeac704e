package server

import (
	"context"
	"sync"
	"time"

	"github.com/growhive/apiserver/internal/store"
	"github.com/growhive/apiserver/types"
)

// memoryStore backs both repositories in router tests.
type memoryStore struct {
	mu            sync.Mutex
	nextID        int64
	users         map[int64]types.User
	codes         map[string]types.OTP
	verifications map[string]types.EmailVerification
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:         make(map[int64]types.User),
		codes:         make(map[string]types.OTP),
		verifications: make(map[string]types.EmailVerification),
	}
}

type memoryUsers struct{ *memoryStore }

type memoryOTPs struct{ *memoryStore }

func (m memoryUsers) GetByID(ctx context.Context, id int64) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (m memoryUsers) GetByEmail(ctx context.Context, email string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m memoryUsers) Create(ctx context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return types.User{}, store.ErrDuplicate
		}
	}
	m.nextID++
	user.ID = m.nextID
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	user.SkillsOwned = []types.SkillOwned{}
	user.SkillsToLearn = []types.SkillToLearn{}
	user.Domains = []string{}
	user.Certificates = []types.Certificate{}
	m.users[user.ID] = user
	return user, nil
}

func (m memoryUsers) UpdateProfile(ctx context.Context, id int64, changes store.ProfileChanges) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	changes.Apply(&user)
	m.users[id] = user
	return user, nil
}

func (m memoryUsers) AppendCertificates(ctx context.Context, id int64, certs []types.Certificate) ([]types.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	u.Certificates = append(u.Certificates, certs...)
	m.users[id] = u
	return u.Certificates, nil
}

func (m memoryUsers) SetProfileImage(ctx context.Context, id int64, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.ProfileImageURL = &url
	m.users[id] = u
	return nil
}

func (m memoryUsers) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.PasswordHash = passwordHash
	m.users[id] = u
	return nil
}

func (m memoryOTPs) Replace(ctx context.Context, otp types.OTP) (types.OTP, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[otp.Email] = otp
	return otp, nil
}

func (m memoryOTPs) Consume(ctx context.Context, email, code string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	otp, ok := m.codes[email]
	if !ok || otp.Code != code || !now.Before(otp.ExpiresAt) {
		return store.ErrNotFound
	}
	delete(m.codes, email)
	return nil
}

func (m memoryOTPs) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func (m memoryOTPs) RecordVerification(ctx context.Context, v types.EmailVerification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifications[v.Email] = v
	return nil
}

func (m memoryOTPs) GetVerification(ctx context.Context, email string) (types.EmailVerification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.verifications[email]
	if !ok {
		return types.EmailVerification{}, store.ErrNotFound
	}
	return v, nil
}

func (m memoryOTPs) DeleteVerification(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.verifications, email)
	return nil
}

// inbox captures the last code sent to each address.
type inbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (i *inbox) SendOTP(ctx context.Context, email, code string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.codes == nil {
		i.codes = make(map[string]string)
	}
	i.codes[email] = code
	return nil
}

func (i *inbox) last(email string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.codes[email]
}
