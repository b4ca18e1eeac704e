package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/growhive/apiserver/internal/storage"
	"github.com/growhive/apiserver/internal/store"
	"github.com/growhive/apiserver/types"
)

type fakeUsers struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]types.User

	updates   int
	appendErr error
	imageErr  error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: make(map[int64]types.User)}
}

func (f *fakeUsers) add(u types.User) types.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u.ID = f.nextID
	f.users[u.ID] = u
	return u
}

func (f *fakeUsers) GetByID(ctx context.Context, id int64) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUsers) Create(ctx context.Context, user types.User) (types.User, error) {
	if _, err := f.GetByEmail(ctx, user.Email); err == nil {
		return types.User{}, store.ErrDuplicate
	}
	return f.add(user), nil
}

func (f *fakeUsers) UpdateProfile(ctx context.Context, id int64, changes store.ProfileChanges) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	f.updates++
	changes.Apply(&user)
	f.users[id] = user
	return user, nil
}

func (f *fakeUsers) AppendCertificates(ctx context.Context, id int64, certs []types.Certificate) ([]types.Certificate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return nil, f.appendErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	u.Certificates = append(u.Certificates, certs...)
	f.users[id] = u
	return u.Certificates, nil
}

func (f *fakeUsers) SetProfileImage(ctx context.Context, id int64, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.imageErr != nil {
		return f.imageErr
	}
	u, ok := f.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.ProfileImageURL = &url
	f.users[id] = u
	return nil
}

func (f *fakeUsers) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.PasswordHash = passwordHash
	f.users[id] = u
	return nil
}

type fakeOTPs struct {
	mu            sync.Mutex
	codes         map[string]types.OTP
	verifications map[string]types.EmailVerification
}

func newFakeOTPs() *fakeOTPs {
	return &fakeOTPs{
		codes:         make(map[string]types.OTP),
		verifications: make(map[string]types.EmailVerification),
	}
}

func (f *fakeOTPs) Replace(ctx context.Context, otp types.OTP) (types.OTP, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes[otp.Email] = otp
	return otp, nil
}

func (f *fakeOTPs) Consume(ctx context.Context, email, code string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	otp, ok := f.codes[email]
	if !ok || otp.Code != code || !now.Before(otp.ExpiresAt) {
		return store.ErrNotFound
	}
	delete(f.codes, email)
	return nil
}

func (f *fakeOTPs) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for email, otp := range f.codes {
		if !now.Before(otp.ExpiresAt) {
			delete(f.codes, email)
			n++
		}
	}
	return n, nil
}

func (f *fakeOTPs) RecordVerification(ctx context.Context, v types.EmailVerification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifications[v.Email] = v
	return nil
}

func (f *fakeOTPs) GetVerification(ctx context.Context, email string) (types.EmailVerification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.verifications[email]
	if !ok {
		return types.EmailVerification{}, store.ErrNotFound
	}
	return v, nil
}

func (f *fakeOTPs) DeleteVerification(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.verifications, email)
	return nil
}

type sentCode struct {
	email string
	code  string
}

type fakeSender struct {
	sent []sentCode
	err  error
}

func (f *fakeSender) SendOTP(ctx context.Context, email, code string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentCode{email: email, code: code})
	return nil
}

type fakeLimiter struct {
	allow      bool
	retryAfter time.Duration
	err        error
	keys       []string
}

func (f *fakeLimiter) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, time.Duration, error) {
	f.keys = append(f.keys, key)
	return f.allow, f.retryAfter, f.err
}

type memObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	deleted []string
	putErr  error
	// failAfter makes Put fail once this many objects were written.
	failAfter int
}

func newMemObjects() *memObjects {
	return &memObjects{objects: make(map[string][]byte), types: make(map[string]string), failAfter: -1}
}

func (m *memObjects) EnsureBucket(ctx context.Context) error { return nil }

func (m *memObjects) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil || m.failAfter == len(m.objects) {
		return errors.New("put failed")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memObjects) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memObjects) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memObjects) Bucket() string { return "memory" }

func (m *memObjects) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
