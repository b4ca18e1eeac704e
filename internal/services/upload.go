package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/growhive/apiserver/internal/storage"
	"github.com/growhive/apiserver/internal/store"
	"github.com/growhive/apiserver/types"
	"go.uber.org/zap"
)

const (
	// PublicPrefix is the URL path under which stored objects are served.
	PublicPrefix = "/uploads/"

	CertificatePrefix  = "certificates/"
	ProfileImagePrefix = "profile_images/"

	MaxCertificateSize   = 5 << 20
	MaxCertificateFiles  = 5
	MaxProfileImageSize  = 2 << 20
	certificateMediaType = "application/pdf"
)

var imageTypes = map[string]string{
	".jpeg": "image/jpeg",
	".jpg":  "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

// UploadedFile is one multipart part held in memory.
type UploadedFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// CertificateUpload is the result of a certificate upload request.
type CertificateUpload struct {
	Uploaded []types.Certificate
	All      []types.Certificate
}

// UploadService stores certificate and profile image files and links them
// to user profiles.
type UploadService struct {
	users   UserRepository
	objects storage.ObjectStorage
	logger  *zap.Logger
	now     func() time.Time
	suffix  func() string
}

func NewUploadService(users UserRepository, objects storage.ObjectStorage, logger *zap.Logger) *UploadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadService{
		users:   users,
		objects: objects,
		logger:  logger,
		now:     time.Now,
		suffix: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
		},
	}
}

// ObjectURL returns the public URL of the object stored under key.
func ObjectURL(key string) string {
	return PublicPrefix + key
}

// ObjectKey is the inverse of ObjectURL. ok is false for URLs not served
// from storage.
func ObjectKey(url string) (string, bool) {
	if !strings.HasPrefix(url, PublicPrefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, PublicPrefix)
	return key, key != ""
}

// UploadCertificates validates and stores files, then appends them to the
// user's certificate list. Objects are removed again when the profile
// update fails.
func (s *UploadService) UploadCertificates(ctx context.Context, userID int64, files []UploadedFile) (CertificateUpload, error) {
	if len(files) == 0 {
		return CertificateUpload{}, validationf("No files selected for upload.")
	}
	if len(files) > MaxCertificateFiles {
		return CertificateUpload{}, validationf("You can upload at most %d certificates at a time.", MaxCertificateFiles)
	}
	for _, file := range files {
		if mediaType(file.ContentType) != certificateMediaType {
			return CertificateUpload{}, validationf("Only PDF files are allowed for certificates!")
		}
		if len(file.Data) > MaxCertificateSize {
			return CertificateUpload{}, validationf("File too large. Certificates must be at most 5MB.")
		}
	}

	if err := s.ensureUser(ctx, userID); err != nil {
		return CertificateUpload{}, err
	}

	uploaded := make([]types.Certificate, 0, len(files))
	written := make([]string, 0, len(files))
	for _, file := range files {
		now := s.now().UTC()
		key := fmt.Sprintf("%scertificates-%d-%s.pdf", CertificatePrefix, now.UnixMilli(), s.suffix())
		if err := s.objects.Put(ctx, key, bytes.NewReader(file.Data), int64(len(file.Data)), certificateMediaType); err != nil {
			s.removeObjects(written)
			return CertificateUpload{}, fmt.Errorf("store certificate: %w", err)
		}
		written = append(written, key)
		uploaded = append(uploaded, types.Certificate{
			Name:       path.Base(filepath.ToSlash(file.Filename)),
			URL:        ObjectURL(key),
			UploadedAt: now,
		})
	}

	all, err := s.users.AppendCertificates(ctx, userID, uploaded)
	if err != nil {
		s.removeObjects(written)
		if errors.Is(err, store.ErrNotFound) {
			return CertificateUpload{}, ErrNotFound
		}
		return CertificateUpload{}, fmt.Errorf("append certificates: %w", err)
	}

	s.logger.Info("certificates uploaded", zap.Int64("user_id", userID), zap.Int("count", len(uploaded)))
	return CertificateUpload{Uploaded: uploaded, All: all}, nil
}

// UploadProfileImage stores file as the user's profile picture and returns
// its public URL.
func (s *UploadService) UploadProfileImage(ctx context.Context, userID int64, file UploadedFile) (string, error) {
	if len(file.Data) == 0 && file.Filename == "" {
		return "", validationf("No profile image file selected.")
	}
	ext := strings.ToLower(filepath.Ext(file.Filename))
	expected, ok := imageTypes[ext]
	if !ok || mediaType(file.ContentType) != expected {
		return "", validationf("Only images (JPEG, PNG, GIF) are allowed for profile picture!")
	}
	if len(file.Data) > MaxProfileImageSize {
		return "", validationf("File too large. Profile images must be at most 2MB.")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("load user: %w", err)
	}

	// Every upload gets a fresh key, so a failed write never touches the
	// object the profile currently points at.
	key := fmt.Sprintf("%sprofileImage-%d-%d-%s%s", ProfileImagePrefix, userID, s.now().UTC().UnixMilli(), s.suffix(), ext)
	if err := s.objects.Put(ctx, key, bytes.NewReader(file.Data), int64(len(file.Data)), expected); err != nil {
		return "", fmt.Errorf("store profile image: %w", err)
	}

	url := ObjectURL(key)
	if err := s.users.SetProfileImage(ctx, userID, url); err != nil {
		s.removeObjects([]string{key})
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("set profile image: %w", err)
	}

	if user.ProfileImageURL != nil {
		if previous, ok := ObjectKey(*user.ProfileImageURL); ok && previous != key && strings.HasPrefix(previous, ProfileImagePrefix) {
			s.removeObjects([]string{previous})
		}
	}
	return url, nil
}

func (s *UploadService) ensureUser(ctx context.Context, userID int64) error {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("load user: %w", err)
	}
	return nil
}

// removeObjects deletes keys best-effort. It runs detached from the request
// context so a cancelled request still cleans up.
func (s *UploadService) removeObjects(keys []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, key := range keys {
		if err := s.objects.Delete(ctx, key); err != nil {
			s.logger.Warn("failed to delete stored object", zap.String("key", key), zap.Error(err))
		}
	}
}

func mediaType(contentType string) string {
	mt, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
