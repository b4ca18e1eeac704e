package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/growhive/apiserver/internal/services"
	"github.com/growhive/apiserver/types"
	"go.uber.org/zap"
)

const (
	formFieldCertificates = "certificates"
	formFieldProfileImage = "profileImage"

	maxMultipartMemory = 8 << 20
	multipartOverhead  = 1 << 20
)

// UploadHandler accepts certificate and profile image uploads.
type UploadHandler struct {
	uploads *services.UploadService
	logger  *zap.Logger
}

func NewUploadHandler(uploads *services.UploadService, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{uploads: uploads, logger: logger}
}

// UploadRouter registers upload routes. Every route requires auth.
func UploadRouter(r chi.Router, h *UploadHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Use(authMiddleware)
	r.Post("/certificates", h.UploadCertificates)
	r.Post("/profile-image", h.UploadProfileImage)
}

type CertificatesResponse struct {
	Message          string              `json:"message"`
	UploadedFiles    []types.Certificate `json:"uploadedFiles"`
	UserCertificates []types.Certificate `json:"userCertificates"`
}

type ProfileImageResponse struct {
	Message         string `json:"message"`
	ProfileImageURL string `json:"profileImageUrl"`
}

// UploadCertificates stores up to five PDFs from the "certificates" field.
func (h *UploadHandler) UploadCertificates(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, services.ErrUnauthorized, "")
		return
	}

	limit := int64(services.MaxCertificateFiles*services.MaxCertificateSize + multipartOverhead)
	form, ok := h.parseForm(w, r, limit)
	if !ok {
		return
	}

	headers := form.File[formFieldCertificates]
	if len(headers) > services.MaxCertificateFiles {
		writeError(w, http.StatusBadRequest, "You can upload at most 5 certificates at a time.")
		return
	}

	files := make([]services.UploadedFile, 0, len(headers))
	for _, header := range headers {
		file, err := readPart(header, services.MaxCertificateSize)
		if err != nil {
			writeUploadError(w, err)
			return
		}
		files = append(files, file)
	}

	result, err := h.uploads.UploadCertificates(r.Context(), userID, files)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to update user profile with certificate data.")
		return
	}

	writeJSON(w, http.StatusOK, CertificatesResponse{
		Message:          "Certificates uploaded and profile updated successfully!",
		UploadedFiles:    result.Uploaded,
		UserCertificates: result.All,
	})
}

// UploadProfileImage stores the image in the "profileImage" field.
func (h *UploadHandler) UploadProfileImage(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, services.ErrUnauthorized, "")
		return
	}

	form, ok := h.parseForm(w, r, services.MaxProfileImageSize+multipartOverhead)
	if !ok {
		return
	}

	headers := form.File[formFieldProfileImage]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "No profile image file selected.")
		return
	}
	if len(headers) > 1 {
		writeError(w, http.StatusBadRequest, "Only one profile image can be uploaded.")
		return
	}

	file, err := readPart(headers[0], services.MaxProfileImageSize)
	if err != nil {
		writeUploadError(w, err)
		return
	}

	url, err := h.uploads.UploadProfileImage(r.Context(), userID, file)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to update user profile with image URL.")
		return
	}

	writeJSON(w, http.StatusOK, ProfileImageResponse{
		Message:         "Profile image uploaded successfully!",
		ProfileImageURL: url,
	})
}

func (h *UploadHandler) parseForm(w http.ResponseWriter, r *http.Request, limit int64) (*multipart.Form, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return &multipart.Form{}, true
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "File too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return nil, false
	}
	return r.MultipartForm, true
}

func readPart(header *multipart.FileHeader, limit int64) (services.UploadedFile, error) {
	if header.Size > limit {
		return services.UploadedFile{}, errFileTooLarge
	}
	file, err := header.Open()
	if err != nil {
		return services.UploadedFile{}, err
	}
	defer file.Close()

	data, err := readFileLimited(file, limit)
	if err != nil {
		return services.UploadedFile{}, err
	}
	return services.UploadedFile{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func writeUploadError(w http.ResponseWriter, err error) {
	if errors.Is(err, errFileTooLarge) {
		writeError(w, http.StatusBadRequest, "File too large")
		return
	}
	writeError(w, http.StatusBadRequest, "Failed to read upload")
}
