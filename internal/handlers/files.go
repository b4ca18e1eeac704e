package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/growhive/apiserver/internal/services"
	"github.com/growhive/apiserver/internal/storage"
	"go.uber.org/zap"
)

// FilesHandler streams uploaded objects back to clients.
type FilesHandler struct {
	objects storage.ObjectStorage
	logger  *zap.Logger
}

func NewFilesHandler(objects storage.ObjectStorage, logger *zap.Logger) *FilesHandler {
	return &FilesHandler{objects: objects, logger: logger}
}

// FilesRouter registers the public upload prefixes.
func FilesRouter(r chi.Router, h *FilesHandler) {
	r.Get("/certificates/*", h.serve(services.CertificatePrefix))
	r.Get("/profile_images/*", h.serve(services.ProfileImagePrefix))
}

func (h *FilesHandler) serve(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "*")
		if name == "" || strings.Contains(name, "/") || strings.HasPrefix(name, ".") {
			writeError(w, http.StatusNotFound, "File not found")
			return
		}

		reader, err := h.objects.Get(r.Context(), prefix+name)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				writeError(w, http.StatusNotFound, "File not found")
				return
			}
			h.logger.Error("failed to open stored object", zap.String("key", prefix+name), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to load file")
			return
		}
		defer reader.Close()

		contentType := mime.TypeByExtension(path.Ext(name))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, reader); err != nil {
			h.logger.Debug("object stream interrupted", zap.String("key", prefix+name), zap.Error(err))
		}
	}
}
