package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/growhive/apiserver/internal/services"
	"github.com/growhive/apiserver/types"
	"go.uber.org/zap"
)

type contextKey string

const contextSubjectKey contextKey = "sub"

const maxJSONBody = 1 << 20

// MessageResponse is the body of every error and of plain acknowledgements.
type MessageResponse struct {
	Message string `json:"message"`
}

// ProfileResponse is a user profile optionally decorated with a token or a
// confirmation message.
type ProfileResponse struct {
	types.User
	Token   string `json:"token,omitempty"`
	Message string `json:"message,omitempty"`
}

func withUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, contextSubjectKey, userID)
}

func userIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(contextSubjectKey).(int64)
	if !ok {
		return 0, errors.New("missing subject")
	}
	if userID < 1 {
		return 0, errors.New("invalid subject")
	}
	return userID, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, MessageResponse{Message: message})
}

// writeServiceError maps a service error to its status and client message.
// Unexpected errors are logged and reported with fallback.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error, fallback string) {
	var validation *services.ValidationError
	var tooSoon *services.ResendTooSoonError
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, validation.Message)
	case errors.As(err, &tooSoon):
		w.Header().Set("Retry-After", strconv.Itoa(tooSoon.RetryAfterSeconds))
		writeError(w, http.StatusTooManyRequests, "Please wait before requesting another OTP")
	case errors.Is(err, services.ErrDuplicateAccount):
		writeError(w, http.StatusBadRequest, "User with this email already exists")
	case errors.Is(err, services.ErrEmailInUse):
		writeError(w, http.StatusBadRequest, "User already exists with this email")
	case errors.Is(err, services.ErrInvalidCredentials):
		writeError(w, http.StatusBadRequest, "Invalid credentials")
	case errors.Is(err, services.ErrInvalidOrExpiredCode):
		writeError(w, http.StatusBadRequest, "Invalid or expired OTP")
	case errors.Is(err, services.ErrEmailNotVerified):
		writeError(w, http.StatusBadRequest, "Please verify your email before signing up")
	case errors.Is(err, services.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "Not authorized, please log in again")
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	default:
		logger.Error(fallback, zap.Error(err))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst)
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errFileTooLarge
	}
	return data, nil
}

var errFileTooLarge = errors.New("file too large")

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
