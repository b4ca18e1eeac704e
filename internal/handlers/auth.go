package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/growhive/apiserver/internal/services"
	"go.uber.org/zap"
)

// AuthHandler serves OTP verification, signup, login and profile endpoints.
type AuthHandler struct {
	otps      *services.OTPService
	accounts  *services.AccountService
	profiles  *services.ProfileService
	tokens    *services.TokenIssuer
	logger    *zap.Logger
	exposeOTP bool
}

// NewAuthHandler constructs an AuthHandler. When exposeOTP is set, issued
// codes are echoed in the send response.
func NewAuthHandler(
	otps *services.OTPService,
	accounts *services.AccountService,
	profiles *services.ProfileService,
	tokens *services.TokenIssuer,
	logger *zap.Logger,
	exposeOTP bool,
) *AuthHandler {
	return &AuthHandler{
		otps:      otps,
		accounts:  accounts,
		profiles:  profiles,
		tokens:    tokens,
		logger:    logger,
		exposeOTP: exposeOTP,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, h *AuthHandler) {
	r.Post("/send", h.SendOTP)
	r.Post("/verify", h.VerifyOTP)
	r.Post("/signup", h.Signup)
	r.Post("/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(RequireAuth(h.tokens))
		r.Get("/profile", h.Profile)
		r.Put("/complete-profile", h.CompleteProfile)
		r.Put("/change-password", h.ChangePassword)
	})
}

// RequireAuth enforces bearer authentication and injects the user id into
// the request context.
func RequireAuth(tokens *services.TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Not authorized, no token")
				return
			}

			userID, err := tokens.Parse(tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Not authorized, token failed")
				return
			}

			next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), userID)))
		})
	}
}

// SendOTP issues a verification code for an email that has no account yet.
func (h *AuthHandler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req SendOTPRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}

	code, err := h.otps.Request(r.Context(), req.Email)
	if err != nil {
		writeServiceError(w, h.logger, err, "Failed to send OTP")
		return
	}

	resp := SendOTPResponse{Message: "OTP sent successfully to your email"}
	if h.exposeOTP {
		resp.OTP = code
	}
	writeJSON(w, http.StatusOK, resp)
}

// VerifyOTP consumes a code and records the email as verified.
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Email and OTP are required")
		return
	}

	if err := h.otps.Verify(r.Context(), req.Email, req.OTP); err != nil {
		writeServiceError(w, h.logger, err, "Failed to verify OTP")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Email verified successfully"})
}

// Signup creates an account and returns it with a token.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Please fill in all fields.")
		return
	}

	user, token, err := h.accounts.Register(r.Context(), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, h.logger, err, "Server error")
		return
	}

	writeJSON(w, http.StatusCreated, SignupResponse{
		ID:         user.ID,
		Name:       user.Name,
		Email:      user.Email,
		IsVerified: user.IsVerified,
		Token:      token,
		Message:    "User registered successfully. Please complete your profile.",
	})
}

// Login verifies credentials and returns the profile with a token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid credentials")
		return
	}

	user, token, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, h.logger, err, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{User: user, Token: token})
}

// Profile returns the authenticated user's profile.
func (h *AuthHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, services.ErrUnauthorized, "")
		return
	}

	user, err := h.accounts.Profile(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err, "Server error fetching profile")
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{User: user})
}

// CompleteProfile applies a partial profile update.
func (h *AuthHandler) CompleteProfile(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, services.ErrUnauthorized, "")
		return
	}

	var payload map[string]json.RawMessage
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "Request body must be a JSON object")
		return
	}

	user, err := h.profiles.Complete(r.Context(), userID, payload)
	if err != nil {
		writeServiceError(w, h.logger, err, "Server error during profile update.")
		return
	}
	writeJSON(w, http.StatusOK, ProfileResponse{User: user, Message: "Profile updated successfully!"})
}

// ChangePassword replaces the authenticated user's password.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, services.ErrUnauthorized, "")
		return
	}

	var req ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Please fill in all fields.")
		return
	}

	if err := h.accounts.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusBadRequest, "Current password is incorrect")
			return
		}
		writeServiceError(w, h.logger, err, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password updated successfully"})
}

type SendOTPRequest struct {
	Email string `json:"email"`
}

type SendOTPResponse struct {
	Message string `json:"message"`
	OTP     string `json:"otp,omitempty"`
}

type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignupResponse struct {
	ID         int64  `json:"_id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	IsVerified bool   `json:"isVerified"`
	Token      string `json:"token"`
	Message    string `json:"message"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
