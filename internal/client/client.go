// Package client talks to the GrowHive API and models the signup and profile
// completion flows of the mobile app.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/growhive/apiserver/types"
)

// FallbackMessage is shown when a failed response carries no usable message.
const FallbackMessage = "Something went wrong."

// APIError is a non-2xx response.
type APIError struct {
	Status     int
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Message returns the text to show the user for err.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	var userErr UserError
	if errors.As(err, &userErr) {
		return string(userErr)
	}
	return FallbackMessage
}

// IsUnauthorized reports whether err means the session token was rejected.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// Client is a thin JSON client for the GrowHive API. It never retries.
type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// File is an upload held in memory.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type SendOTPResult struct {
	Message string `json:"message"`
	// OTP is only echoed by development servers.
	OTP string `json:"otp,omitempty"`
}

// AuthResult is returned by signup and login.
type AuthResult struct {
	types.User
	Token   string `json:"token"`
	Message string `json:"message,omitempty"`
}

type CertificatesResult struct {
	Message          string              `json:"message"`
	UploadedFiles    []types.Certificate `json:"uploadedFiles"`
	UserCertificates []types.Certificate `json:"userCertificates"`
}

type messageBody struct {
	Message string `json:"message"`
}

func (c *Client) SendOTP(ctx context.Context, email string) (SendOTPResult, error) {
	var out SendOTPResult
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/send", "", map[string]string{"email": email}, &out)
	return out, err
}

func (c *Client) VerifyOTP(ctx context.Context, email, code string) error {
	return c.doJSON(ctx, http.MethodPost, "/api/auth/verify", "", map[string]string{"email": email, "otp": code}, nil)
}

func (c *Client) Signup(ctx context.Context, name, email, password string) (AuthResult, error) {
	var out AuthResult
	body := map[string]string{"name": name, "email": email, "password": password}
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/signup", "", body, &out)
	return out, err
}

func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	var out AuthResult
	body := map[string]string{"email": email, "password": password}
	err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", "", body, &out)
	return out, err
}

func (c *Client) Profile(ctx context.Context, token string) (types.User, error) {
	var out types.User
	err := c.doJSON(ctx, http.MethodGet, "/api/auth/profile", token, nil, &out)
	return out, err
}

// CompleteProfile sends a partial profile update containing only fields.
func (c *Client) CompleteProfile(ctx context.Context, token string, fields map[string]any) (types.User, error) {
	var out types.User
	err := c.doJSON(ctx, http.MethodPut, "/api/auth/complete-profile", token, fields, &out)
	return out, err
}

func (c *Client) ChangePassword(ctx context.Context, token, current, next string) error {
	body := map[string]string{"currentPassword": current, "newPassword": next}
	return c.doJSON(ctx, http.MethodPut, "/api/auth/change-password", token, body, nil)
}

func (c *Client) UploadCertificates(ctx context.Context, token string, files []File) (CertificatesResult, error) {
	var out CertificatesResult
	err := c.doMultipart(ctx, "/api/upload/certificates", token, "certificates", files, &out)
	return out, err
}

// UploadProfileImage returns the public URL of the stored image.
func (c *Client) UploadProfileImage(ctx context.Context, token string, file File) (string, error) {
	var out struct {
		ProfileImageURL string `json:"profileImageUrl"`
	}
	err := c.doMultipart(ctx, "/api/upload/profile-image", token, "profileImage", []File{file}, &out)
	return out.ProfileImageURL, err
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, token, out)
}

func (c *Client) doMultipart(ctx context.Context, path, token, field string, files []File, out any) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, file := range files {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, file.Name))
		header.Set("Content-Type", file.ContentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			return err
		}
		if _, err := part.Write(file.Data); err != nil {
			return err
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req, token, out)
}

func (c *Client) do(req *http.Request, token string, out any) error {
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, Message: FallbackMessage}
		var msg messageBody
		if json.Unmarshal(data, &msg) == nil && strings.TrimSpace(msg.Message) != "" {
			apiErr.Message = msg.Message
		}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
