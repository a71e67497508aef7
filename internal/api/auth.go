package api

import (
	"context"
	"net/http"
	"net/url"

	apperrors "investdesk/internal/errors"
	"investdesk/internal/models"
)

// TwoFactorRequired is the message the backend sends instead of a token when
// a second factor is needed.
const TwoFactorRequired = "2FA required"

// LoginResponse is the body of a login, 2FA or login-as-user answer.
type LoginResponse struct {
	Token   string             `json:"token"`
	User    models.UserSummary `json:"user"`
	Message string             `json:"message"`
}

// Requires2FA reports whether the server asked for a one-time code.
func (r LoginResponse) Requires2FA() bool {
	return r.Token == "" && r.Message == TwoFactorRequired
}

// Login posts email and password.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var out LoginResponse
	err := c.DoJSON(ctx, Request{
		Method: http.MethodPost,
		Path:   "/api/auth/login",
		Body:   map[string]string{"email": email, "password": password},
		Shape:  apperrors.ShapeObject,
		Auth:   AuthNone,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Validate2FA submits the one-time code for a pending login.
func (c *Client) Validate2FA(ctx context.Context, email, code string) (*LoginResponse, error) {
	var out LoginResponse
	err := c.DoJSON(ctx, Request{
		Method: http.MethodPost,
		Path:   "/api/auth/2fa/validate",
		Body:   map[string]string{"email": email, "token": code},
		Shape:  apperrors.ShapeObject,
		Auth:   AuthNone,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Register creates an account. The user must verify their email afterwards.
func (c *Client) Register(ctx context.Context, req models.RegisterRequest) (*models.MessageResponse, error) {
	return c.postMessage(ctx, "/api/auth/register", req, AuthNone)
}

// VerifyEmail submits the emailed verification code.
func (c *Client) VerifyEmail(ctx context.Context, email, code string) (*models.MessageResponse, error) {
	return c.postMessage(ctx, "/api/auth/verify-email", map[string]string{"email": email, "code": code}, AuthNone)
}

// ResendVerification asks for a new verification code.
func (c *Client) ResendVerification(ctx context.Context, email string) (*models.MessageResponse, error) {
	return c.postMessage(ctx, "/api/auth/resend-verification", map[string]string{"email": email}, AuthNone)
}

// ForgotPassword requests a reset link. A 404 means the email is unknown.
func (c *Client) ForgotPassword(ctx context.Context, email string) (*models.MessageResponse, error) {
	resp, err := c.postMessage(ctx, "/api/auth/forgot-password", map[string]string{"email": email}, AuthNone)
	if err != nil {
		var httpErr *apperrors.HTTPError
		if apperrors.As(err, &httpErr) && httpErr.Status == http.StatusNotFound {
			return nil, apperrors.Wrap(apperrors.ErrEmailNotFound, email)
		}
		return nil, err
	}
	return resp, nil
}

// ValidateResetToken checks a password reset link before the form is shown.
func (c *Client) ValidateResetToken(ctx context.Context, token string) error {
	_, err := c.Do(ctx, Request{
		Method: http.MethodGet,
		Path:   "/api/auth/reset-password/validate",
		Query:  url.Values{"token": {token}},
		Auth:   AuthNone,
	})
	if err != nil {
		var httpErr *apperrors.HTTPError
		if apperrors.As(err, &httpErr) && httpErr.Status >= 400 && httpErr.Status < 500 {
			return apperrors.Wrap(apperrors.ErrInvalidResetToken, httpErr.Message)
		}
		return err
	}
	return nil
}

// ResetPassword sets a new password with a reset token.
func (c *Client) ResetPassword(ctx context.Context, token, password string) (*models.MessageResponse, error) {
	return c.postMessage(ctx, "/api/auth/reset-password", map[string]string{"token": token, "password": password}, AuthNone)
}

// LoginAsUser issues an impersonation token for userID. It is always sent
// with the primary admin token.
func (c *Client) LoginAsUser(ctx context.Context, userID models.ID) (*LoginResponse, error) {
	var out LoginResponse
	err := c.DoJSON(ctx, Request{
		Method: http.MethodPost,
		Path:   "/api/auth/admin/login-as-user",
		Body:   map[string]models.ID{"userId": userID},
		Shape:  apperrors.ShapeObject,
		Auth:   AuthPrimary,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) postMessage(ctx context.Context, path string, body interface{}, auth Auth) (*models.MessageResponse, error) {
	var out models.MessageResponse
	err := c.DoJSON(ctx, Request{
		Method: http.MethodPost,
		Path:   path,
		Body:   body,
		Shape:  apperrors.ShapeAny,
		Auth:   auth,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
