package session

import (
	"context"
	"strings"
	"time"

	apperrors "investdesk/internal/errors"
	"investdesk/internal/models"
	"investdesk/internal/security"
)

// RedirectDelay is how long a login refusal message stays on screen before
// the follow-up page.
const RedirectDelay = 2 * time.Second

// Redirect is a follow-up navigation.
type Redirect struct {
	Route string
	Delay time.Duration
}

// LoginRedirect maps a login error to the page the user should see next.
// It reports false when the error keeps the user on the login form.
func LoginRedirect(err error) (Redirect, bool) {
	switch {
	case apperrors.Is(err, apperrors.ErrEmailNotVerified):
		return Redirect{Route: RouteVerifyEmail, Delay: RedirectDelay}, true
	case apperrors.Is(err, apperrors.ErrPendingApproval):
		return Redirect{Route: RoutePendingApproval, Delay: RedirectDelay}, true
	case apperrors.Is(err, apperrors.ErrSessionExpired):
		return Redirect{Route: RouteLogin}, true
	}
	return Redirect{}, false
}

// Registration is the sign-up form.
type Registration struct {
	models.RegisterRequest
	ConfirmPassword string
}

// Register validates the form locally and creates the account. The user must
// verify their email before logging in.
func (c *Controller) Register(ctx context.Context, form Registration) (*models.MessageResponse, error) {
	req := form.RegisterRequest
	req.Email = strings.TrimSpace(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)

	if err := security.ValidateName("firstName", req.FirstName); err != nil {
		return nil, err
	}
	if err := security.ValidateName("lastName", req.LastName); err != nil {
		return nil, err
	}
	if err := security.ValidateEmail(req.Email); err != nil {
		return nil, err
	}
	if err := security.ValidatePhone(req.Phone); err != nil {
		return nil, err
	}
	if err := security.ValidateNewPassword(req.Password, form.ConfirmPassword); err != nil {
		return nil, err
	}
	if req.Country == "" {
		return nil, apperrors.NewValidationError("country", "", "Country is required.")
	}
	if req.Currency == "" {
		return nil, apperrors.NewValidationError("currency", "", "Currency is required.")
	}

	return c.api.Register(ctx, req)
}

// VerifyEmail submits the emailed code.
func (c *Controller) VerifyEmail(ctx context.Context, email, code string) (*models.MessageResponse, error) {
	email = strings.TrimSpace(email)
	if err := security.ValidateEmail(email); err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if err := security.ValidateCode(code); err != nil {
		return nil, err
	}
	return c.api.VerifyEmail(ctx, email, code)
}

// ResendVerification requests a new code.
func (c *Controller) ResendVerification(ctx context.Context, email string) (*models.MessageResponse, error) {
	email = strings.TrimSpace(email)
	if err := security.ValidateEmail(email); err != nil {
		return nil, err
	}
	return c.api.ResendVerification(ctx, email)
}

// ForgotPassword requests a reset link. An unknown address gives
// ErrEmailNotFound.
func (c *Controller) ForgotPassword(ctx context.Context, email string) (*models.MessageResponse, error) {
	email = strings.TrimSpace(email)
	if err := security.ValidateEmail(email); err != nil {
		return nil, err
	}
	return c.api.ForgotPassword(ctx, email)
}

// ValidateResetToken checks a reset link before asking for a new password.
func (c *Controller) ValidateResetToken(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return apperrors.ErrInvalidResetToken
	}
	return c.api.ValidateResetToken(ctx, token)
}

// ResetPassword sets a new password. Length and confirmation are checked
// locally first.
func (c *Controller) ResetPassword(ctx context.Context, token, password, confirm string) (*models.MessageResponse, error) {
	if strings.TrimSpace(token) == "" {
		return nil, apperrors.ErrInvalidResetToken
	}
	if err := security.ValidateNewPassword(password, confirm); err != nil {
		return nil, err
	}
	return c.api.ResetPassword(ctx, token, password)
}
