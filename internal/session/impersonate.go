package session

import (
	"context"

	apperrors "investdesk/internal/errors"
	"investdesk/internal/logging"
	"investdesk/internal/models"
	"investdesk/internal/security"
)

// StartImpersonation switches the session to userID. The admin token stays
// primary and is saved so EndImpersonation can restore it exactly.
func (c *Controller) StartImpersonation(ctx context.Context, userID models.ID) (*models.UserSummary, error) {
	if userID == "" {
		return nil, apperrors.NewValidationError("userId", "", "A user id is required.")
	}

	primary, ok, err := c.tokens.Primary(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.ErrNotAuthenticated
	}
	if !primary.Role.IsAdmin() {
		return nil, apperrors.ErrNotAdmin
	}

	resp, err := c.api.LoginAsUser(ctx, userID)
	if err != nil {
		c.record(ctx, security.AuditEvent{Kind: security.AuditImpersonationStart, TargetID: userID.String(), Success: false, ErrorMsg: err.Error()})
		return nil, err
	}
	if resp.Token == "" {
		return nil, apperrors.ErrUnexpectedResponse
	}

	if err := c.tokens.SetImpersonation(ctx, resp.Token, primary.Token, resp.User); err != nil {
		return nil, err
	}

	c.record(ctx, security.AuditEvent{
		Kind:     security.AuditImpersonationStart,
		Email:    resp.User.Email,
		TargetID: userID.String(),
		Success:  true,
	})
	logging.LogSessionTransition(c.logger, string(StateAuthenticated), string(StateImpersonating), "login-as-user")

	user := resp.User
	return &user, nil
}

// EndImpersonation returns to the admin session. Without a saved admin token
// nothing changes and ErrNoAdminToken is returned.
func (c *Controller) EndImpersonation(ctx context.Context) error {
	imp, err := c.tokens.Impersonation(ctx)
	if err != nil {
		return err
	}

	if err := c.tokens.RestorePrimary(ctx); err != nil {
		return err
	}

	event := security.AuditEvent{Kind: security.AuditImpersonationEnd, Success: true}
	if imp != nil {
		event.Email = imp.ImpersonatedUser.Email
		event.TargetID = imp.ImpersonatedUser.ID.String()
	}
	c.record(ctx, event)
	logging.LogSessionTransition(c.logger, string(StateImpersonating), string(StateAuthenticated), "restore")
	return nil
}
