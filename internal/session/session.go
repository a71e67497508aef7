// Package session drives login, two-factor, impersonation and logout over
// the token store and the API client.
package session

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"investdesk/internal/api"
	apperrors "investdesk/internal/errors"
	"investdesk/internal/logging"
	"investdesk/internal/models"
	"investdesk/internal/security"
)

// State is the session state derived from stored credentials.
type State string

const (
	StateAnonymous     State = "anonymous"
	StatePending2FA    State = "pending_2fa"
	StateAuthenticated State = "authenticated"
	StateImpersonating State = "impersonating"
)

// Routes the consumer navigates to.
const (
	RouteLogin           = "/login"
	RouteAdminLogin      = "/admin"
	RouteDashboard       = "/dashboard"
	RouteAdminDashboard  = "/admin/dashboard"
	RouteVerifyEmail     = "/verify-email"
	RoutePendingApproval = "/pending-approval"
)

// AuthAPI is the part of the API client the controller uses.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (*api.LoginResponse, error)
	Validate2FA(ctx context.Context, email, code string) (*api.LoginResponse, error)
	LoginAsUser(ctx context.Context, userID models.ID) (*api.LoginResponse, error)
	Register(ctx context.Context, req models.RegisterRequest) (*models.MessageResponse, error)
	VerifyEmail(ctx context.Context, email, code string) (*models.MessageResponse, error)
	ResendVerification(ctx context.Context, email string) (*models.MessageResponse, error)
	ForgotPassword(ctx context.Context, email string) (*models.MessageResponse, error)
	ValidateResetToken(ctx context.Context, token string) error
	ResetPassword(ctx context.Context, token, password string) (*models.MessageResponse, error)
	OnSessionExpired(fn func(api.SessionExpired)) (unsubscribe func())
}

// TokenStore is the part of the token store the controller uses.
type TokenStore interface {
	StartSession(ctx context.Context, token string, role models.Role) error
	SetImpersonation(ctx context.Context, token, adminToken string, user models.UserSummary) error
	RestorePrimary(ctx context.Context) error
	ClearAll(ctx context.Context) error
	Effective(ctx context.Context) (models.Credential, bool, error)
	Primary(ctx context.Context) (models.Credential, bool, error)
	Impersonation(ctx context.Context) (*models.ImpersonationContext, error)
}

// LoginResult tells the consumer where a login attempt landed.
type LoginResult struct {
	State State
	User  models.UserSummary
	Route string
}

type pending2FA struct {
	email     string
	adminOnly bool
}

// Controller is the SessionController.
type Controller struct {
	api    AuthAPI
	tokens TokenStore
	audit  *security.AuditLogger
	logger zerolog.Logger

	mu      sync.Mutex
	pending *pending2FA

	unsubscribe func()
	onExpired   func(api.SessionExpired)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) { c.logger = logging.WithComponent(logger, "session") }
}

// WithAudit records logins, impersonation and expiry to an audit log.
func WithAudit(audit *security.AuditLogger) Option {
	return func(c *Controller) { c.audit = audit }
}

// WithExpiredHandler registers a callback run after a 401 has ended the
// session. The UI uses it to route back to the login screen.
func WithExpiredHandler(fn func(api.SessionExpired)) Option {
	return func(c *Controller) { c.onExpired = fn }
}

// New creates a controller and subscribes it to session expiry.
func New(client AuthAPI, tokens TokenStore, opts ...Option) *Controller {
	c := &Controller{
		api:    client,
		tokens: tokens,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.unsubscribe = client.OnSessionExpired(c.handleExpired)
	return c
}

// Close detaches the controller from the API client.
func (c *Controller) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}

// State derives the current state from storage and any pending 2FA step.
func (c *Controller) State(ctx context.Context) (State, error) {
	c.mu.Lock()
	pending := c.pending != nil
	c.mu.Unlock()
	if pending {
		return StatePending2FA, nil
	}

	imp, err := c.tokens.Impersonation(ctx)
	if err != nil {
		return StateAnonymous, err
	}
	if imp != nil {
		return StateImpersonating, nil
	}
	_, ok, err := c.tokens.Primary(ctx)
	if err != nil {
		return StateAnonymous, err
	}
	if ok {
		return StateAuthenticated, nil
	}
	return StateAnonymous, nil
}

// PendingEmail returns the email awaiting a 2FA code.
func (c *Controller) PendingEmail() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return "", false
	}
	return c.pending.email, true
}

// Login authenticates a user. The server either returns a token, in which
// case the session is stored, or asks for a 2FA code.
func (c *Controller) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	return c.login(ctx, email, password, false)
}

// AdminLogin is Login for the back office: a non-admin account is refused
// and nothing is stored.
func (c *Controller) AdminLogin(ctx context.Context, email, password string) (*LoginResult, error) {
	return c.login(ctx, email, password, true)
}

func (c *Controller) login(ctx context.Context, email, password string, adminOnly bool) (*LoginResult, error) {
	email = strings.TrimSpace(email)
	if err := security.ValidateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, apperrors.NewValidationError("password", "", "Password is required.")
	}

	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()

	resp, err := c.api.Login(ctx, email, password)
	if err != nil {
		err = classifyLoginError(err)
		c.record(ctx, security.AuditEvent{Kind: security.AuditLogin, Email: email, Success: false, ErrorMsg: err.Error()})
		return nil, err
	}

	if resp.Token == "" {
		if !resp.Requires2FA() {
			return nil, apperrors.ErrUnexpectedResponse
		}
		c.mu.Lock()
		c.pending = &pending2FA{email: email, adminOnly: adminOnly}
		c.mu.Unlock()
		logging.LogSessionTransition(c.logger, string(StateAnonymous), string(StatePending2FA), "login")
		return &LoginResult{State: StatePending2FA}, nil
	}

	return c.establish(ctx, email, resp, adminOnly, "login")
}

// Submit2FA completes a pending login. A wrong code leaves the 2FA step
// pending so the user can retry.
func (c *Controller) Submit2FA(ctx context.Context, code string) (*LoginResult, error) {
	c.mu.Lock()
	p := c.pending
	c.mu.Unlock()
	if p == nil {
		return nil, apperrors.ErrNo2FAPending
	}

	code = strings.TrimSpace(code)
	if err := security.ValidateCode(code); err != nil {
		return nil, err
	}

	resp, err := c.api.Validate2FA(ctx, p.email, code)
	if err != nil {
		var httpErr *apperrors.HTTPError
		if apperrors.As(err, &httpErr) && httpErr.Status >= 400 && httpErr.Status < 500 {
			err = fmt.Errorf("%w: %w", apperrors.ErrInvalid2FA, err)
		}
		c.record(ctx, security.AuditEvent{Kind: security.AuditTwoFactor, Email: p.email, Success: false, ErrorMsg: err.Error()})
		return nil, err
	}
	if resp.Token == "" {
		c.record(ctx, security.AuditEvent{Kind: security.AuditTwoFactor, Email: p.email, Success: false})
		return nil, apperrors.ErrInvalid2FA
	}

	c.mu.Lock()
	if c.pending == p {
		c.pending = nil
	}
	c.mu.Unlock()

	return c.establish(ctx, p.email, resp, p.adminOnly, "2fa")
}

// CancelPending abandons a pending 2FA step.
func (c *Controller) CancelPending() {
	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()
}

func (c *Controller) establish(ctx context.Context, email string, resp *api.LoginResponse, adminOnly bool, cause string) (*LoginResult, error) {
	role := resp.User.Role
	if role == "" {
		role = models.RoleUser
	}
	if adminOnly && !role.IsAdmin() {
		c.record(ctx, security.AuditEvent{Kind: security.AuditLogin, Email: email, Success: false, ErrorMsg: apperrors.ErrNotAdmin.Error()})
		return nil, apperrors.ErrNotAdmin
	}

	if err := c.tokens.StartSession(ctx, resp.Token, role); err != nil {
		return nil, err
	}

	c.record(ctx, security.AuditEvent{
		Kind:     security.AuditLogin,
		Email:    email,
		TargetID: resp.User.ID.String(),
		Details:  map[string]interface{}{"role": string(role), "via": cause},
		Success:  true,
	})
	logging.LogSessionTransition(c.logger, string(StateAnonymous), string(StateAuthenticated), cause)

	route := RouteDashboard
	if adminOnly {
		route = RouteAdminDashboard
	}
	return &LoginResult{State: StateAuthenticated, User: resp.User, Route: route}, nil
}

// classifyLoginError maps the backend's refusal to a sentinel while keeping
// the HTTP error, and its server message, in the chain.
func classifyLoginError(err error) error {
	var httpErr *apperrors.HTTPError
	if !apperrors.As(err, &httpErr) {
		return err
	}
	switch {
	case httpErr.Flags.RequiresVerification:
		return fmt.Errorf("%w: %w", apperrors.ErrEmailNotVerified, err)
	case httpErr.Flags.AccountInactive:
		return fmt.Errorf("%w: %w", apperrors.ErrAccountInactive, err)
	case httpErr.Flags.PendingApproval:
		return fmt.Errorf("%w: %w", apperrors.ErrPendingApproval, err)
	case httpErr.Status == http.StatusBadRequest, httpErr.Status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidCredentials, err)
	}
	return err
}

// Logout clears every credential and returns where to go next: the admin
// login for admins, the user login otherwise.
func (c *Controller) Logout(ctx context.Context) (string, error) {
	from, _ := c.State(ctx)

	route := RouteLogin
	primary, ok, err := c.tokens.Primary(ctx)
	if err == nil && ok && primary.Role.IsAdmin() {
		route = RouteAdminLogin
	}

	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()

	if err := c.tokens.ClearAll(ctx); err != nil {
		return route, err
	}

	c.record(ctx, security.AuditEvent{Kind: security.AuditLogout, Success: true, Details: map[string]interface{}{"route": route}})
	logging.LogSessionTransition(c.logger, string(from), string(StateAnonymous), "logout")
	return route, nil
}

func (c *Controller) handleExpired(e api.SessionExpired) {
	c.mu.Lock()
	c.pending = nil
	c.mu.Unlock()

	ctx := context.Background()
	c.record(ctx, security.AuditEvent{
		Kind:    security.AuditSessionExpired,
		Action:  e.Method + " " + e.Path,
		Details: map[string]interface{}{"role": string(e.Role)},
		Success: true,
	})
	logging.LogSessionTransition(c.logger, "signed_in", string(StateAnonymous), "401")

	if c.onExpired != nil {
		c.onExpired(e)
	}
}

// ExpiredRoute is where to send the user after e.
func ExpiredRoute(e api.SessionExpired) string {
	if e.Role.IsAdmin() {
		return RouteAdminLogin
	}
	return RouteLogin
}

func (c *Controller) record(ctx context.Context, event security.AuditEvent) {
	if c.audit == nil {
		return
	}
	if err := c.audit.Record(ctx, event); err != nil {
		c.logger.Warn().Err(err).Msg("Audit write failed")
	}
}
