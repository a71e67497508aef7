// Package tokens persists the session credentials and derives the effective
// identity from them. Storage is the only source of truth: every read goes to
// the underlying KVStore and nothing is cached in memory.
package tokens

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	apperrors "investdesk/internal/errors"
	"investdesk/internal/models"
	"investdesk/internal/security"
	"investdesk/internal/store"
)

// Durable keys.
const (
	KeyToken              = "token"
	KeyRole               = "role"
	KeyImpersonationToken = "impersonationToken"
	KeyOriginalAdminToken = "originalAdminToken"
	KeyImpersonatedUser   = "impersonatedUser"
)

// CredentialKeys lists every key ClearAll removes.
var CredentialKeys = []string{
	KeyToken,
	KeyRole,
	KeyImpersonationToken,
	KeyOriginalAdminToken,
	KeyImpersonatedUser,
}

var impersonationKeys = []string{
	KeyImpersonationToken,
	KeyOriginalAdminToken,
	KeyImpersonatedUser,
}

// Store is the TokenStore. Writes are serialized so read-modify-write
// operations such as RestorePrimary cannot interleave.
type Store struct {
	kv     store.KVStore
	logger zerolog.Logger
	mu     sync.Mutex
}

// New creates a token store over kv.
func New(kv store.KVStore, logger zerolog.Logger) *Store {
	return &Store{
		kv:     kv,
		logger: logger.With().Str("component", "tokens").Logger(),
	}
}

// SetPrimary stores the login token and its role. An active impersonation
// is left in place and stays effective.
func (s *Store) SetPrimary(ctx context.Context, token string, role models.Role) error {
	if token == "" {
		return apperrors.NewValidationError("token", "", "token cannot be empty")
	}
	if role == "" {
		role = models.RoleUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Update(ctx, map[string]string{
		KeyToken: token,
		KeyRole:  string(role),
	}, nil); err != nil {
		return apperrors.Wrap(err, "storing primary token")
	}

	s.logger.Debug().
		Str("token", security.MaskToken(token)).
		Str("role", string(role)).
		Msg("Primary credential stored")
	return nil
}

// StartSession stores a fresh login. Unlike SetPrimary it also drops any
// impersonation left from an earlier session, in the same transaction.
func (s *Store) StartSession(ctx context.Context, token string, role models.Role) error {
	if token == "" {
		return apperrors.NewValidationError("token", "", "token cannot be empty")
	}
	if role == "" {
		role = models.RoleUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Update(ctx, map[string]string{
		KeyToken: token,
		KeyRole:  string(role),
	}, impersonationKeys); err != nil {
		return apperrors.Wrap(err, "starting session")
	}

	s.logger.Debug().Str("role", string(role)).Msg("Session started")
	return nil
}

// SetImpersonation stores the impersonation token together with the admin
// token to restore later and the impersonated user. All three are written in
// one transaction.
func (s *Store) SetImpersonation(ctx context.Context, token, adminToken string, user models.UserSummary) error {
	if token == "" || adminToken == "" {
		return apperrors.NewValidationError("token", "", "impersonation and admin tokens are required")
	}

	userJSON, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encoding impersonated user: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok, err := s.kv.Get(ctx, KeyToken); err != nil {
		return apperrors.Wrap(err, "reading primary token")
	} else if !ok {
		return apperrors.ErrNoPrimary
	}

	if err := s.kv.Update(ctx, map[string]string{
		KeyImpersonationToken: token,
		KeyOriginalAdminToken: adminToken,
		KeyImpersonatedUser:   string(userJSON),
	}, nil); err != nil {
		return apperrors.Wrap(err, "storing impersonation")
	}

	s.logger.Debug().
		Str("user_id", user.ID.String()).
		Str("email", user.Email).
		Msg("Impersonation credential stored")
	return nil
}

// RestorePrimary makes the saved admin token primary again and clears the
// impersonation context. Without a saved admin token it changes nothing and
// returns ErrNoAdminToken.
func (s *Store) RestorePrimary(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	adminToken, ok, err := s.kv.Get(ctx, KeyOriginalAdminToken)
	if err != nil {
		return apperrors.Wrap(err, "reading admin token")
	}
	if !ok || adminToken == "" {
		return apperrors.ErrNoAdminToken
	}

	if err := s.kv.Update(ctx, map[string]string{
		KeyToken: adminToken,
		KeyRole:  string(models.RoleAdmin),
	}, impersonationKeys); err != nil {
		return apperrors.Wrap(err, "restoring admin token")
	}

	s.logger.Debug().Msg("Admin credential restored")
	return nil
}

// ClearAll removes every credential key in one transaction.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Update(ctx, nil, CredentialKeys); err != nil {
		return apperrors.Wrap(err, "clearing credentials")
	}

	s.logger.Debug().Msg("All credentials cleared")
	return nil
}

// Effective returns the credential outgoing requests should carry: the
// impersonation token if present, else the primary token. ok is false when
// neither exists.
func (s *Store) Effective(ctx context.Context) (cred models.Credential, ok bool, err error) {
	vals, err := s.kv.GetMany(ctx, KeyToken, KeyRole, KeyImpersonationToken, KeyImpersonatedUser)
	if err != nil {
		return models.Credential{}, false, apperrors.Wrap(err, "reading credentials")
	}

	if tok := vals[KeyImpersonationToken]; tok != "" {
		role := models.RoleUser
		if raw := vals[KeyImpersonatedUser]; raw != "" {
			var u models.UserSummary
			if json.Unmarshal([]byte(raw), &u) == nil && u.Role != "" {
				role = u.Role
			}
		}
		return models.Credential{Token: tok, Role: role, Kind: models.KindImpersonation}, true, nil
	}

	if tok := vals[KeyToken]; tok != "" {
		role := models.Role(vals[KeyRole])
		if role == "" {
			role = models.RoleUser
		}
		return models.Credential{Token: tok, Role: role, Kind: models.KindPrimary}, true, nil
	}

	return models.Credential{}, false, nil
}

// Primary returns the login credential, ignoring any impersonation. Admin
// back-office calls are made with it.
func (s *Store) Primary(ctx context.Context) (models.Credential, bool, error) {
	vals, err := s.kv.GetMany(ctx, KeyToken, KeyRole)
	if err != nil {
		return models.Credential{}, false, apperrors.Wrap(err, "reading credentials")
	}
	tok := vals[KeyToken]
	if tok == "" {
		return models.Credential{}, false, nil
	}
	role := models.Role(vals[KeyRole])
	if role == "" {
		role = models.RoleUser
	}
	return models.Credential{Token: tok, Role: role, Kind: models.KindPrimary}, true, nil
}

// Impersonation returns the active impersonation context, or nil.
func (s *Store) Impersonation(ctx context.Context) (*models.ImpersonationContext, error) {
	vals, err := s.kv.GetMany(ctx, impersonationKeys...)
	if err != nil {
		return nil, apperrors.Wrap(err, "reading impersonation")
	}

	tok := vals[KeyImpersonationToken]
	if tok == "" {
		return nil, nil
	}

	ic := &models.ImpersonationContext{
		AdminToken:            vals[KeyOriginalAdminToken],
		ImpersonatedUserToken: tok,
	}
	if raw := vals[KeyImpersonatedUser]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &ic.ImpersonatedUser); err != nil {
			return nil, fmt.Errorf("decoding impersonated user: %w", err)
		}
	}
	return ic, nil
}

// Role returns the role of the primary credential.
func (s *Store) Role(ctx context.Context) (models.Role, bool, error) {
	role, ok, err := s.kv.Get(ctx, KeyRole)
	if err != nil {
		return "", false, apperrors.Wrap(err, "reading role")
	}
	return models.Role(role), ok, nil
}
