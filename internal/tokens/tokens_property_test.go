package tokens

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"

	apperrors "investdesk/internal/errors"
	"investdesk/internal/models"
	"investdesk/internal/store"
)

func newTestTokens(t *testing.T) (*Store, store.KVStore) {
	t.Helper()
	kv, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "tokens.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { kv.Close() })
	return New(kv, zerolog.Nop()), kv
}

func presentKeys(t *testing.T, kv store.KVStore) map[string]string {
	t.Helper()
	vals, err := kv.GetMany(context.Background(), CredentialKeys...)
	if err != nil {
		t.Fatalf("GetMany failed: %v", err)
	}
	return vals
}

// Property: setImpersonation, restorePrimary, clearAll from a primary
// credential leaves no credential keys and no effective token.
func TestProperty_ImpersonateRestoreClearLeavesNothing(t *testing.T) {
	ts, kv := newTestTokens(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("no keys remain after impersonate/restore/clear", prop.ForAll(
		func(primary, imp string, userID int) bool {
			ctx := context.Background()
			primary, imp = "p-"+primary, "i-"+imp

			if err := ts.SetPrimary(ctx, primary, models.RoleAdmin); err != nil {
				return false
			}
			user := models.UserSummary{ID: models.ID(fmt.Sprint(userID)), Email: "u@x.io"}
			if err := ts.SetImpersonation(ctx, imp, primary, user); err != nil {
				return false
			}
			if err := ts.RestorePrimary(ctx); err != nil {
				return false
			}
			if err := ts.ClearAll(ctx); err != nil {
				return false
			}

			if len(presentKeys(t, kv)) != 0 {
				return false
			}
			_, ok, err := ts.Effective(ctx)
			return err == nil && !ok
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.IntRange(1, 100000),
	))

	properties.TestingRun(t)
}

type tokenOp struct {
	Kind  int // 0 primary, 1 impersonate, 2 restore, 3 clear
	Token string
}

// Property: for any sequence of operations, Effective matches a simple model
// in which an impersonation token always wins over the primary token.
func TestProperty_EffectivePrefersImpersonation(t *testing.T) {
	ts, _ := newTestTokens(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	opGen := gopter.CombineGens(gen.IntRange(0, 3), gen.Identifier()).Map(func(v []interface{}) tokenOp {
		return tokenOp{Kind: v[0].(int), Token: v[1].(string)}
	})

	properties.Property("effective token follows the model", prop.ForAll(
		func(ops []tokenOp) bool {
			ctx := context.Background()
			if err := ts.ClearAll(ctx); err != nil {
				return false
			}

			var primary, imp, admin string
			for _, op := range ops {
				switch op.Kind {
				case 0:
					if ts.SetPrimary(ctx, op.Token, models.RoleAdmin) != nil {
						return false
					}
					primary = op.Token
				case 1:
					err := ts.SetImpersonation(ctx, "imp-"+op.Token, "adm-"+op.Token, models.UserSummary{Email: "x@y.z"})
					if primary == "" {
						if !apperrors.Is(err, apperrors.ErrNoPrimary) {
							return false
						}
						continue
					}
					if err != nil {
						return false
					}
					imp, admin = "imp-"+op.Token, "adm-"+op.Token
				case 2:
					err := ts.RestorePrimary(ctx)
					if admin == "" {
						if !apperrors.Is(err, apperrors.ErrNoAdminToken) {
							return false
						}
						continue
					}
					if err != nil {
						return false
					}
					primary, imp, admin = admin, "", ""
				case 3:
					if ts.ClearAll(ctx) != nil {
						return false
					}
					primary, imp, admin = "", "", ""
				}

				cred, ok, err := ts.Effective(ctx)
				if err != nil {
					return false
				}
				switch {
				case imp != "":
					if !ok || cred.Token != imp || cred.Kind != models.KindImpersonation {
						return false
					}
				case primary != "":
					if !ok || cred.Token != primary || cred.Kind != models.KindPrimary {
						return false
					}
				default:
					if ok {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(opGen),
	))

	properties.TestingRun(t)
}

func TestRestorePrimary_WithoutAdminTokenIsNoop(t *testing.T) {
	ts, kv := newTestTokens(t)
	ctx := context.Background()

	if err := ts.SetPrimary(ctx, "user-token", models.RoleUser); err != nil {
		t.Fatalf("SetPrimary failed: %v", err)
	}

	err := ts.RestorePrimary(ctx)
	if !apperrors.Is(err, apperrors.ErrNoAdminToken) {
		t.Fatalf("expected ErrNoAdminToken, got %v", err)
	}

	vals := presentKeys(t, kv)
	if vals[KeyToken] != "user-token" || vals[KeyRole] != "user" || len(vals) != 2 {
		t.Fatalf("store changed by no-op restore: %v", vals)
	}
}

func TestImpersonation_RestoresAdminTokenExactly(t *testing.T) {
	ts, _ := newTestTokens(t)
	ctx := context.Background()

	if err := ts.SetPrimary(ctx, "admin-jwt", models.RoleAdmin); err != nil {
		t.Fatalf("SetPrimary failed: %v", err)
	}
	user := models.UserSummary{ID: "42", Email: "client@x.io", Role: models.RoleUser}
	if err := ts.SetImpersonation(ctx, "client-jwt", "admin-jwt", user); err != nil {
		t.Fatalf("SetImpersonation failed: %v", err)
	}

	ic, err := ts.Impersonation(ctx)
	if err != nil || ic == nil {
		t.Fatalf("Impersonation() = %v, %v", ic, err)
	}
	if ic.AdminToken != "admin-jwt" || ic.ImpersonatedUserToken != "client-jwt" || ic.ImpersonatedUser.Email != "client@x.io" {
		t.Fatalf("unexpected context: %+v", ic)
	}

	cred, _, _ := ts.Effective(ctx)
	if cred.Token != "client-jwt" || cred.Role != models.RoleUser {
		t.Fatalf("unexpected effective credential: %+v", cred)
	}

	if err := ts.RestorePrimary(ctx); err != nil {
		t.Fatalf("RestorePrimary failed: %v", err)
	}

	cred, ok, _ := ts.Effective(ctx)
	if !ok || cred.Token != "admin-jwt" || cred.Role != models.RoleAdmin || cred.Kind != models.KindPrimary {
		t.Fatalf("admin not restored: %+v", cred)
	}
	if ic, _ := ts.Impersonation(ctx); ic != nil {
		t.Fatalf("impersonation context survived restore: %+v", ic)
	}
}

func TestSetPrimary_RejectsEmptyToken(t *testing.T) {
	ts, _ := newTestTokens(t)
	if err := ts.SetPrimary(context.Background(), "", models.RoleUser); err == nil {
		t.Fatalf("expected error for empty token")
	}
}

func TestStartSession_DropsStaleImpersonation(t *testing.T) {
	ts, _ := newTestTokens(t)
	ctx := context.Background()

	if err := ts.SetPrimary(ctx, "admin-jwt", models.RoleAdmin); err != nil {
		t.Fatalf("SetPrimary failed: %v", err)
	}
	if err := ts.SetImpersonation(ctx, "client-jwt", "admin-jwt", models.UserSummary{ID: "42"}); err != nil {
		t.Fatalf("SetImpersonation failed: %v", err)
	}

	if err := ts.StartSession(ctx, "fresh-jwt", models.RoleUser); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	cred, ok, _ := ts.Effective(ctx)
	if !ok || cred.Token != "fresh-jwt" || cred.Kind != models.KindPrimary {
		t.Fatalf("unexpected effective credential: %+v", cred)
	}
	if ic, _ := ts.Impersonation(ctx); ic != nil {
		t.Fatalf("stale impersonation survived: %+v", ic)
	}
}
