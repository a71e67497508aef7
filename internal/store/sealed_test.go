package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"investdesk/internal/security"
)

func TestSealed_ValuesAreEncryptedAtRest(t *testing.T) {
	ctx := context.Background()
	inner := newTestStore(t)

	sealed, err := NewSealed(ctx, inner, "correct horse")
	require.NoError(t, err)

	require.NoError(t, sealed.Update(ctx, map[string]string{"token": "jwt-value"}, nil))

	raw, ok, err := inner.Get(ctx, "token")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, security.IsSealed(raw))
	assert.NotContains(t, raw, "jwt-value")

	plain, ok, err := sealed.Get(ctx, "token")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "jwt-value", plain)

	many, err := sealed.GetMany(ctx, "token", "missing")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"token": "jwt-value"}, many)
}

func TestSealed_ReopenWithSamePassphrase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kv.db")

	inner, err := NewSQLiteStore(path)
	require.NoError(t, err)
	sealed, err := NewSealed(ctx, inner, "pass")
	require.NoError(t, err)
	require.NoError(t, sealed.Update(ctx, map[string]string{"token": "t1"}, nil))
	require.NoError(t, sealed.Close())

	inner, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer inner.Close()

	good, err := NewSealed(ctx, inner, "pass")
	require.NoError(t, err)
	v, _, err := good.Get(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, "t1", v)

	bad, err := NewSealed(ctx, inner, "wrong")
	require.NoError(t, err)
	_, _, err = bad.Get(ctx, "token")
	assert.Error(t, err)
}

func TestSealed_DeleteIsForwarded(t *testing.T) {
	ctx := context.Background()
	inner := newTestStore(t)
	sealed, err := NewSealed(ctx, inner, "pass")
	require.NoError(t, err)

	require.NoError(t, sealed.Update(ctx, map[string]string{"a": "1", "b": "2"}, nil))
	require.NoError(t, sealed.Update(ctx, nil, []string{"a", "b"}))

	got, err := sealed.GetMany(ctx, "a", "b")
	require.NoError(t, err)
	assert.Empty(t, got)
}
