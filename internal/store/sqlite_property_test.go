package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// Property: a value written through Update reads back unchanged, both via
// Get and GetMany.
func TestProperty_KVRoundTrip(t *testing.T) {
	store := newTestStore(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("Update then Get returns the written value", prop.ForAll(
		func(key, value string) bool {
			ctx := context.Background()
			key = "k_" + key

			if err := store.Update(ctx, map[string]string{key: value}, nil); err != nil {
				t.Logf("Update failed: %v", err)
				return false
			}

			got, ok, err := store.Get(ctx, key)
			if err != nil || !ok || got != value {
				t.Logf("Get(%q) = %q, %v, %v", key, got, ok, err)
				return false
			}

			many, err := store.GetMany(ctx, key, key+"_missing")
			if err != nil {
				return false
			}
			return len(many) == 1 && many[key] == value
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// Property: a single Update that sets some keys and deletes others is seen
// in full, never halfway.
func TestProperty_KVUpdateIsAtomic(t *testing.T) {
	store := newTestStore(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("set and delete apply together", prop.ForAll(
		func(n int) bool {
			ctx := context.Background()

			keys := make([]string, n)
			initial := make(map[string]string, n)
			for i := range keys {
				keys[i] = fmt.Sprintf("atomic_%d", i)
				initial[keys[i]] = "v"
			}
			if err := store.Update(ctx, initial, nil); err != nil {
				return false
			}

			// Replace the first half, delete the rest.
			set := map[string]string{}
			var del []string
			for i, k := range keys {
				if i < n/2 {
					set[k] = "w"
				} else {
					del = append(del, k)
				}
			}
			if err := store.Update(ctx, set, del); err != nil {
				return false
			}

			got, err := store.GetMany(ctx, keys...)
			if err != nil {
				return false
			}
			if len(got) != len(set) {
				return false
			}
			for k, v := range set {
				if got[k] != v {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 12),
	))

	properties.TestingRun(t)
}

func TestSQLiteStore_UpdateFailureRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Update(ctx, map[string]string{"a": "1"}, nil); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := store.Update(cancelled, map[string]string{"a": "2", "b": "2"}, []string{"a"}); err == nil {
		t.Fatalf("expected error with cancelled context")
	}

	got, err := store.GetMany(ctx, "a", "b")
	if err != nil {
		t.Fatalf("GetMany failed: %v", err)
	}
	if got["a"] != "1" || len(got) != 1 {
		t.Fatalf("store changed by failed update: %v", got)
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	ctx := context.Background()

	s1, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	if err := s1.Update(ctx, map[string]string{"token": "abc"}, nil); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	s1.Close()

	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("Failed to reopen store: %v", err)
	}
	defer s2.Close()

	v, ok, err := s2.Get(ctx, "token")
	if err != nil || !ok || v != "abc" {
		t.Fatalf("Get after reopen = %q, %v, %v", v, ok, err)
	}
}
