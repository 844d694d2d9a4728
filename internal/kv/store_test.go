package kv

import (
	"path/filepath"
	"testing"

	"github.com/anotherme/anotherme/internal/testutil"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "nested", "state.db"))
	testutil.RequireNoError(t, err, "open kv store")
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreSetGetOverwrite(t *testing.T) {
	store := openTestStore(t)

	_, ok, err := store.Get("missing")
	testutil.RequireNoError(t, err, "get missing")
	testutil.RequireTrue(t, !ok, "expected missing key")

	testutil.RequireNoError(t, store.Set("mode-storage", `{"a":1}`), "set")
	testutil.RequireNoError(t, store.Set("mode-storage", `{"a":2}`), "overwrite")

	value, ok, err := store.Get("mode-storage")
	testutil.RequireNoError(t, err, "get")
	testutil.RequireTrue(t, ok, "expected key to exist")
	testutil.RequireEqual(t, value, `{"a":2}`, "value")
}

func TestStoreDeleteAndKeys(t *testing.T) {
	store := openTestStore(t)
	testutil.RequireNoError(t, store.Set("b", "2"), "set b")
	testutil.RequireNoError(t, store.Set("a", "1"), "set a")

	keys, err := store.Keys()
	testutil.RequireNoError(t, err, "keys")
	testutil.RequireEqual(t, keys, []string{"a", "b"}, "keys")

	testutil.RequireNoError(t, store.Delete("a"), "delete")
	testutil.RequireNoError(t, store.Delete("a"), "delete twice")
	keys, err = store.Keys()
	testutil.RequireNoError(t, err, "keys after delete")
	testutil.RequireEqual(t, keys, []string{"b"}, "keys after delete")
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	first, err := Open(path)
	testutil.RequireNoError(t, err, "open first")
	testutil.RequireNoError(t, first.Set("k", "v"), "set")
	testutil.RequireNoError(t, first.Close(), "close first")

	second, err := Open(path)
	testutil.RequireNoError(t, err, "open second")
	defer second.Close()
	value, ok, err := second.Get("k")
	testutil.RequireNoError(t, err, "get")
	testutil.RequireTrue(t, ok, "expected persisted key")
	testutil.RequireEqual(t, value, "v", "persisted value")
}
