package bunstore_test

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-auth-client/storage/bunstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T, path string) *bunstore.Store {
	t.Helper()
	store, err := bunstore.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store.WithPollInterval(20 * time.Millisecond)
}

func waitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestBunstoreRoundTrip(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "auth.db"))

	_, ok, err := store.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set("auth-storage", []byte(`{"is_authenticated":true}`)))

	got, ok, err := store.Get("auth-storage")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"is_authenticated":true}`, string(got))

	require.NoError(t, store.Set("auth-storage", []byte(`{"is_authenticated":false}`)))
	got, _, err = store.Get("auth-storage")
	require.NoError(t, err)
	assert.JSONEq(t, `{"is_authenticated":false}`, string(got))

	require.NoError(t, store.Remove("auth-storage"))
	_, ok, err = store.Get("auth-storage")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBunstoreOwnWritesDoNotFireWatchers(t *testing.T) {
	store := openStore(t, filepath.Join(t.TempDir(), "auth.db"))

	var mu sync.Mutex
	var fired []string
	cancel := store.Watch(func(key string) {
		mu.Lock()
		fired = append(fired, key)
		mu.Unlock()
	})
	defer cancel()

	require.NoError(t, store.Set("auth-storage", []byte("a")))
	require.NoError(t, store.Set("auth-storage", []byte("b")))
	require.NoError(t, store.Remove("auth-storage"))

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, fired, "a handle never observes its own writes")
}

func TestBunstoreDetectsExternalWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.db")
	writer := openStore(t, path)
	watcher := openStore(t, path)

	var mu sync.Mutex
	var fired []string
	cancel := watcher.Watch(func(key string) {
		mu.Lock()
		fired = append(fired, key)
		mu.Unlock()
	})
	defer cancel()

	require.NoError(t, writer.Set("auth-storage", []byte(`{"is_authenticated":true}`)))

	ok := waitFor(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) > 0
	}, 2*time.Second)
	require.True(t, ok, "watcher should observe the other handle's write")

	mu.Lock()
	assert.Equal(t, "auth-storage", fired[0])
	mu.Unlock()

	got, ok2, err := watcher.Get("auth-storage")
	require.NoError(t, err)
	require.True(t, ok2)
	assert.JSONEq(t, `{"is_authenticated":true}`, string(got))
}

func TestBunstoreDetectsExternalRemoval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.db")
	writer := openStore(t, path)
	watcher := openStore(t, path)

	require.NoError(t, writer.Set("auth-storage", []byte("session")))

	// Let the watcher observe the key before it disappears.
	_, ok, err := watcher.Get("auth-storage")
	require.NoError(t, err)
	require.True(t, ok)

	var mu sync.Mutex
	var fired []string
	cancel := watcher.Watch(func(key string) {
		mu.Lock()
		fired = append(fired, key)
		mu.Unlock()
	})
	defer cancel()

	require.NoError(t, writer.Remove("auth-storage"))

	removed := waitFor(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(fired) > 0
	}, 2*time.Second)
	require.True(t, removed, "watcher should observe the external removal")
}
