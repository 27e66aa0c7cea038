package authclient

import (
	"crypto/rand"
	"io"
	"sync"

	"github.com/goliatone/go-errors"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// Storage is the durable key-value port behind the persisted session. Watch
// callbacks fire only for external mutations (another tab, another process),
// never for writes issued through the same handle. Cross-context consistency
// is reload-the-source-of-truth, not merge.
type Storage interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Remove(key string) error
	Watch(fn func(key string)) (cancel func())
}

// MemoryStorage is an in-process Storage used by tests and short lived tools.
type MemoryStorage struct {
	mu       sync.RWMutex
	values   map[string][]byte
	watchers map[int]func(key string)
	nextID   int
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		values:   map[string][]byte{},
		watchers: map[int]func(string){},
	}
}

func (m *MemoryStorage) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (m *MemoryStorage) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.values[key] = cp
	return nil
}

func (m *MemoryStorage) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *MemoryStorage) Watch(fn func(key string)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.watchers, id)
	}
}

// ExternalSet mutates a key as another context would, firing watchers.
func (m *MemoryStorage) ExternalSet(key string, value []byte) {
	_ = m.Set(key, value)
	m.notify(key)
}

// ExternalRemove removes a key as another context would, firing watchers.
func (m *MemoryStorage) ExternalRemove(key string) {
	_ = m.Remove(key)
	m.notify(key)
}

func (m *MemoryStorage) notify(key string) {
	m.mu.RLock()
	fns := make([]func(string), 0, len(m.watchers))
	for _, fn := range m.watchers {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		fn(key)
	}
}

const (
	saltSize  = 32
	nonceSize = 24
	keySize   = 32
)

// ErrStorageCorrupt is returned when an encrypted record fails to open,
// either truncated or tampered with.
var ErrStorageCorrupt = errors.New("stored credentials are corrupt or tampered", errors.CategoryBadInput).
	WithTextCode(TextCodeTokenInvalid)

// EncryptedStorage wraps a Storage and seals every value at rest. Keys are
// derived per record with scrypt, values sealed with secretbox. A record that
// fails to open is treated as absent on Get so a corrupt snapshot degrades to
// a clean logout instead of a stuck session.
type EncryptedStorage struct {
	inner      Storage
	passphrase []byte
}

func NewEncryptedStorage(inner Storage, passphrase string) *EncryptedStorage {
	return &EncryptedStorage{
		inner:      inner,
		passphrase: []byte(passphrase),
	}
}

func (e *EncryptedStorage) Get(key string) ([]byte, bool, error) {
	sealed, ok, err := e.inner.Get(key)
	if err != nil || !ok {
		return nil, ok, err
	}

	plain, err := e.open(sealed)
	if err != nil {
		return nil, false, err
	}
	return plain, true, nil
}

func (e *EncryptedStorage) Set(key string, value []byte) error {
	sealed, err := e.seal(value)
	if err != nil {
		return err
	}
	return e.inner.Set(key, sealed)
}

func (e *EncryptedStorage) Remove(key string) error {
	return e.inner.Remove(key)
}

func (e *EncryptedStorage) Watch(fn func(key string)) func() {
	return e.inner.Watch(fn)
}

func (e *EncryptedStorage) seal(plain []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to generate salt")
	}

	key, err := e.deriveKey(salt)
	if err != nil {
		return nil, err
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to generate nonce")
	}

	out := make([]byte, 0, saltSize+nonceSize+len(plain)+secretbox.Overhead)
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, plain, &nonce, key), nil
}

func (e *EncryptedStorage) open(sealed []byte) ([]byte, error) {
	if len(sealed) < saltSize+nonceSize+secretbox.Overhead {
		return nil, ErrStorageCorrupt
	}

	key, err := e.deriveKey(sealed[:saltSize])
	if err != nil {
		return nil, err
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[saltSize:saltSize+nonceSize])

	plain, ok := secretbox.Open(nil, sealed[saltSize+nonceSize:], &nonce, key)
	if !ok {
		return nil, ErrStorageCorrupt
	}
	return plain, nil
}

func (e *EncryptedStorage) deriveKey(salt []byte) (*[keySize]byte, error) {
	raw, err := scrypt.Key(e.passphrase, salt, 1<<15, 8, 1, keySize)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to derive storage key")
	}
	var key [keySize]byte
	copy(key[:], raw)
	return &key, nil
}
