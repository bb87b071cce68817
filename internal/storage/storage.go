// Package storage provides the client-local key/value store that survives
// session restarts. Values are JSON documents; absent or unreadable values
// are reported as ErrNotFound so callers can start fresh.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

// Persisted keys.
const (
	KeyCart          = "cart"
	KeyOrder         = "order"
	KeyPaymentMethod = "paymentMethod"
	KeyPromoScratch  = "checkoutData"
	KeyPhoneScratch  = "checkoutPhoneData"
	KeyLanguage      = "lang"
	KeyUser          = "user"
	KeyIsGuest       = "isGuest"
	KeyToken         = "token"
	KeyPaymentOrder  = "paymentOrderId"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("storage: key not found")

// Store is a synchronous JSON key/value store.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
}

// Load decodes the value stored under key into v.
// Missing and corrupt values both return an error; callers treat either as empty.
func Load(s Store, key string, v any) error {
	raw, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

// Save encodes v and stores it under key.
func Save(s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.Put(key, raw)
}

// ============================================
// Memory Store
// ============================================

// Memory is an in-process Store, used for tests and anonymous sessions.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
	writes int
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

func (m *Memory) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = append([]byte(nil), value...)
	m.writes++
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	m.writes++
	return nil
}

// Writes returns the number of Put and Delete calls seen so far.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// ============================================
// File Store
// ============================================

var validKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Dir stores each key as <dir>/<key>.json.
type Dir struct {
	path string
	mu   sync.Mutex
}

// NewDir creates the directory if needed and returns a Store rooted there.
func NewDir(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}
	return &Dir{path: path}, nil
}

func (d *Dir) file(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return filepath.Join(d.path, key+".json"), nil
}

func (d *Dir) Get(key string) ([]byte, error) {
	name, err := d.file(key)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return raw, err
}

// Put writes through a temp file and rename so a crash never leaves a torn value.
func (d *Dir) Put(key string, value []byte) error {
	name, err := d.file(key)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	tmp := name + ".tmp"
	if err := os.WriteFile(tmp, value, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := os.Rename(tmp, name); err != nil {
		return fmt.Errorf("replacing %s: %w", key, err)
	}
	return nil
}

func (d *Dir) Delete(key string) error {
	name, err := d.file(key)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", key, err)
	}
	return nil
}
