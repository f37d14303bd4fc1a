// internal/auth/credentials.go
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	// KeyringService is the service name for keyring storage
	KeyringService = "sitewatch"
	// FallbackDir is the directory, relative to home, for file-based secrets
	FallbackDir = ".sitewatch/credentials"
	// PasswordEnv overrides any stored SMTP password
	PasswordEnv = "SITEWATCH_SMTP_PASSWORD"
)

// ErrNoCredential is returned when no password is stored for a username.
var ErrNoCredential = errors.New("no stored credential")

// Store keeps SMTP passwords in the OS keyring, or in 0600 files when no
// keyring is reachable (CI, containers, Codespaces).
type Store struct {
	dir string

	once    sync.Once
	useFile bool
	probe   func() bool
}

// NewStore creates a Store whose file fallback lives in dir.
// An empty dir means ~/.sitewatch/credentials.
func NewStore(dir string) *Store {
	return &Store{dir: dir, probe: keyringUnavailable}
}

// NewFileStore creates a Store that never touches the keyring.
func NewFileStore(dir string) *Store {
	return &Store{dir: dir, probe: func() bool { return true }}
}

// keyringUnavailable reports whether file-based storage must be used
func keyringUnavailable() bool {
	if os.Getenv("CODESPACES") != "" || os.Getenv("CI") != "" {
		return true
	}

	testKey := "_test_keyring_access_"
	if err := keyring.Set(KeyringService, testKey, "test"); err != nil {
		return true
	}
	keyring.Delete(KeyringService, testKey)
	return false
}

func (s *Store) fileBased() bool {
	s.once.Do(func() { s.useFile = s.probe() })
	return s.useFile
}

// Backend names where secrets are kept, for display.
func (s *Store) Backend() string {
	if s.fileBased() {
		return "file"
	}
	return "keyring"
}

func (s *Store) secretPath(username string) (string, error) {
	dir := s.dir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, FallbackDir)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	name := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(username)
	return filepath.Join(dir, name+".secret"), nil
}

// SetPassword stores password for username
func (s *Store) SetPassword(username, password string) error {
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}

	if s.fileBased() {
		path, err := s.secretPath(username)
		if err != nil {
			return fmt.Errorf("failed to get credential path: %w", err)
		}
		if err := os.WriteFile(path, []byte(password), 0o600); err != nil {
			return fmt.Errorf("failed to save credential file: %w", err)
		}
		return nil
	}

	if err := keyring.Set(KeyringService, username, password); err != nil {
		return fmt.Errorf("failed to save to keyring: %w", err)
	}
	return nil
}

// Password returns the stored password for username, or ErrNoCredential.
func (s *Store) Password(username string) (string, error) {
	if username == "" {
		return "", fmt.Errorf("username cannot be empty")
	}

	if s.fileBased() {
		path, err := s.secretPath(username)
		if err != nil {
			return "", fmt.Errorf("failed to get credential path: %w", err)
		}
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoCredential
		}
		if err != nil {
			return "", fmt.Errorf("failed to read credential file: %w", err)
		}
		return string(data), nil
	}

	secret, err := keyring.Get(KeyringService, username)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNoCredential
	}
	if err != nil {
		return "", fmt.Errorf("failed to load from keyring: %w", err)
	}
	return secret, nil
}

// DeletePassword removes the stored password; a missing one is not an error.
func (s *Store) DeletePassword(username string) error {
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}

	if s.fileBased() {
		path, err := s.secretPath(username)
		if err != nil {
			return fmt.Errorf("failed to get credential path: %w", err)
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete credential file: %w", err)
		}
		return nil
	}

	err := keyring.Delete(KeyringService, username)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}

// ResolvePassword picks the SMTP password: configured value, then the
// SITEWATCH_SMTP_PASSWORD environment variable, then the Store.
// An empty result with nil error means no password is available.
func ResolvePassword(configured, username string, store *Store) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if env := os.Getenv(PasswordEnv); env != "" {
		return env, nil
	}
	if store == nil || username == "" {
		return "", nil
	}
	secret, err := store.Password(username)
	if errors.Is(err, ErrNoCredential) {
		return "", nil
	}
	return secret, err
}
