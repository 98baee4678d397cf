package session

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// UserProfile is an immutable snapshot of the authenticated user. It is
// refreshed wholesale from the API, never patched field by field.
type UserProfile struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	FullName          string `json:"full_name,omitempty"`
	PreferredLanguage string `json:"preferred_language"`
	IsActive          bool   `json:"is_active"`
	CreatedAt         string `json:"created_at"`
}

// TokenStore persists the access token across client restarts.
type TokenStore interface {
	// Load returns the saved token, or empty when none is saved.
	Load() (string, error)

	// Save replaces the saved token.
	Save(token string) error

	// Clear removes the saved token.
	Clear() error
}

// Manager owns the access token and the current user profile. The token is
// seeded once from the store at construction; storage I/O is best-effort and
// any failure falls back silently to memory-only operation.
type Manager struct {
	mu     sync.RWMutex
	token  string
	user   *UserProfile
	store  TokenStore
	logger *slog.Logger
}

// NewManager creates a session manager seeded from the given store.
// A nil store means memory-only operation.
func NewManager(store TokenStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{store: store, logger: logger}
	if store != nil {
		token, err := store.Load()
		if err != nil {
			logger.Warn("failed to load saved token, continuing unauthenticated", "error", err)
		} else if token != "" {
			m.token = token
			logger.Info("restored saved session token")
		}
	}
	return m
}

// Token returns the current access token, or empty when unauthenticated.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// SetToken updates the token in memory and in the store. An empty token
// clears both. Store failures are logged and otherwise ignored.
func (m *Manager) SetToken(token string) {
	m.mu.Lock()
	m.token = token
	if token == "" {
		m.user = nil
	}
	store := m.store
	m.mu.Unlock()

	if store == nil {
		return
	}
	if token == "" {
		if err := store.Clear(); err != nil {
			m.logger.Warn("failed to clear saved token", "error", err)
		}
		return
	}
	if err := store.Save(token); err != nil {
		m.logger.Warn("failed to save token", "error", err)
	}
}

// Authenticated reports whether a token is present. The profile must still be
// confirmed via /auth/me before the session is treated as trusted.
func (m *Manager) Authenticated() bool {
	return m.Token() != ""
}

// User returns the current profile snapshot, or nil when not yet confirmed.
func (m *Manager) User() *UserProfile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// SetUser replaces the profile snapshot wholesale.
func (m *Manager) SetUser(user *UserProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user == nil {
		m.user = nil
		return
	}
	u := *user
	m.user = &u
}

const tokenKey = "access_token"

// SQLiteStore keeps the token in a single-row credentials table, the client
// equivalent of browser local storage.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an opened credentials database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Load returns the saved token, or empty when none is saved.
func (s *SQLiteStore) Load() (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM credentials WHERE name = ?", tokenKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	return value, nil
}

// Save replaces the saved token.
func (s *SQLiteStore) Save(token string) error {
	_, err := s.db.Exec("INSERT OR REPLACE INTO credentials (name, value) VALUES (?, ?)", tokenKey, token)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// Clear removes the saved token.
func (s *SQLiteStore) Clear() error {
	_, err := s.db.Exec("DELETE FROM credentials WHERE name = ?", tokenKey)
	if err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}
