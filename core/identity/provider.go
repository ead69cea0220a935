// Package identity supplies the user identifier and the per-user backend
// host every chat and synthesis call must carry. There is no implicit
// default user: callers without an identity get an explicit error.
package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const DefaultHost = "agent.tinybuddy.fun"

type Identity struct {
	UserID string
	Host   string
}

type Provider interface {
	Identity() (Identity, error)
}

func (id Identity) Validate() error {
	if id.UserID == "" {
		return fmt.Errorf("no user id configured")
	}
	if id.Host == "" {
		return fmt.Errorf("no api host configured for user %q", id.UserID)
	}
	return nil
}

// BaseURL returns the scheme-qualified root URL for the identity's host.
func (id Identity) BaseURL() string {
	return BaseURL(id.Host)
}

// BaseURL turns a backend host into a root URL. Hosts that already carry a
// scheme are used as-is, so local test servers can be addressed directly.
func BaseURL(host string) string {
	if strings.Contains(host, "://") {
		return strings.TrimSuffix(host, "/")
	}
	return "https://" + host
}

// Static is a fixed identity, useful for tests and single-user embeddings.
type Static Identity

func (s Static) Identity() (Identity, error) {
	id := Identity(s)
	return id, id.Validate()
}

// Store is a file-backed identity provider: one generated user id plus a
// user→host map, persisted as a small JSON document.
type Store struct {
	path string

	mu    sync.Mutex
	state storeState
}

type storeState struct {
	UserID string            `json:"user_id"`
	Hosts  map[string]string `json:"hosts"`
}

// Open loads the store at path, creating it with a fresh user id when it
// does not exist yet.
func Open(path string) (*Store, error) {
	store := &Store{path: path, state: storeState{Hosts: map[string]string{}}}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &store.state); err != nil {
			return nil, fmt.Errorf("failed to parse identity store %s: %w", path, err)
		}
		if store.state.Hosts == nil {
			store.state.Hosts = map[string]string{}
		}
	case os.IsNotExist(err):
		store.state.UserID = uuid.NewString()
		if err := store.persistLocked(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("failed to read identity store %s: %w", path, err)
	}

	return store, nil
}

func (s *Store) Identity() (Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := Identity{UserID: s.state.UserID, Host: s.hostForLocked(s.state.UserID)}
	return id, id.Validate()
}

// SetHost pins a backend host for the given user and persists the mapping.
func (s *Store) SetHost(userID, host string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Hosts[userID] = host
	return s.persistLocked()
}

func (s *Store) hostForLocked(userID string) string {
	if host, ok := s.state.Hosts[userID]; ok && host != "" {
		return host
	}
	return DefaultHost
}

func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode identity store: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write identity store %s: %w", s.path, err)
	}
	return nil
}
