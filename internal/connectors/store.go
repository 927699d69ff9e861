package connectors

import (
	"context"
	"sync"
	"time"
)

// Connection is the state of one pending or established external-service
// link, keyed by an opaque token.
type Connection struct {
	Handle     string    `json:"handle"`
	Connected  bool      `json:"connected"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	LastSyncAt time.Time `json:"last_sync_at,omitempty"`
}

// TokenStore holds connection state keyed by opaque tokens. A pending
// connection disappears once its expiry passes.
type TokenStore interface {
	Put(ctx context.Context, token string, conn Connection) error
	// Get reports ok=false for unknown or expired tokens.
	Get(ctx context.Context, token string) (Connection, bool, error)
	Delete(ctx context.Context, token string) error
}

// MemoryStore is the single-process TokenStore. Expiry is checked on
// read; established connections do not expire.
type MemoryStore struct {
	mu    sync.RWMutex
	conns map[string]Connection
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conns: make(map[string]Connection),
	}
}

func (s *MemoryStore) Put(_ context.Context, token string, conn Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conns[token] = conn
	return nil
}

func (s *MemoryStore) Get(_ context.Context, token string) (Connection, bool, error) {
	s.mu.RLock()
	conn, ok := s.conns[token]
	s.mu.RUnlock()

	if !ok {
		return Connection{}, false, nil
	}

	if !conn.Connected && time.Now().After(conn.ExpiresAt) {
		s.mu.Lock()
		delete(s.conns, token)
		s.mu.Unlock()
		return Connection{}, false, nil
	}

	return conn, true, nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.conns, token)
	return nil
}
