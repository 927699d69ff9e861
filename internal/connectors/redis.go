package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	connKeyPrefix = "connector:token:"

	// establishedTTL bounds how long an established connection survives
	// without a disconnect; pending connections expire with the token.
	establishedTTL = 24 * time.Hour
)

// RedisStore is a TokenStore backed by Redis, for deployments where
// connector state must survive a process restart.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, token string, conn Connection) error {
	data, err := json.Marshal(conn)
	if err != nil {
		return fmt.Errorf("encode connection: %w", err)
	}

	ttl := time.Until(conn.ExpiresAt)
	if conn.Connected {
		ttl = establishedTTL
	}
	if ttl <= 0 {
		return nil
	}

	if err := s.client.Set(ctx, connKeyPrefix+token, data, ttl).Err(); err != nil {
		return fmt.Errorf("store connection: %w", err)
	}

	return nil
}

func (s *RedisStore) Get(ctx context.Context, token string) (Connection, bool, error) {
	data, err := s.client.Get(ctx, connKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return Connection{}, false, nil
	}
	if err != nil {
		return Connection{}, false, fmt.Errorf("load connection: %w", err)
	}

	var conn Connection
	if err := json.Unmarshal(data, &conn); err != nil {
		return Connection{}, false, fmt.Errorf("decode connection: %w", err)
	}

	if !conn.Connected && time.Now().After(conn.ExpiresAt) {
		return Connection{}, false, nil
	}

	return conn, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, connKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}

	return nil
}
