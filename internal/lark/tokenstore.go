package lark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/runixer/rara/internal/config"
)

// TokenStore keeps the current tenant token between requests.
// Load returns ok=false when nothing usable is stored.
type TokenStore interface {
	Load(ctx context.Context) (AccessToken, bool, error)
	Save(ctx context.Context, token AccessToken, ttl time.Duration) error
}

// MemoryTokenStore holds the token in process memory.
type MemoryTokenStore struct {
	mu    sync.RWMutex
	token AccessToken
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Load(_ context.Context) (AccessToken, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token.Value == "" {
		return AccessToken{}, false, nil
	}
	return s.token, true, nil
}

func (s *MemoryTokenStore) Save(_ context.Context, token AccessToken, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

// RedisTokenStore shares the tenant token between replicas of the service so
// they do not each request their own. The key expires together with the token.
type RedisTokenStore struct {
	rdb *redis.Client
	key string
}

// NewRedisTokenStore creates a store for appID's token. It does not contact
// Redis; use Ping to check connectivity.
func NewRedisTokenStore(cfg config.TokenCacheConfig, appID string) *RedisTokenStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return &RedisTokenStore{
		rdb: rdb,
		key: "rara:lark:tenant_access_token:" + appID,
	}
}

func (s *RedisTokenStore) Load(ctx context.Context) (AccessToken, bool, error) {
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return AccessToken{}, false, nil
	}
	if err != nil {
		return AccessToken{}, false, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	var token AccessToken
	if err := json.Unmarshal(data, &token); err != nil {
		return AccessToken{}, false, fmt.Errorf("decode cached token: %w", err)
	}
	return token, token.Value != "", nil
}

func (s *RedisTokenStore) Save(ctx context.Context, token AccessToken, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, s.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (s *RedisTokenStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisTokenStore) Close() error {
	return s.rdb.Close()
}
