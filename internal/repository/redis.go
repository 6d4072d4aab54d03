package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/atinyakov/LegalLens/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultSessionRetention is how long an untouched session record is kept.
const DefaultSessionRetention = 30 * 24 * time.Hour

// RedisSessionStore keeps session records in Redis with a sliding TTL.
type RedisSessionStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
}

// NewRedisSessionStore connects to redisURL and verifies the connection.
func NewRedisSessionStore(redisURL string, retention time.Duration) (*RedisSessionStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisSessionStoreWithClient(client, retention), nil
}

// NewRedisSessionStoreWithClient creates a store from an existing client.
func NewRedisSessionStoreWithClient(client *redis.Client, retention time.Duration) *RedisSessionStore {
	if retention <= 0 {
		retention = DefaultSessionRetention
	}
	return &RedisSessionStore{client: client, prefix: "legallens:session:", retention: retention}
}

func (s *RedisSessionStore) key(sid string) string {
	return s.prefix + sid
}

// Load returns the record of sid, or ErrSessionNotFound.
func (s *RedisSessionStore) Load(ctx context.Context, sid string) (*models.SessionRecord, error) {
	data, err := s.client.Get(ctx, s.key(sid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var rec models.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &rec, nil
}

// Save stores rec under sid and restarts its retention period.
func (s *RedisSessionStore) Save(ctx context.Context, sid string, rec *models.SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sid), data, s.retention).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Delete removes the record of sid.
func (s *RedisSessionStore) Delete(ctx context.Context, sid string) error {
	n, err := s.client.Del(ctx, s.key(sid)).Result()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Ping checks if Redis is reachable.
func (s *RedisSessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}
