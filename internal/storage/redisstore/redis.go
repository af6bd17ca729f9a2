// Package redisstore keeps browser sessions in Redis hashes.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"debt-tracker/internal/models"
	"debt-tracker/internal/session"
)

const defaultTimeout = 5 * time.Second

var _ session.Store = (*Store)(nil)

// Config captures the settings for establishing a Redis connection.
type Config struct {
	Addr    string
	DB      int
	Timeout time.Duration
	// TTL is how long an untouched session survives. Defaults to the
	// browser cookie lifetime.
	TTL time.Duration
}

// Store implements session.Store. Each browser id maps to the hash
// session:<id> with fields token, username and flash.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// Connect initialises a Redis client and validates connectivity with a ping.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return New(client, cfg.TTL), nil
}

// New wraps an existing client.
func New(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = session.CookieLifetime
	}
	return &Store{client: client, ttl: ttl}
}

// Get returns the session of a browser id, or a zero Session.
func (s *Store) Get(ctx context.Context, id string) (models.Session, error) {
	fields, err := s.client.HGetAll(ctx, key(id)).Result()
	if err != nil {
		return models.Session{}, fmt.Errorf("get session: %w", err)
	}
	sess := models.Session{Token: fields["token"], Username: fields["username"]}
	return sess.Normalize(), nil
}

// Set stores token and username and refreshes the TTL.
func (s *Store) Set(ctx context.Context, id, token, username string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key(id), "token", token, "username", username)
		pipe.Expire(ctx, key(id), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

// Clear deletes the session of a browser id.
func (s *Store) Clear(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// SetFlash stores the pending flash in the session hash. It expires with the
// session.
func (s *Store) SetFlash(ctx context.Context, id string, f models.Flash) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode flash: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key(id), "flash", data)
		pipe.Expire(ctx, key(id), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set flash: %w", err)
	}
	return nil
}

// TakeFlash reads and deletes the flash field in one transaction.
func (s *Store) TakeFlash(ctx context.Context, id string) (models.Flash, error) {
	var get *redis.StringCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.HGet(ctx, key(id), "flash")
		pipe.HDel(ctx, key(id), "flash")
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return models.Flash{}, nil
	}
	if err != nil {
		return models.Flash{}, fmt.Errorf("take flash: %w", err)
	}
	if get.Val() == "" {
		return models.Flash{}, nil
	}

	var f models.Flash
	if err := json.Unmarshal([]byte(get.Val()), &f); err != nil {
		return models.Flash{}, fmt.Errorf("decode flash: %w", err)
	}
	return f, nil
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func key(id string) string {
	return "session:" + id
}
