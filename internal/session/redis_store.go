package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "session:"

var (
	ErrInvalidSession = errors.New("session: missing id or user, or already expired")
	ErrSessionExists  = errors.New("session: id already in use")
)

// RedisStore keeps each session as a JSON value whose key expires with
// the session's sliding expiry.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func key(sessionID string) string {
	return keyPrefix + sessionID
}

// encode returns the stored value and the key TTL.
func encode(s Session) ([]byte, time.Duration, error) {
	ttl := time.Until(s.ExpiresAt)
	if s.SessionID == "" || s.UserID == "" || ttl <= 0 {
		return nil, 0, ErrInvalidSession
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, 0, fmt.Errorf("session: encode: %w", err)
	}
	return data, ttl, nil
}

// Create stores a new session and never replaces an existing key.
func (r *RedisStore) Create(ctx context.Context, s Session) error {
	data, ttl, err := encode(s)
	if err != nil {
		return err
	}
	created, err := r.client.SetNX(ctx, key(s.SessionID), data, ttl).Result()
	if err != nil {
		return err
	}
	if !created {
		return ErrSessionExists
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	val, err := r.client.Get(ctx, key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var s Session
	if err := json.Unmarshal(val, &s); err != nil {
		return nil, fmt.Errorf("session: decode %s: %w", sessionID, err)
	}
	return &s, nil
}

// Update rewrites a live session and resets its TTL. A session whose
// expiry has passed is deleted; a key that is already gone stays gone.
func (r *RedisStore) Update(ctx context.Context, s Session) error {
	if s.SessionID != "" && !time.Now().Before(s.ExpiresAt) {
		return r.Delete(ctx, s.SessionID)
	}
	data, ttl, err := encode(s)
	if err != nil {
		return err
	}
	return r.client.SetXX(ctx, key(s.SessionID), data, ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, sessionID string) error {
	return r.client.Del(ctx, key(sessionID)).Err()
}
