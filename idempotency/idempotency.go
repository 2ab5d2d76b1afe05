// Package idempotency remembers which payment submissions the backend has
// already seen, so a retried request with the same key never charges twice.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront-checkout/models"
)

// ErrInFlight is returned by Reserve while another request holds the key.
var ErrInFlight = errors.New("idempotency key is already being processed")

// DefaultTTL is how long keys are remembered.
const DefaultTTL = 24 * time.Hour

const pending = "pending"

// Store tracks idempotency keys through reserve, then complete or release.
type Store interface {
	// Reserve claims key. When the key already completed, the stored result
	// is returned and the caller must not process the request again.
	Reserve(ctx context.Context, key string) (*models.PaymentResult, error)
	// Complete stores the successful result of key.
	Complete(ctx context.Context, key string, result *models.PaymentResult) error
	// Release forgets key so that a later attempt may retry it.
	Release(ctx context.Context, key string) error
}

// RedisStore keeps keys in redis with a TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store on client. A zero ttl means DefaultTTL.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, prefix: "checkout:idempotency:", ttl: ttl}
}

func (s *RedisStore) Reserve(ctx context.Context, key string) (*models.PaymentResult, error) {
	ok, err := s.client.SetNX(ctx, s.prefix+key, pending, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if ok {
		return nil, nil
	}

	val, err := s.client.Get(ctx, s.prefix+key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// Released between SetNX and Get; try once more.
		return s.Reserve(ctx, key)
	case err != nil:
		return nil, fmt.Errorf("read idempotency key: %w", err)
	case val == pending:
		return nil, ErrInFlight
	}
	var res models.PaymentResult
	if err := json.Unmarshal([]byte(val), &res); err != nil {
		return nil, fmt.Errorf("decode idempotency result: %w", err)
	}
	return &res, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, result *models.PaymentResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

type entry struct {
	result  *models.PaymentResult
	expires time.Time
}

// MemoryStore is a process-local Store for development and tests.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
}

// NewMemoryStore creates an empty store. A zero ttl means DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]entry)}
}

func (s *MemoryStore) Reserve(_ context.Context, key string) (*models.PaymentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expires) {
		if e.result == nil {
			return nil, ErrInFlight
		}
		res := *e.result
		return &res, nil
	}
	s.entries[key] = entry{expires: now.Add(s.ttl)}
	return nil, nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, result *models.PaymentResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := *result
	s.entries[key] = entry{result: &res, expires: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
