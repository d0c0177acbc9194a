package availability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Store persists definite availability answers. Absence means Unknown.
type Store interface {
	Get(ctx context.Context, key Key) (State, error)
	Set(ctx context.Context, key Key, state State) error
	Delete(ctx context.Context, key Key) error
	DeleteDoctor(ctx context.Context, doctorID int64) error
}

// MemoryStore keeps entries for the lifetime of the process.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[Key]State
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[Key]State)}
}

func (s *MemoryStore) Get(_ context.Context, key Key) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[key], nil
}

func (s *MemoryStore) Set(_ context.Context, key Key, state State) error {
	if state == Unknown {
		return s.Delete(context.Background(), key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = state
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *MemoryStore) DeleteDoctor(_ context.Context, doctorID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.entries {
		if key.DoctorID == doctorID {
			delete(s.entries, key)
		}
	}
	return nil
}

// Snapshot copies every definite entry, keyed by "<doctorId>-<date>".
func (s *MemoryStore) Snapshot() map[string]State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]State, len(s.entries))
	for key, state := range s.entries {
		out[key.String()] = state
	}
	return out
}

const defaultRedisPrefix = "heydoc:availability:"

// RedisStore keeps entries in Redis without expiry, so a restarted process
// resumes with the session's definite answers.
type RedisStore struct {
	redis  *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store. An empty prefix uses the default.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if client == nil {
		panic("availability: redis client cannot be nil")
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{redis: client, prefix: prefix}
}

func (s *RedisStore) key(key Key) string {
	return s.prefix + key.String()
}

func (s *RedisStore) Get(ctx context.Context, key Key) (State, error) {
	raw, err := s.redis.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Unknown, nil
		}
		return Unknown, fmt.Errorf("availability: redis get: %w", err)
	}
	return ParseState(raw), nil
}

func (s *RedisStore) Set(ctx context.Context, key Key, state State) error {
	if state == Unknown {
		return s.Delete(ctx, key)
	}
	if err := s.redis.Set(ctx, s.key(key), state.String(), 0).Err(); err != nil {
		return fmt.Errorf("availability: redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key Key) error {
	if err := s.redis.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("availability: redis delete: %w", err)
	}
	return nil
}

func (s *RedisStore) DeleteDoctor(ctx context.Context, doctorID int64) error {
	pattern := fmt.Sprintf("%s%d-*", s.prefix, doctorID)
	iter := s.redis.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("availability: redis scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("availability: redis delete: %w", err)
	}
	return nil
}
