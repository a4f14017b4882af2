package alerter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weatherd/weatherd/internal/evaluator"
)

// stateTTL expires a stale last-state record so an agent that was down for
// a week starts fresh.
const stateTTL = 7 * 24 * time.Hour

// StateStore keeps the last tick's state across restarts for edge mode.
// Load returns "" when nothing is stored.
type StateStore interface {
	Load(ctx context.Context) (evaluator.State, error)
	Save(ctx context.Context, state evaluator.State) error
	Close() error
}

// MemoryStateStore lives for the process only
type MemoryStateStore struct {
	mu    sync.Mutex
	state evaluator.State
}

// NewMemoryStateStore creates an empty in-process store
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

func (m *MemoryStateStore) Load(context.Context) (evaluator.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, nil
}

func (m *MemoryStateStore) Save(_ context.Context, state evaluator.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = state
	return nil
}

func (m *MemoryStateStore) Close() error { return nil }

// storedState is the JSON document kept in Redis
type storedState struct {
	State     evaluator.State `json:"state"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RedisStateStore keeps the last state under a single key
type RedisStateStore struct {
	redis *redis.Client
	key   string
}

// NewRedisStateStore connects and pings Redis
func NewRedisStateStore(ctx context.Context, addr, password string, db int, key string) (*RedisStateStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &RedisStateStore{redis: client, key: key}, nil
}

// Load retrieves the last state
func (s *RedisStateStore) Load(ctx context.Context) (evaluator.State, error) {
	data, err := s.redis.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get state from Redis: %w", err)
	}

	var st storedState
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return "", fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return st.State, nil
}

// Save stores the state with a TTL
func (s *RedisStateStore) Save(ctx context.Context, state evaluator.State) error {
	data, err := json.Marshal(storedState{State: state, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := s.redis.Set(ctx, s.key, data, stateTTL).Err(); err != nil {
		return fmt.Errorf("failed to set state in Redis: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (s *RedisStateStore) Close() error {
	return s.redis.Close()
}
