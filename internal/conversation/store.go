package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Store хранит не более одного активного состояния на пользователя.
type Store interface {
	Get(ctx context.Context, userID int64) (State, bool, error)
	Put(ctx context.Context, userID int64, st State) error
	Delete(ctx context.Context, userID int64) error
}

// MemoryStore хранит состояния в памяти процесса.
type MemoryStore struct {
	mu     sync.Mutex
	states map[int64]State
}

// NewMemoryStore создаёт пустое хранилище состояний.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[int64]State)}
}

func (s *MemoryStore) Get(ctx context.Context, userID int64) (State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[userID]
	if !ok {
		return State{}, false, nil
	}
	return st.clone(), true, nil
}

func (s *MemoryStore) Put(ctx context.Context, userID int64, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[userID] = st.clone()
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, userID)
	return nil
}

// RedisStore хранит состояния в Redis в виде JSON, чтобы формы переживали перезапуск.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore создаёт хранилище поверх клиента Redis.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "conversation:"}
}

func (s *RedisStore) key(userID int64) string {
	return s.prefix + strconv.FormatInt(userID, 10)
}

func (s *RedisStore) Get(ctx context.Context, userID int64) (State, bool, error) {
	const op = "conversation.RedisStore.Get"

	val, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, fmt.Errorf("%s: %w", op, err)
	}

	var st State
	if err := json.Unmarshal(val, &st); err != nil {
		return State{}, false, fmt.Errorf("%s: %w", op, err)
	}
	return st, true, nil
}

func (s *RedisStore) Put(ctx context.Context, userID int64, st State) error {
	const op = "conversation.RedisStore.Put"

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.client.Set(ctx, s.key(userID), data, 0).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("conversation.RedisStore.Delete: %w", err)
	}
	return nil
}
