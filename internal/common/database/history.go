package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"tutor-chat/internal/common/errors"
	"tutor-chat/internal/models"
)

// RedisHistoryStore keeps each session's turns in a Redis list, newest last.
// The list is capped at maxTurns and expires ttl after the last write.
type RedisHistoryStore struct {
	client    redis.Cmdable
	keyPrefix string
	ttl       time.Duration
	maxTurns  int
}

func NewRedisHistoryStore(client redis.Cmdable, keyPrefix string, ttl time.Duration, maxTurns int) *RedisHistoryStore {
	return &RedisHistoryStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		maxTurns:  maxTurns,
	}
}

func (s *RedisHistoryStore) key(sessionID string) string {
	return s.keyPrefix + sessionID
}

func (s *RedisHistoryStore) Append(ctx context.Context, sessionID string, turns ...models.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(turns))
	for _, t := range turns {
		raw, err := json.Marshal(t)
		if err != nil {
			return errors.NewHistoryStoreFailedError("append", fmt.Errorf("failed to marshal turn: %w", err))
		}
		values = append(values, raw)
	}

	key := s.key(sessionID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		if s.maxTurns > 0 {
			pipe.LTrim(ctx, key, int64(-s.maxTurns), -1)
		}
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return errors.NewHistoryStoreFailedError("append", err)
	}
	return nil
}

func (s *RedisHistoryStore) Load(ctx context.Context, sessionID string) ([]models.Turn, error) {
	raw, err := s.client.LRange(ctx, s.key(sessionID), 0, -1).Result()
	if err != nil {
		return nil, errors.NewHistoryStoreFailedError("load", err)
	}

	turns := make([]models.Turn, 0, len(raw))
	for _, item := range raw {
		var t models.Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			// A corrupt entry should not hide the rest of the conversation.
			continue
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (s *RedisHistoryStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return errors.NewHistoryStoreFailedError("clear", err)
	}
	return nil
}

// MemoryHistoryStore is an in-process HistoryStore for single-instance
// deployments and tests.
type MemoryHistoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]models.Turn
	maxTurns int
}

func NewMemoryHistoryStore(maxTurns int) *MemoryHistoryStore {
	return &MemoryHistoryStore{
		sessions: make(map[string][]models.Turn),
		maxTurns: maxTurns,
	}
}

func (s *MemoryHistoryStore) Append(_ context.Context, sessionID string, turns ...models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := append(s.sessions[sessionID], turns...)
	if s.maxTurns > 0 && len(all) > s.maxTurns {
		all = all[len(all)-s.maxTurns:]
	}
	s.sessions[sessionID] = all
	return nil
}

func (s *MemoryHistoryStore) Load(_ context.Context, sessionID string) ([]models.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.sessions[sessionID]
	out := make([]models.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (s *MemoryHistoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

var (
	_ models.HistoryStore = (*RedisHistoryStore)(nil)
	_ models.HistoryStore = (*MemoryHistoryStore)(nil)
)
