package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "faq:session:"

// RedisClient is the subset of the Redis API the store needs.
type RedisClient interface {
	RPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	TxPipeline() redis.Pipeliner
}

// RedisStore keeps each session as a capped Redis list that expires after ttl of inactivity.
type RedisStore struct {
	client      RedisClient
	maxMessages int
	ttl         time.Duration
	now         func() time.Time
}

// NewRedisStore creates a Redis-backed history store.
func NewRedisStore(client RedisClient, maxMessages int, ttl time.Duration) *RedisStore {
	if maxMessages <= 0 {
		maxMessages = 20
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisStore{
		client:      client,
		maxMessages: maxMessages,
		ttl:         ttl,
		now:         time.Now,
	}
}

func sessionKey(sessionID string) string {
	return keyPrefix + sessionID
}

func (s *RedisStore) AddMessage(ctx context.Context, sessionID string, msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	key := sessionKey(sessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-s.maxMessages), -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append session message: %w", err)
	}
	return nil
}

func (s *RedisStore) GetRecentHistory(ctx context.Context, sessionID string, n int) ([]Message, error) {
	start := int64(0)
	if n > 0 {
		start = int64(-n)
	}
	raw, err := s.client.LRange(ctx, sessionKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session history: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	msgs := make([]Message, 0, len(raw))
	for _, item := range raw {
		var m Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, fmt.Errorf("failed to decode session message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (s *RedisStore) ClearSession(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
