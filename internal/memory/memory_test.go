package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T, maxMessages int, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, maxMessages, ttl), mr
}

// exerciseStore runs the behavior shared by every Store implementation.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("Should return nothing for an unknown session", func(t *testing.T) {
		got, err := s.GetRecentHistory(ctx, "unknown", 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Should keep the most recent messages in order", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			require.NoError(t, s.AddMessage(ctx, "s1", Message{Role: RoleUser, Content: fmt.Sprintf("q%d", i)}))
		}
		got, err := s.GetRecentHistory(ctx, "s1", 10)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "q2", got[0].Content)
		assert.Equal(t, "q4", got[2].Content)
		assert.False(t, got[0].Timestamp.IsZero())

		got, err = s.GetRecentHistory(ctx, "s1", 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"q3", "q4"}, []string{got[0].Content, got[1].Content})
	})

	t.Run("Should clear a session", func(t *testing.T) {
		require.NoError(t, s.AddMessage(ctx, "s2", Message{Role: RoleUser, Content: "返品"}))
		require.NoError(t, s.ClearSession(ctx, "s2"))
		got, err := s.GetRecentHistory(ctx, "s2", 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestInMemoryStore(t *testing.T) {
	s := NewInMemoryStore(3, time.Hour)
	t.Cleanup(s.Close)
	exerciseStore(t, s)

	t.Run("Should expire idle sessions", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, s.AddMessage(ctx, "idle", Message{Role: RoleUser, Content: "送料"}))

		s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		got, err := s.GetRecentHistory(ctx, "idle", 10)
		require.NoError(t, err)
		assert.Empty(t, got)

		s.cleanup()
		s.mu.RLock()
		_, ok := s.conversations["idle"]
		s.mu.RUnlock()
		assert.False(t, ok)
	})

	t.Run("Should start a fresh conversation after expiry", func(t *testing.T) {
		ctx := context.Background()
		fresh := NewInMemoryStore(10, time.Hour)
		t.Cleanup(fresh.Close)
		base := time.Now()
		fresh.now = func() time.Time { return base }
		require.NoError(t, fresh.AddMessage(ctx, "s", Message{Role: RoleUser, Content: "old"}))

		fresh.now = func() time.Time { return base.Add(2 * time.Hour) }
		require.NoError(t, fresh.AddMessage(ctx, "s", Message{Role: RoleUser, Content: "new"}))

		got, err := fresh.GetRecentHistory(ctx, "s", 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "new", got[0].Content)
		assert.Equal(t, 1, UserTurns(got))
	})
}

func TestRedisStore(t *testing.T) {
	s, mr := newRedisStore(t, 3, 30*time.Minute)
	exerciseStore(t, s)

	t.Run("Should refresh the session ttl on write", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, s.AddMessage(ctx, "ttl", Message{Role: RoleAssistant, Content: "はい"}))
		assert.Equal(t, 30*time.Minute, mr.TTL(sessionKey("ttl")))

		mr.FastForward(31 * time.Minute)
		got, err := s.GetRecentHistory(ctx, "ttl", 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Should report decode failures", func(t *testing.T) {
		_, err := mr.RPush(sessionKey("bad"), "not-json")
		require.NoError(t, err)
		_, err = s.GetRecentHistory(context.Background(), "bad", 10)
		assert.ErrorContains(t, err, "failed to decode session message")
	})
}

func TestUserTurnsAndFormat(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: "返品できますか"},
		{Role: RoleAssistant, Content: "7日以内なら可能です"},
		{Role: RoleUser, Content: "送料は？"},
	}
	assert.Equal(t, 2, UserTurns(history))
	assert.Equal(t, 0, UserTurns(nil))
	assert.Equal(t, "User: 返品できますか\nAssistant: 7日以内なら可能です\nUser: 送料は？\n", FormatForPrompt(history))
	assert.Equal(t, "", FormatForPrompt(nil))
}
