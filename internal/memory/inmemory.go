package memory

import (
	"context"
	"sync"
	"time"
)

type conversation struct {
	messages  []Message
	updatedAt time.Time
}

// InMemoryStore keeps sessions in process memory and drops idle ones after ttl.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*conversation
	maxMessages   int
	ttl           time.Duration
	now           func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewInMemoryStore creates a store and starts its cleanup loop. Call Close to stop it.
func NewInMemoryStore(maxMessages int, ttl time.Duration) *InMemoryStore {
	if maxMessages <= 0 {
		maxMessages = 20
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	s := &InMemoryStore{
		conversations: make(map[string]*conversation),
		maxMessages:   maxMessages,
		ttl:           ttl,
		now:           time.Now,
		stop:          make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

func (s *InMemoryStore) AddMessage(_ context.Context, sessionID string, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	conv, ok := s.conversations[sessionID]
	if !ok || now.Sub(conv.updatedAt) > s.ttl {
		// An expired session starts over even if the sweep has not removed it yet.
		conv = &conversation{}
		s.conversations[sessionID] = conv
	}
	conv.messages = append(conv.messages, msg)
	conv.updatedAt = now

	// Keep only the most recent messages.
	if len(conv.messages) > s.maxMessages {
		conv.messages = conv.messages[len(conv.messages)-s.maxMessages:]
	}
	return nil
}

func (s *InMemoryStore) GetRecentHistory(_ context.Context, sessionID string, n int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[sessionID]
	if !ok || s.now().Sub(conv.updatedAt) > s.ttl {
		return nil, nil
	}
	msgs := conv.messages
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *InMemoryStore) ClearSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, sessionID)
	return nil
}

// Close stops the cleanup loop.
func (s *InMemoryStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *InMemoryStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stop:
			return
		}
	}
}

func (s *InMemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, conv := range s.conversations {
		if now.Sub(conv.updatedAt) > s.ttl {
			delete(s.conversations, id)
		}
	}
}

var _ Store = (*InMemoryStore)(nil)
