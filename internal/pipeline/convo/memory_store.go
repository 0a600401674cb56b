package convo

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/opsconductor/pipeline-core/internal/pipeline/types"
)

// MemoryStore is the default Conversation Store backend: an in-process
// ring buffer per session, guarded by a mutex. It is the right choice for
// a single-process deployment; RedisStore exists for horizontally scaled
// deployments that need every replica to see the same history.
type MemoryStore struct {
	mu          sync.Mutex
	maxMessages int
	sessions    map[string]*list.List
}

// NewMemoryStore builds a store with a fixed per-session capacity.
func NewMemoryStore(maxMessages int) *MemoryStore {
	if maxMessages <= 0 {
		maxMessages = 20
	}
	return &MemoryStore{
		maxMessages: maxMessages,
		sessions:    make(map[string]*list.List),
	}
}

func (s *MemoryStore) Add(ctx context.Context, sessionID, role, content string) error {
	if err := validateRole(role); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.sessions[sessionID]
	if !ok {
		buf = list.New()
		s.sessions[sessionID] = buf
	}

	buf.PushBack(types.ConversationMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	for buf.Len() > s.maxMessages {
		buf.Remove(buf.Front())
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, sessionID string, max int) ([]types.ConversationMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}

	limit := clampMax(max, s.maxMessages)
	all := make([]types.ConversationMessage, 0, buf.Len())
	for e := buf.Front(); e != nil; e = e.Next() {
		all = append(all, e.Value.(types.ConversationMessage))
	}
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (s *MemoryStore) Formatted(ctx context.Context, sessionID string, max int) (string, error) {
	messages, err := s.Get(ctx, sessionID, max)
	if err != nil {
		return "", err
	}
	return formatMessages(messages), nil
}

func (s *MemoryStore) Clear(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
