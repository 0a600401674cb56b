package convo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/opsconductor/pipeline-core/internal/pipeline/types"
)

// RedisStore backs the Conversation Store with Redis lists, keeping the
// same sliding-window semantics as MemoryStore but shared across every
// replica of the pipeline process.
type RedisStore struct {
	client      *redis.Client
	maxMessages int
	ttl         time.Duration
	logger      *zap.Logger
}

// NewRedisStore wraps an existing client. ttl bounds how long an idle
// session's history survives; a new Add call refreshes it.
func NewRedisStore(client *redis.Client, maxMessages int, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if maxMessages <= 0 {
		maxMessages = 20
	}
	return &RedisStore{client: client, maxMessages: maxMessages, ttl: ttl, logger: logger}
}

func (s *RedisStore) key(sessionID string) string {
	return fmt.Sprintf("pipeline-core:convo:%s", sessionID)
}

func (s *RedisStore) Add(ctx context.Context, sessionID, role, content string) error {
	if err := validateRole(role); err != nil {
		return err
	}

	msg := types.ConversationMessage{Role: role, Content: content, Timestamp: time.Now()}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to serialize conversation message: %w", err)
	}

	key := s.key(sessionID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -int64(s.maxMessages), -1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		s.logger.Warn("conversation store append failed", zap.String("session_id", sessionID), zap.Error(err))
		return fmt.Errorf("failed to append conversation message: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, sessionID string, max int) ([]types.ConversationMessage, error) {
	limit := clampMax(max, s.maxMessages)
	raw, err := s.client.LRange(ctx, s.key(sessionID), -int64(limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation history: %w", err)
	}

	messages := make([]types.ConversationMessage, 0, len(raw))
	for _, data := range raw {
		var m types.ConversationMessage
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			s.logger.Warn("skipping malformed conversation entry", zap.String("session_id", sessionID), zap.Error(err))
			continue
		}
		messages = append(messages, m)
	}
	return messages, nil
}

func (s *RedisStore) Formatted(ctx context.Context, sessionID string, max int) (string, error) {
	messages, err := s.Get(ctx, sessionID, max)
	if err != nil {
		return "", err
	}
	return formatMessages(messages), nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear conversation history: %w", err)
	}
	return nil
}
