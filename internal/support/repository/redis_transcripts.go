package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/sand/whitetriangle/backend/internal/support/entities"
)

const transcriptKeyPrefix = "whitetriangle:support:"

// RedisTranscripts stores each conversation as a Redis list of JSON messages.
// The TTL is refreshed on every append.
type RedisTranscripts struct {
	logger *slog.Logger
	client *redis.Client
	ttl    time.Duration
}

func NewRedisTranscripts(logger *slog.Logger, client *redis.Client, ttl time.Duration) *RedisTranscripts {
	return &RedisTranscripts{
		logger: logger,
		client: client,
		ttl:    ttl,
	}
}

func (r *RedisTranscripts) Append(ctx context.Context, conversationID string, messages ...entities.Message) error {
	if len(messages) == 0 {
		return nil
	}

	values := make([]interface{}, 0, len(messages))
	for _, m := range messages {
		raw, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
		values = append(values, raw)
	}

	key := transcriptKey(conversationID)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append transcript: %w", err)
	}
	return nil
}

func (r *RedisTranscripts) Messages(ctx context.Context, conversationID string) ([]entities.Message, error) {
	raw, err := r.client.LRange(ctx, transcriptKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	messages := make([]entities.Message, 0, len(raw))
	for _, item := range raw {
		var m entities.Message
		if err = json.Unmarshal([]byte(item), &m); err != nil {
			r.logger.WarnContext(ctx, "Skipping corrupt transcript entry", "conversation_id", conversationID, "error", err)
			continue
		}
		messages = append(messages, m)
	}
	return messages, nil
}

func transcriptKey(conversationID string) string {
	return transcriptKeyPrefix + conversationID
}
