package redis

import (
	"context"
	"encoding/json"
	"time"

	"stellium-ask/internal/domain/model"
)

// ConversationCache keeps recently read histories in front of Postgres.
// Entries are keyed by subject, the same way the one-shot history load is.
type ConversationCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewConversationCache(client RedisClient, ttl time.Duration) *ConversationCache {
	return &ConversationCache{client: client, ttl: ttl}
}

func historyKey(ct model.ContentType, contentID string) string {
	return "ask_history:" + string(ct) + ":" + contentID
}

func (c *ConversationCache) StoreHistory(ctx context.Context, ct model.ContentType, contentID string, msgs []model.Message) error {
	data, err := json.Marshal(msgs)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, historyKey(ct, contentID), data, c.ttl)
}

func (c *ConversationCache) GetHistory(ctx context.Context, ct model.ContentType, contentID string) ([]model.Message, bool, error) {
	data, err := c.client.Get(ctx, historyKey(ct, contentID))
	if err != nil {
		if IsNil(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var msgs []model.Message
	if err := json.Unmarshal([]byte(data), &msgs); err != nil {
		return nil, false, err
	}
	return msgs, true, nil
}

// Invalidate drops the cached history after new turns land.
func (c *ConversationCache) Invalidate(ctx context.Context, ct model.ContentType, contentID string) error {
	return c.client.Del(ctx, historyKey(ct, contentID))
}
