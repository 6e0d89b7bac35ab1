package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

var ErrCacheMiss = errors.New("cache miss")

// windowTTL bounds how long a conversation's trailing window lives
// without activity. The store stays authoritative.
const windowTTL = 24 * time.Hour

// HistoryCache keeps the trailing message window of active conversations
// in redis so each chat turn doesn't hit the database for its prompt
// context.
type HistoryCache struct {
	client *redis.Client
	keep   int
}

func NewHistoryCache(client *redis.Client, keep int) (*HistoryCache, error) {
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &HistoryCache{client: client, keep: keep}, nil
}

func (c *HistoryCache) Append(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	key := c.windowKey(msg.UserID, msg.ConversationID)
	pipe := c.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-c.keep), -1)
	pipe.Expire(ctx, key, windowTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// Recent returns up to limit messages, oldest to newest. ErrCacheMiss
// means the window is cold and the caller should fall back to the store.
func (c *HistoryCache) Recent(ctx context.Context, userID, conversationID uint, limit int) ([]Message, error) {
	key := c.windowKey(userID, conversationID)
	rows, err := c.client.LRange(ctx, key, int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read window: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrCacheMiss
	}
	msgs := make([]Message, 0, len(rows))
	for _, row := range rows {
		var msg Message
		if err := json.Unmarshal([]byte(row), &msg); err != nil {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Invalidate drops a conversation's window, called when the
// conversation is deleted so a reused id cannot inherit stale context.
func (c *HistoryCache) Invalidate(ctx context.Context, userID, conversationID uint) error {
	return c.client.Del(ctx, c.windowKey(userID, conversationID)).Err()
}

// Keys carry the owner's id: windows are per-user state, and a
// conversation id alone is guessable.
func (c *HistoryCache) windowKey(userID, conversationID uint) string {
	return fmt.Sprintf("conversation_window:%d:%d", userID, conversationID)
}

func (c *HistoryCache) Close() error { return c.client.Close() }
