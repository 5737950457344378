package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	redisv9 "github.com/redis/go-redis/v9"

	"increm-coach/internal/model"
)

// HistoryCache keeps recent conversation history per user in a Redis hash
// (one field per requested limit). A short-lived dirty marker set on every
// append keeps readers off the cache while a write is settling.
type HistoryCache struct {
	client         *redisv9.Client
	historyTTL     time.Duration
	dirtyMarkerTTL time.Duration
}

func NewHistoryCache(client *redisv9.Client, historyTTL, dirtyMarkerTTL time.Duration) *HistoryCache {
	if historyTTL <= 0 {
		historyTTL = 60 * time.Second
	}
	if dirtyMarkerTTL <= 0 {
		dirtyMarkerTTL = 5 * time.Second
	}
	return &HistoryCache{
		client:         client,
		historyTTL:     historyTTL,
		dirtyMarkerTTL: dirtyMarkerTTL,
	}
}

// Get reports a miss when nothing is cached for the limit or the user is dirty.
func (c *HistoryCache) Get(ctx context.Context, userID string, limit int) ([]model.ConversationTurn, bool, error) {
	dirty, err := c.IsDirty(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if dirty {
		return nil, false, nil
	}

	raw, err := c.client.HGet(ctx, c.historyKey(userID), strconv.Itoa(limit)).Result()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get history failed: %w", err)
	}

	var turns []model.ConversationTurn
	if err := json.Unmarshal([]byte(raw), &turns); err != nil {
		return nil, false, fmt.Errorf("unmarshal cached history failed: %w", err)
	}
	return turns, true, nil
}

func (c *HistoryCache) Set(ctx context.Context, userID string, limit int, turns []model.ConversationTurn) error {
	if turns == nil {
		turns = []model.ConversationTurn{}
	}
	payload, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("marshal history cache failed: %w", err)
	}

	key := c.historyKey(userID)
	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, strconv.Itoa(limit), payload)
	pipe.Expire(ctx, key, c.historyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set history failed: %w", err)
	}
	return nil
}

// Invalidate marks the user dirty and drops every cached limit.
func (c *HistoryCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Set(ctx, c.dirtyKey(userID), "1", c.dirtyMarkerTTL).Err(); err != nil {
		return fmt.Errorf("redis set dirty marker failed: %w", err)
	}
	if err := c.client.Del(ctx, c.historyKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete history failed: %w", err)
	}
	return nil
}

func (c *HistoryCache) IsDirty(ctx context.Context, userID string) (bool, error) {
	exists, err := c.client.Exists(ctx, c.dirtyKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis check dirty marker failed: %w", err)
	}
	return exists > 0, nil
}

func (c *HistoryCache) historyKey(userID string) string {
	return "coach:history:" + userID
}

func (c *HistoryCache) dirtyKey(userID string) string {
	return "coach:history:dirty:" + userID
}
