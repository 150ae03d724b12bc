package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// UnreadCache keeps per-user unread inbox counts in Redis. A nil cache, or
// one without a client, never hits and ignores writes.
type UnreadCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewUnreadCache(client *redis.Client, ttl time.Duration) *UnreadCache {
	return &UnreadCache{client: client, ttl: ttl}
}

func unreadKey(userID uint) string {
	return fmt.Sprintf("privmsg:unread:%d", userID)
}

func (uc *UnreadCache) Get(ctx context.Context, userID uint) (int64, bool) {
	if uc == nil || uc.client == nil {
		return 0, false
	}
	n, err := uc.client.Get(ctx, unreadKey(userID)).Int64()
	if err != nil {
		return 0, false
	}
	return n, true
}

func (uc *UnreadCache) Set(ctx context.Context, userID uint, count int64) {
	if uc == nil || uc.client == nil {
		return
	}
	_ = uc.client.Set(ctx, unreadKey(userID), count, uc.ttl).Err()
}

// Invalidate drops the cached counts of every given user.
func (uc *UnreadCache) Invalidate(ctx context.Context, userIDs ...uint) {
	if uc == nil || uc.client == nil || len(userIDs) == 0 {
		return
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = unreadKey(id)
	}
	_ = uc.client.Del(ctx, keys...).Err()
}
