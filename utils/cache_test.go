package utils

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUnreadCacheWithoutRedis(t *testing.T) {
	ctx := context.Background()

	for _, uc := range []*UnreadCache{nil, NewUnreadCache(nil, time.Minute)} {
		uc.Set(ctx, 1, 5)
		_, ok := uc.Get(ctx, 1)
		assert.False(t, ok)
		uc.Invalidate(ctx, 1, 2)
	}
}

func TestUnreadKey(t *testing.T) {
	assert.Equal(t, "privmsg:unread:12", unreadKey(12))
	assert.Equal(t, "rl:12:compose", GenerateRateLimitKey(12, "compose"))
}
