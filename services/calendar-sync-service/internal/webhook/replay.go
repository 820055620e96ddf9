package webhook

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CoraReneeOfficial/pawfection-testing-sub000/libs/httpx"
)

// ReplayGuard accepts each channel's message numbers only while they
// increase. Release drops a number that is still the latest accepted, so a
// redelivery after a failed attempt is processed.
type ReplayGuard interface {
	Accept(ctx context.Context, key string, messageNumber int64) (bool, error)
	Release(ctx context.Context, key string, messageNumber int64) error
}

// RedisReplayGuard keeps the highest number seen per channel in Redis so every
// replica agrees.
type RedisReplayGuard struct {
	rdb    redis.Scripter
	prefix string
	ttl    time.Duration
}

var acceptIfNewerScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current and tonumber(current) >= tonumber(ARGV[1]) then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

var releaseIfLatestScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current and tonumber(current) == tonumber(ARGV[1]) then
  redis.call("DEL", KEYS[1])
  return 1
end
return 0
`)

// NewRedisReplayGuard keeps state for ttl after the last message; channels
// live at most a few weeks.
func NewRedisReplayGuard(rdb redis.Scripter, prefix string, ttl time.Duration) *RedisReplayGuard {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "gcal:msgnum"
	}
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &RedisReplayGuard{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (g *RedisReplayGuard) Accept(ctx context.Context, key string, messageNumber int64) (bool, error) {
	res, err := acceptIfNewerScript.Run(ctx, g.rdb, []string{g.prefix + ":" + key}, messageNumber, g.ttl.Milliseconds()).Result()
	if err != nil {
		return false, err
	}
	n, err := httpx.ScriptInt(res)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (g *RedisReplayGuard) Release(ctx context.Context, key string, messageNumber int64) error {
	return releaseIfLatestScript.Run(ctx, g.rdb, []string{g.prefix + ":" + key}, messageNumber).Err()
}

// MemoryReplayGuard is the single-process fallback.
type MemoryReplayGuard struct {
	mu   sync.Mutex
	seen map[string]int64
}

func NewMemoryReplayGuard() *MemoryReplayGuard {
	return &MemoryReplayGuard{seen: map[string]int64{}}
}

func (g *MemoryReplayGuard) Accept(_ context.Context, key string, messageNumber int64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if last, ok := g.seen[key]; ok && last >= messageNumber {
		return false, nil
	}
	g.seen[key] = messageNumber
	return true, nil
}

func (g *MemoryReplayGuard) Release(_ context.Context, key string, messageNumber int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if last, ok := g.seen[key]; ok && last == messageNumber {
		delete(g.seen, key)
	}
	return nil
}
