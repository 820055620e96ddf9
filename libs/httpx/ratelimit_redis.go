package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWithTTL bumps a counter and arms its expiry on first use.
var incrWithTTL = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RedisRateLimiter is a fixed-window limiter whose counters live in Redis so
// every replica enforces one shared limit.
type RedisRateLimiter struct {
	rdb    redis.Scripter
	limit  int64
	window time.Duration
	prefix string
	key    KeyFunc
}

// NewRedisRateLimiter defaults to 60 requests per minute keyed by client
// address under the "rl" prefix.
func NewRedisRateLimiter(rdb redis.Scripter, limit int, window time.Duration, prefix string, key KeyFunc) *RedisRateLimiter {
	rl := &RedisRateLimiter{
		rdb:    rdb,
		limit:  int64(limit),
		window: window,
		prefix: strings.TrimSpace(prefix),
		key:    key,
	}
	if rl.limit <= 0 {
		rl.limit = 60
	}
	if rl.window < time.Millisecond {
		rl.window = time.Minute
	}
	if rl.prefix == "" {
		rl.prefix = "rl"
	}
	if rl.key == nil {
		rl.key = ClientKey
	}
	return rl
}

// Middleware rejects requests over the limit. When Redis is unreachable the
// request passes if failOpen is set and gets a 503 otherwise.
func (rl *RedisRateLimiter) Middleware(logger *slog.Logger, failOpen bool) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits, err := rl.hit(r.Context(), rl.prefix+":"+rl.key(r))
			switch {
			case err != nil:
				logger.WarnContext(r.Context(), "rate limiter unavailable", "err", err, "fail_open", failOpen)
				if !failOpen {
					http.Error(w, "rate limiter unavailable", http.StatusServiceUnavailable)
					return
				}
			case hits > rl.limit:
				rejectLimited(w, rl.window)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RedisRateLimiter) hit(ctx context.Context, key string) (int64, error) {
	res, err := incrWithTTL.Run(ctx, rl.rdb, []string{key}, rl.window.Milliseconds()).Result()
	if err != nil {
		return 0, err
	}
	return ScriptInt(res)
}

// ScriptInt converts a Lua integer reply to int64.
func ScriptInt(res any) (int64, error) {
	switch v := res.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case string:
		return strconv.ParseInt(v, 10, 64)
	}
	return 0, fmt.Errorf("unexpected redis script result type %T", res)
}
