// Package redislock is a single-instance Redis advisory lock: SET NX PX to
// acquire, a compare-and-delete script to release.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/karibu-backend/internal/platform/envutil"
	"github.com/yungbote/karibu-backend/internal/platform/logger"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Config struct {
	Addr      string
	URL       string
	KeyPrefix string
	TTL       time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		Addr:      envutil.String("REDIS_ADDR", ""),
		URL:       envutil.String("REDIS_URL", ""),
		KeyPrefix: envutil.String("REDIS_LOCK_PREFIX", "karibu:lock:"),
		TTL:       envutil.Seconds("DNA_SYNTHESIS_LOCK_TTL_SECONDS", 10*time.Minute),
	}
}

type Locker struct {
	log    *logger.Logger
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// New dials Redis from cfg and verifies it with PING.
func New(ctx context.Context, log *logger.Logger, cfg Config) (*Locker, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	var opts *goredis.Options
	switch {
	case strings.TrimSpace(cfg.URL) != "":
		parsed, err := goredis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		opts = parsed
	case strings.TrimSpace(cfg.Addr) != "":
		opts = &goredis.Options{Addr: cfg.Addr}
	default:
		return nil, fmt.Errorf("missing REDIS_URL or REDIS_ADDR")
	}
	opts.DialTimeout = 5 * time.Second

	rdb := goredis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(log, rdb, cfg.KeyPrefix, cfg.TTL), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(log *logger.Logger, rdb goredis.UniversalClient, prefix string, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Locker{
		log:    log.With("service", "RedisLocker"),
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
	}
}

// TryLock acquires key without waiting. ok is false when another holder has it.
// The returned release is safe to call once the lock has expired.
func (l *Locker) TryLock(ctx context.Context, key string) (release func(), ok bool, err error) {
	token := uuid.NewString()
	full := l.prefix + key
	ok, err = l.rdb.SetNX(ctx, full, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis lock %s: %w", full, err)
	}
	if !ok {
		return nil, false, nil
	}
	release = func() {
		// Release must run even if the caller's context is gone.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.rdb, []string{full}, token).Err(); err != nil && !errors.Is(err, goredis.Nil) {
			l.log.Warn("redis lock release failed", "key", full, "error", err)
		}
	}
	return release, true, nil
}

func (l *Locker) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

func (l *Locker) Close() error {
	return l.rdb.Close()
}
