package redislock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

const keyPrefix = "compliance:analysis_lock:"

// releaseScript deletes the key only while it still holds our token.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

type client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type Options struct {
	TTL          time.Duration
	Wait         time.Duration
	PollInterval time.Duration
}

// Locker implements a per-key lease over Redis SET NX PX. The lease expires
// after TTL so a crashed holder cannot block a key forever.
type Locker struct {
	client client
	ttl    time.Duration
	wait   time.Duration
	poll   time.Duration
	token  func() string
}

func New(c client, opts Options) *Locker {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	return &Locker{
		client: c,
		ttl:    ttl,
		wait:   opts.Wait,
		poll:   poll,
		token:  func() string { return uuid.NewString() },
	}
}

// NewClient opens a Redis client and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return c, nil
}

func (l *Locker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := l.token()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, domain.WrapError(domain.ErrTemporary, "acquire analysis lock", fmt.Errorf("redis setnx: %w", err))
		}
		if ok {
			return l.releaser(redisKey, token), nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, domain.WrapError(domain.ErrAnalysisInProgress, "acquire analysis lock", fmt.Errorf("key %s is held", key))
		}
		timer := time.NewTimer(min(l.poll, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (l *Locker) releaser(redisKey, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { l.release(redisKey, token) })
	}
}

func (l *Locker) release(redisKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	n, err := l.client.Eval(ctx, releaseScript, []string{redisKey}, token).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		slog.Warn("analysis_lock_release_failed", "key", redisKey, "error", err)
		return
	}
	if n == 0 {
		slog.Warn("analysis_lock_expired", "key", redisKey)
	}
}
