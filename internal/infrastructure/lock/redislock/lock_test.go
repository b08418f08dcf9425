package redislock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

type fakeRedis struct {
	values   map[string]string
	setErr   error
	setCalls int
	evals    []string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	f.setCalls++
	if f.setErr != nil {
		return redis.NewBoolResult(false, f.setErr)
	}
	if _, held := f.values[key]; held {
		return redis.NewBoolResult(false, nil)
	}
	f.values[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	f.evals = append(f.evals, keys[0])
	if f.values[keys[0]] == args[0].(string) {
		delete(f.values, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestAcquireAndRelease(t *testing.T) {
	fake := newFakeRedis()
	locker := New(fake, Options{TTL: time.Minute})

	release, err := locker.Acquire(context.Background(), "doc:IFRS:qs")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, ok := fake.values[keyPrefix+"doc:IFRS:qs"]; !ok {
		t.Fatalf("expected key to be set, got %v", fake.values)
	}
	release()
	release()
	if len(fake.values) != 0 {
		t.Fatalf("expected key to be deleted, got %v", fake.values)
	}
	if len(fake.evals) != 1 {
		t.Fatalf("expected a single release eval, got %d", len(fake.evals))
	}
}

func TestAcquireHeldKeyReturnsInProgress(t *testing.T) {
	fake := newFakeRedis()
	fake.values[keyPrefix+"k"] = "someone-else"
	locker := New(fake, Options{Wait: 30 * time.Millisecond, PollInterval: 5 * time.Millisecond})

	_, err := locker.Acquire(context.Background(), "k")
	if !domain.IsKind(err, domain.ErrAnalysisInProgress) {
		t.Fatalf("expected ErrAnalysisInProgress, got %v", err)
	}
	if fake.setCalls < 2 {
		t.Fatalf("expected polling, got %d attempts", fake.setCalls)
	}
}

func TestReleaseKeepsForeignToken(t *testing.T) {
	fake := newFakeRedis()
	locker := New(fake, Options{})
	release, err := locker.Acquire(context.Background(), "k")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	fake.values[keyPrefix+"k"] = "new-holder"
	release()
	if fake.values[keyPrefix+"k"] != "new-holder" {
		t.Fatalf("release must not delete a lease owned by another holder")
	}
}

func TestAcquireRedisErrorIsTemporary(t *testing.T) {
	fake := newFakeRedis()
	fake.setErr = errors.New("connection refused")
	_, err := New(fake, Options{}).Acquire(context.Background(), "k")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}
