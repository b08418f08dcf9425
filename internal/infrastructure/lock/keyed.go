package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kirillkom/compliance-analyzer/internal/core/domain"
)

// Keyed is an in-process AnalysisLocker used when no Redis is configured.
type Keyed struct {
	wait time.Duration

	mu      sync.Mutex
	entries map[string]*keyedEntry
}

type keyedEntry struct {
	slot chan struct{}
	refs int
}

// NewKeyed returns a locker whose Acquire gives up after wait. A zero wait
// tries once.
func NewKeyed(wait time.Duration) *Keyed {
	return &Keyed{
		wait:    wait,
		entries: make(map[string]*keyedEntry),
	}
}

func (k *Keyed) Acquire(ctx context.Context, key string) (func(), error) {
	entry := k.ref(key)

	select {
	case entry.slot <- struct{}{}:
		return k.releaser(key, entry), nil
	default:
	}

	if k.wait <= 0 {
		k.unref(key, entry)
		return nil, busyError(key)
	}

	timer := time.NewTimer(k.wait)
	defer timer.Stop()
	select {
	case entry.slot <- struct{}{}:
		return k.releaser(key, entry), nil
	case <-timer.C:
		k.unref(key, entry)
		return nil, busyError(key)
	case <-ctx.Done():
		k.unref(key, entry)
		return nil, ctx.Err()
	}
}

func (k *Keyed) releaser(key string, entry *keyedEntry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.slot
			k.unref(key, entry)
		})
	}
}

func (k *Keyed) ref(key string) *keyedEntry {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &keyedEntry{slot: make(chan struct{}, 1)}
		k.entries[key] = entry
	}
	entry.refs++
	return entry
}

func (k *Keyed) unref(key string, entry *keyedEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.entries, key)
	}
}

func busyError(key string) error {
	return domain.WrapError(domain.ErrAnalysisInProgress, "acquire analysis lock", fmt.Errorf("key %s is held", key))
}
