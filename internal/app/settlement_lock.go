package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SettlementLock is the per-user in-flight flag around settlement. While a
// settlement is running, a second confirm for the same user acquires nothing
// and becomes a no-op.
type SettlementLock interface {
	Acquire(ctx context.Context, subject string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, subject string) error
}

// RedisSettlementLock implements the flag with SET NX, so it holds across
// service instances. The TTL bounds how long a crashed holder can block the
// user.
type RedisSettlementLock struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisSettlementLock(client redis.UniversalClient, prefix string) *RedisSettlementLock {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "kashly:transfer"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisSettlementLock{client: client, prefix: trimmedPrefix}
}

func (l *RedisSettlementLock) key(subject string) string {
	return fmt.Sprintf("%s:settling:%s", l.prefix, subject)
}

func (l *RedisSettlementLock) Acquire(ctx context.Context, subject string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.key(subject), "1", ttl).Result()
}

func (l *RedisSettlementLock) Release(ctx context.Context, subject string) error {
	return l.client.Del(ctx, l.key(subject)).Err()
}

// MemorySettlementLock is a process-local SettlementLock for tests and for
// running without Redis.
type MemorySettlementLock struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewMemorySettlementLock(now func() time.Time) *MemorySettlementLock {
	if now == nil {
		now = time.Now
	}
	return &MemorySettlementLock{held: make(map[string]time.Time), now: now}
}

func (l *MemorySettlementLock) Acquire(ctx context.Context, subject string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if expiry, ok := l.held[subject]; ok && now.Before(expiry) {
		return false, nil
	}
	l.held[subject] = now.Add(ttl)
	return true, nil
}

func (l *MemorySettlementLock) Release(ctx context.Context, subject string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, subject)
	return nil
}
