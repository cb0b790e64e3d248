package conversationworker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/wolfman30/avito-asker/pkg/logging"
)

// ErrLockAcquire is returned when the distributed contact lock cannot be taken in time.
var ErrLockAcquire = errors.New("conversationworker: failed to acquire contact lock")

// UnlockFunc releases a distributed lock.
type UnlockFunc func(ctx context.Context) error

// DistributedLocker serializes work on one key across processes.
type DistributedLocker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error)
}

const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// RedisLocker implements DistributedLocker with SET NX PX and a compare-and-delete unlock.
type RedisLocker struct {
	client *redis.Client
	prefix string
	poll   time.Duration
}

// NewRedisLocker creates a locker whose keys live under <prefix>lock:.
func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	if client == nil {
		panic("conversationworker: redis client cannot be nil")
	}
	return &RedisLocker{client: client, prefix: prefix, poll: 50 * time.Millisecond}
}

// Lock polls until the key is free or ctx is done.
func (l *RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (UnlockFunc, error) {
	lockKey := l.prefix + "lock:" + key
	token := uuid.NewString()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("conversationworker: redis lock: %w", err)
		}
		if ok {
			return func(ctx context.Context) error {
				return l.client.Eval(ctx, unlockScript, []string{lockKey}, token).Err()
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrLockAcquire, key, ctx.Err())
		case <-ticker.C:
		}
	}
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// contactLocks is a refcounted per-key mutex map, optionally backed by a distributed lock.
type contactLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
	locker  DistributedLocker
	ttl     time.Duration
	logger  *logging.Logger
}

func newContactLocks(locker DistributedLocker, ttl time.Duration, logger *logging.Logger) *contactLocks {
	return &contactLocks{
		entries: make(map[string]*lockEntry),
		locker:  locker,
		ttl:     ttl,
		logger:  logger,
	}
}

// Lock blocks until the caller owns key. The returned func must be called exactly once.
func (c *contactLocks) Lock(ctx context.Context, key string) (func(), error) {
	entry := c.acquire(key)
	entry.mu.Lock()
	local := func() {
		entry.mu.Unlock()
		c.release(key)
	}

	if c.locker == nil {
		return local, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.ttl)
	defer cancel()
	unlock, err := c.locker.Lock(waitCtx, key, c.ttl)
	if err != nil {
		local()
		return nil, err
	}
	return func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			c.logger.Warn("failed to release contact lock (will expire via TTL)", "contact_id", key, "error", err)
		}
		local()
	}, nil
}

// Len reports how many keys currently have holders or waiters.
func (c *contactLocks) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *contactLocks) acquire(key string) *lockEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		entry = &lockEntry{}
		c.entries[key] = entry
	}
	entry.refs++
	return entry
}

func (c *contactLocks) release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(c.entries, key)
	}
}
