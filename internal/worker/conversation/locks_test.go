package conversationworker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/avito-asker/pkg/logging"
)

func TestContactLocks_SerializesSameKey(t *testing.T) {
	locks := newContactLocks(nil, time.Second, logging.Default())

	unlock, err := locks.Lock(context.Background(), "contact-1")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		second, err := locks.Lock(context.Background(), "contact-1")
		if err != nil {
			t.Errorf("second Lock: %v", err)
			close(acquired)
			return
		}
		close(acquired)
		second()
	}()

	select {
	case <-acquired:
		t.Fatalf("second holder acquired the lock while the first still held it")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatalf("second holder never acquired the lock")
	}

	require.Eventually(t, func() bool { return locks.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestContactLocks_DifferentKeysDoNotBlock(t *testing.T) {
	locks := newContactLocks(nil, time.Second, logging.Default())

	unlockA, err := locks.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlockB, err := locks.Lock(context.Background(), "b")
	require.NoError(t, err)
	require.Equal(t, 2, locks.Len())

	unlockA()
	unlockB()
	require.Equal(t, 0, locks.Len())
}

func TestContactLocks_ManyWaitersCleanUp(t *testing.T) {
	locks := newContactLocks(nil, time.Second, logging.Default())

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locks.Lock(context.Background(), "contact-1")
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, 1, maxSeen)
	require.Equal(t, 0, locks.Len())
}

type failingLocker struct{ err error }

func (f failingLocker) Lock(context.Context, string, time.Duration) (UnlockFunc, error) {
	return nil, f.err
}

func TestContactLocks_DistributedFailureReleasesLocal(t *testing.T) {
	locks := newContactLocks(failingLocker{err: ErrLockAcquire}, time.Second, logging.Default())

	_, err := locks.Lock(context.Background(), "contact-1")
	require.ErrorIs(t, err, ErrLockAcquire)
	require.Equal(t, 0, locks.Len())
}

func newLockerRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLocker_ExclusiveUntilUnlocked(t *testing.T) {
	mr, client := newLockerRedis(t)
	locker := NewRedisLocker(client, "asker:")
	locker.poll = 10 * time.Millisecond

	unlock, err := locker.Lock(context.Background(), "contact-1", time.Minute)
	require.NoError(t, err)
	require.True(t, mr.Exists("asker:lock:contact-1"))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "contact-1", time.Minute)
	require.ErrorIs(t, err, ErrLockAcquire)

	require.NoError(t, unlock(context.Background()))
	require.False(t, mr.Exists("asker:lock:contact-1"))

	again, err := locker.Lock(context.Background(), "contact-1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, again(context.Background()))
}

func TestRedisLocker_UnlockKeepsForeignToken(t *testing.T) {
	mr, client := newLockerRedis(t)
	locker := NewRedisLocker(client, "asker:")

	unlock, err := locker.Lock(context.Background(), "contact-1", time.Minute)
	require.NoError(t, err)

	// lock expired and another worker took it over
	require.NoError(t, mr.Set("asker:lock:contact-1", "someone-else"))

	require.NoError(t, unlock(context.Background()))
	got, err := mr.Get("asker:lock:contact-1")
	require.NoError(t, err)
	require.Equal(t, "someone-else", got)
}

func TestRedisLocker_ReportsRedisErrors(t *testing.T) {
	mr, client := newLockerRedis(t)
	locker := NewRedisLocker(client, "asker:")
	mr.Close()

	_, err := locker.Lock(context.Background(), "contact-1", time.Minute)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrLockAcquire))
}
