// Package locks serializes work on a single key across goroutines and, when
// Redis is configured, across API instances.
package locks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when the key stays held past the caller's deadline.
var ErrLocked = errors.New("resource is locked")

// Locker obtains an exclusive hold on key. The returned release func must be
// called exactly once.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Local is an in-process Locker keyed by string. A key's entry lives only
// while someone holds or waits for it.
type Local struct {
	mu   sync.Mutex
	keys map[string]*localKey
}

type localKey struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{keys: make(map[string]*localKey)}
}

func (l *Local) Obtain(ctx context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	k, ok := l.keys[key]
	if !ok {
		k = &localKey{ch: make(chan struct{}, 1)}
		l.keys[key] = k
	}
	k.refs++
	l.mu.Unlock()

	select {
	case k.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-k.ch
				l.drop(key, k)
			})
		}, nil
	case <-ctx.Done():
		l.drop(key, k)
		return nil, ErrLocked
	}
}

func (l *Local) drop(key string, k *localKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k.refs--
	if k.refs == 0 {
		delete(l.keys, key)
	}
}

// held reports how many keys currently have holders or waiters.
func (l *Local) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

// Redis holds keys in Redis through redislock, retrying until ctx ends.
type Redis struct {
	client *redislock.Client
	retry  time.Duration
}

func NewRedis(addr string) (*Redis, *redis.Client) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})
	return &Redis{client: redislock.New(rdb), retry: 100 * time.Millisecond}, rdb
}

func (r *Redis) Obtain(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	lock, err := r.client.Obtain(ctx, "lock:"+key, ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(r.retry),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLocked
	}
	if err != nil {
		return nil, err
	}

	return func() {
		// Released with a fresh context so a cancelled request still frees the key.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = lock.Release(releaseCtx)
	}, nil
}
