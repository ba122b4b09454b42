package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
	"go.uber.org/zap"
)

const keyPrefix = "marketplace:lock:"

type RedisOptions struct {
	// TTL is how long a key outlives a holder that stopped renewing it.
	// Held keys are extended every TTL/3 until released.
	TTL        time.Duration
	Tries      int
	RetryDelay time.Duration
}

// RedisLocker shares locks between API replicas through Redis.
type RedisLocker struct {
	rs     *redsync.Redsync
	opts   RedisOptions
	logger *zap.Logger
}

func NewRedisLocker(client *redis.Client, opts RedisOptions, logger *zap.Logger) *RedisLocker {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.Tries <= 0 {
		opts.Tries = 100
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 50 * time.Millisecond
	}
	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		opts:   opts,
		logger: logger,
	}
}

func (l *RedisLocker) mutex(key string, tries int) *redsync.Mutex {
	return l.rs.NewMutex(
		keyPrefix+key,
		redsync.WithExpiry(l.opts.TTL),
		redsync.WithTries(tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)
}

// hold keeps m alive until the returned Unlock runs. A lost extension is
// logged; the key then lapses after TTL like a crashed holder's would.
func (l *RedisLocker) hold(key string, m *redsync.Mutex) Unlock {
	stop := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		l.renew(key, m, stop)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-stopped
			if ok, err := m.UnlockContext(context.Background()); err != nil || !ok {
				l.logger.Warn("redis unlock failed",
					zap.String("key", key),
					zap.Bool("released", ok),
					zap.Error(err),
				)
			}
		})
	}
}

func (l *RedisLocker) renew(key string, m *redsync.Mutex, stop <-chan struct{}) {
	ticker := time.NewTicker(l.opts.TTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.opts.TTL/3)
			ok, err := m.ExtendContext(ctx)
			cancel()
			if err != nil || !ok {
				l.logger.Error("redis lock extension failed",
					zap.String("key", key),
					zap.Bool("extended", ok),
					zap.Error(err),
				)
				return
			}
		}
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	m := l.mutex(key, l.opts.Tries)
	if err := m.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	return l.hold(key, m), nil
}

func (l *RedisLocker) TryLock(ctx context.Context, key string) (Unlock, bool, error) {
	m := l.mutex(key, 1)
	err := m.TryLockContext(ctx)
	if err == nil {
		return l.hold(key, m), true, nil
	}

	var redisErr *redsync.RedisError
	if errors.As(err, &redisErr) || ctx.Err() != nil {
		return nil, false, fmt.Errorf("trylock %s: %w", key, err)
	}
	return nil, false, nil
}

var _ Locker = (*RedisLocker)(nil)
