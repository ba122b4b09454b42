package lock

import (
	"context"
	"sync"
)

// KeyedMutex is an in-process Locker. Slots are created on demand and
// dropped when the last waiter leaves.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*slot)}
}

func (k *KeyedMutex) acquire(key string) *slot {
	k.mu.Lock()
	defer k.mu.Unlock()

	s, ok := k.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[key] = s
	}
	s.refs++
	return s
}

func (k *KeyedMutex) release(key string, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(k.slots, key)
	}
}

func (k *KeyedMutex) unlocker(key string, s *slot) Unlock {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			k.release(key, s)
		})
	}
}

func (k *KeyedMutex) Lock(ctx context.Context, key string) (Unlock, error) {
	s := k.acquire(key)
	select {
	case s.ch <- struct{}{}:
		return k.unlocker(key, s), nil
	case <-ctx.Done():
		k.release(key, s)
		return nil, ctx.Err()
	}
}

func (k *KeyedMutex) TryLock(ctx context.Context, key string) (Unlock, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	s := k.acquire(key)
	select {
	case s.ch <- struct{}{}:
		return k.unlocker(key, s), true, nil
	default:
		k.release(key, s)
		return nil, false, nil
	}
}

var _ Locker = (*KeyedMutex)(nil)
