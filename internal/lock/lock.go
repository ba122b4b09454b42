// Package lock serializes work per key. Keys name what is being protected:
// a provider's calendar, a transaction's state, or a capture lease.
package lock

import (
	"context"
	"fmt"
)

// Unlock releases a held lock. Calling it more than once is a no-op.
type Unlock func()

type Locker interface {
	// Lock blocks until the key is held or ctx is done.
	Lock(ctx context.Context, key string) (Unlock, error)

	// TryLock takes the key only if nobody holds it.
	TryLock(ctx context.Context, key string) (Unlock, bool, error)
}

func ProviderKey(providerID uint) string {
	return fmt.Sprintf("provider:%d", providerID)
}

func TransactionKey(id string) string {
	return "tx:" + id
}

// CaptureKey guards a capture while the gateway call is in flight.
func CaptureKey(id string) string {
	return "capture:" + id
}
