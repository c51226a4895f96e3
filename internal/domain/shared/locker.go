package shared

import "context"

// KeyLocker serializes work on named keys, within a process or across
// processes sharing a lock backend.
type KeyLocker interface {
	// Lock acquires every name in sorted order and returns a function that
	// releases them. It fails with ErrLockNotObtained when ctx ends first.
	Lock(ctx context.Context, names ...string) (unlock func(), err error)
}
