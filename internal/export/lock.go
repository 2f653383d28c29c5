package export

import "context"

// MutexLocker serializes exports within a single process.
type MutexLocker struct {
	sem chan struct{}
}

func NewMutexLocker() *MutexLocker {
	return &MutexLocker{sem: make(chan struct{}, 1)}
}

// Lock blocks until the lock is free or ctx is done.
func (l *MutexLocker) Lock(ctx context.Context) (func(), error) {
	select {
	case l.sem <- struct{}{}:
		return func() { <-l.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
