// Package querycache plugs a query cache into a distributed grid.
//
// An Adapter is built for one cache id against a running grid.Runtime. The configuration of the
// backing map comes from the template file when one is available, otherwise from a bare default.
// Every operation is forwarded to the grid map; the adapter holds no entries itself.
package querycache

import (
	"context"
	"sync"
)

// Cache is the contract a host framework expects from a pluggable query cache.
type Cache interface {
	ID() string
	PutObject(ctx context.Context, key, value any) error
	// GetObject returns nil when key is not mapped.
	GetObject(ctx context.Context, key any) (any, error)
	// RemoveObject returns the prior value, or nil when key was not mapped.
	RemoveObject(ctx context.Context, key any) (any, error)
	Clear(ctx context.Context) error
	Size(ctx context.Context) (int, error)
	ReadWriteLock() RWLocker
}

// RWLocker is a read-write lock handle.
type RWLocker interface {
	sync.Locker
	RLock()
	RUnlock()
}

// noopRWLock satisfies RWLocker without excluding anyone. Concurrency is left to the grid.
type noopRWLock struct{}

func (noopRWLock) Lock()    {}
func (noopRWLock) Unlock()  {}
func (noopRWLock) RLock()   {}
func (noopRWLock) RUnlock() {}
