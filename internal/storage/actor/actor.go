// Package actor provides a per-key durable actor runtime: each named
// instance owns private structured storage, and the runtime guarantees at
// most one in-flight mutation per instance. Callers must not add their
// own locking on top.
package actor

import (
	"context"
	"hash/fnv"
	"sync"
)

// Name builds the composite instance name. Every actor name embeds the
// tenant identifier so two tenants can never address the same storage
// slot even with identical object ids.
func Name(tenantID, objectID string) string {
	return tenantID + ":" + objectID
}

// Store persists a named instance's private state. Values are structured
// (JSON-encoded by the implementation).
type Store interface {
	// Get decodes the value stored under (name, key) into out and reports
	// whether it existed.
	Get(ctx context.Context, name, key string, out any) (bool, error)
	// Put stores value under (name, key), replacing any previous value.
	Put(ctx context.Context, name, key string, value any) error
	// Clear removes all keys belonging to name.
	Clear(ctx context.Context, name string) error
}

const lockShards = 256

// Runtime serializes operations per instance name via a sharded lock
// table keyed by the composite name.
type Runtime struct {
	store Store
	locks [lockShards]sync.Mutex
}

// NewRuntime creates a runtime over the given store.
func NewRuntime(store Store) *Runtime {
	return &Runtime{store: store}
}

func (r *Runtime) shard(name string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(name))
	return &r.locks[h.Sum32()%lockShards]
}

// Handle is the view of an instance's private storage passed to Do. It is
// only valid for the duration of the callback.
type Handle struct {
	runtime *Runtime
	name    string
}

// Get decodes the instance value stored under key into out.
func (h Handle) Get(ctx context.Context, key string, out any) (bool, error) {
	return h.runtime.store.Get(ctx, h.name, key, out)
}

// Put stores value under key.
func (h Handle) Put(ctx context.Context, key string, value any) error {
	return h.runtime.store.Put(ctx, h.name, key, value)
}

// Clear removes all of the instance's state.
func (h Handle) Clear(ctx context.Context) error {
	return h.runtime.store.Clear(ctx, h.name)
}

// Do runs fn with exclusive access to the named instance's storage. Calls
// for the same name never interleave; calls for different names proceed
// independently (modulo shard collisions).
func (r *Runtime) Do(ctx context.Context, name string, fn func(h Handle) error) error {
	mu := r.shard(name)
	mu.Lock()
	defer mu.Unlock()
	return fn(Handle{runtime: r, name: name})
}
