// Package lazy provides a value built on first use.
//
// Unlike sync.OnceValues, a failed build is not remembered: the next Get
// tries again, so a provider that was down at the first request does not
// poison the process.
package lazy

import (
	"context"
	"sync"
)

// Value holds a T that is built by init the first time Get succeeds.
type Value[T any] struct {
	mu    sync.Mutex
	init  func(ctx context.Context) (T, error)
	value T
	ready bool
}

// New returns a Value that builds itself with init.
func New[T any](init func(ctx context.Context) (T, error)) *Value[T] {
	return &Value[T]{init: init}
}

// Of returns a Value that is already built.
func Of[T any](v T) *Value[T] {
	return &Value[T]{value: v, ready: true}
}

// Get returns the value, building it if needed. Concurrent callers wait for
// a single build. A build error is returned to the caller holding the lock
// and is not cached.
func (v *Value[T]) Get(ctx context.Context) (T, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.ready {
		return v.value, nil
	}
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}

	val, err := v.init(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	v.value, v.ready = val, true
	return val, nil
}

// Peek returns the value without building it. A nil Value is never built.
func (v *Value[T]) Peek() (T, bool) {
	if v == nil {
		var zero T
		return zero, false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.value, v.ready
}
