package r2client

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDistributedLock_AcquireRelease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newMemStore()

	a := NewDistributedLock(store, "locks/retention", time.Minute)
	b := NewDistributedLock(store, "locks/retention", time.Minute)
	if a.OwnerID() == b.OwnerID() {
		t.Fatal("owner ids must be unique")
	}

	if ok, err := a.Acquire(ctx); err != nil || !ok {
		t.Fatalf("a.Acquire() = %v, %v", ok, err)
	}
	if ok, err := b.Acquire(ctx); err != nil || ok {
		t.Fatalf("b.Acquire() while held = %v, %v", ok, err)
	}

	// b does not own it, so its release is a no-op.
	if err := b.Release(ctx); err != nil {
		t.Fatalf("b.Release() = %v", err)
	}
	if !store.has("locks/retention") {
		t.Fatal("foreign release must not delete the lock")
	}

	if err := a.Release(ctx); err != nil {
		t.Fatalf("a.Release() = %v", err)
	}
	if ok, err := b.Acquire(ctx); err != nil || !ok {
		t.Fatalf("b.Acquire() after release = %v, %v", ok, err)
	}
}

func TestDistributedLock_StealsExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newMemStore()

	a := NewDistributedLock(store, "k", time.Minute)
	if ok, _ := a.Acquire(ctx); !ok {
		t.Fatal("a should acquire")
	}

	b := NewDistributedLock(store, "k", time.Minute)
	b.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if ok, err := b.Acquire(ctx); err != nil || !ok {
		t.Fatalf("b.Acquire() on expired lock = %v, %v", ok, err)
	}

	// a lost the lock; its release must leave b's lock alone.
	if err := a.Release(ctx); err != nil {
		t.Fatalf("a.Release() = %v", err)
	}
	if !store.has("k") {
		t.Error("stolen lock must survive the previous owner's release")
	}
}

func TestDistributedLock_CorruptLockIsExpired(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newMemStore()
	if _, err := store.Upload(ctx, "k", stringsReader("not json"), ""); err != nil {
		t.Fatal(err)
	}

	l := NewDistributedLock(store, "k", time.Minute)
	if ok, err := l.Acquire(ctx); err != nil || !ok {
		t.Fatalf("Acquire() = %v, %v", ok, err)
	}
}

func TestDistributedLock_Errors(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	store.failAll = errUnavailable

	l := NewDistributedLock(store, "k", time.Minute)
	if _, err := l.Acquire(context.Background()); !errors.Is(err, errUnavailable) {
		t.Errorf("Acquire() = %v", err)
	}
	if err := l.Release(context.Background()); !errors.Is(err, errUnavailable) {
		t.Errorf("Release() = %v", err)
	}
}
