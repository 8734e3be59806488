package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return client, mr
}

func TestLockOwnerIDUnique(t *testing.T) {
	client, _ := setupTestRedis(t)

	lock1 := NewLock(client)
	lock2 := NewLock(client)

	if lock1.OwnerID() == "" {
		t.Fatal("expected non-empty owner ID")
	}
	if lock1.OwnerID() == lock2.OwnerID() {
		t.Errorf("expected unique owner IDs, got same: %s", lock1.OwnerID())
	}
}

func TestLockAcquire(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	lock := NewLock(client)

	acquired, err := lock.Acquire(ctx, "doc:doc-1", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acquired {
		t.Error("expected to acquire lock")
	}
}

func TestLockAcquireAlreadyHeld(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	lock1 := NewLock(client)
	lock2 := NewLock(client)

	acquired, err := lock1.Acquire(ctx, "doc:doc-1", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acquired {
		t.Fatal("expected first instance to acquire")
	}

	acquired, err = lock2.Acquire(ctx, "doc:doc-1", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acquired {
		t.Error("expected second instance to be rejected")
	}
}

func TestLockAcquireNotReentrant(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	lock := NewLock(client)

	if _, err := lock.Acquire(ctx, "doc:doc-1", 10*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	acquired, err := lock.Acquire(ctx, "doc:doc-1", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acquired {
		t.Error("expected reentrant acquire to fail")
	}
}

func TestLockReleaseAllowsReacquire(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	lock1 := NewLock(client)
	lock2 := NewLock(client)

	if _, err := lock1.Acquire(ctx, "doc:doc-1", 10*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := lock1.Release(ctx, "doc:doc-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	acquired, err := lock2.Acquire(ctx, "doc:doc-1", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acquired {
		t.Error("expected lock to be free after release")
	}
}

func TestLockReleaseByNonOwnerIsNoop(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	owner := NewLock(client)
	other := NewLock(client)

	if _, err := owner.Acquire(ctx, "doc:doc-1", 10*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A different instance releasing must not free the owner's lock.
	if err := other.Release(ctx, "doc:doc-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	acquired, err := other.Acquire(ctx, "doc:doc-1", 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acquired {
		t.Error("expected lock to still be held by owner")
	}
}

func TestLockExpiresAfterTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	lock1 := NewLock(client)
	lock2 := NewLock(client)

	if _, err := lock1.Acquire(ctx, "doc:doc-1", 5*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mr.FastForward(6 * time.Second)

	acquired, err := lock2.Acquire(ctx, "doc:doc-1", 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !acquired {
		t.Error("expected lock to expire after TTL")
	}
}

func TestLockExtend(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	lock := NewLock(client)

	if _, err := lock.Acquire(ctx, "doc:doc-1", 5*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := lock.Extend(ctx, "doc:doc-1", 30*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mr.FastForward(10 * time.Second)

	other := NewLock(client)
	acquired, err := other.Acquire(ctx, "doc:doc-1", 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if acquired {
		t.Error("expected extended lock to still be held")
	}
}

func TestLockExtendNotHeld(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	lock := NewLock(client)

	if err := lock.Extend(ctx, "doc:doc-1", 30*time.Second); err == nil {
		t.Error("expected error extending a lock that is not held")
	}
}

func TestLockExtendByNonOwner(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	owner := NewLock(client)
	other := NewLock(client)

	if _, err := owner.Acquire(ctx, "doc:doc-1", 10*time.Second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := other.Extend(ctx, "doc:doc-1", 30*time.Second); err == nil {
		t.Error("expected error extending a lock held by another instance")
	}
}
