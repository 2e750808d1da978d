package store

import (
	"context"
	"testing"
	"time"

	"github.com/oriys/shardvm/internal/cache"
)

func TestCachingStoreServesSecondGetVMFromCache(t *testing.T) {
	inner := newFakeStore()
	inner.vms["vm-1"] = &VMRecord{ID: "vm-1", Hostname: "vm-1.local"}
	cs := NewCachingStore(inner, cache.NewInMemoryCache(), time.Minute)

	ctx := context.Background()
	first, err := cs.GetVM(ctx, "vm-1")
	if err != nil {
		t.Fatalf("GetVM: %v", err)
	}
	second, err := cs.GetVM(ctx, "vm-1")
	if err != nil {
		t.Fatalf("GetVM: %v", err)
	}
	if first.Hostname != second.Hostname {
		t.Fatalf("hostname mismatch between calls: %q vs %q", first.Hostname, second.Hostname)
	}
	if inner.getVMCalls != 1 {
		t.Fatalf("inner.GetVM called %d times, want 1 (second call should hit the cache)", inner.getVMCalls)
	}
}

func TestCachingStoreInvalidatesOnDeleteVM(t *testing.T) {
	inner := newFakeStore()
	inner.vms["vm-1"] = &VMRecord{ID: "vm-1", Hostname: "vm-1.local"}
	cs := NewCachingStore(inner, cache.NewInMemoryCache(), time.Minute)

	ctx := context.Background()
	if _, err := cs.GetVM(ctx, "vm-1"); err != nil {
		t.Fatalf("GetVM: %v", err)
	}
	if err := cs.DeleteVM(ctx, "vm-1"); err != nil {
		t.Fatalf("DeleteVM: %v", err)
	}
	if _, err := cs.GetVM(ctx, "vm-1"); err == nil {
		t.Fatal("expected GetVM to miss after DeleteVM evicted the cache entry")
	}
	if inner.getVMCalls != 2 {
		t.Fatalf("inner.GetVM called %d times, want 2 (cache should have been bypassed after invalidation)", inner.getVMCalls)
	}
}

func TestCachingStoreServesSecondGetUserByUsernameFromCache(t *testing.T) {
	inner := newFakeStore()
	inner.users["alice"] = &UserRecord{ID: "u-1", Username: "alice"}
	cs := NewCachingStore(inner, cache.NewInMemoryCache(), time.Minute)

	ctx := context.Background()
	if _, err := cs.GetUserByUsername(ctx, "alice"); err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if _, err := cs.GetUserByUsername(ctx, "alice"); err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if inner.getUserCalls != 1 {
		t.Fatalf("inner.GetUserByUsername called %d times, want 1", inner.getUserCalls)
	}
}
