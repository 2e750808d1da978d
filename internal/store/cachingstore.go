package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oriys/shardvm/internal/cache"
)

// CachingStore wraps a Store with a read-through cache for the lookups
// the tick loop and gRPC layer hit most often: resolving a VM by ID and
// a user by username. Writes invalidate rather than update, so a stale
// entry never outlives the TTL by more than one round trip.
type CachingStore struct {
	Store
	cache cache.Cache
	ttl   time.Duration
}

func NewCachingStore(inner Store, c cache.Cache, ttl time.Duration) *CachingStore {
	return &CachingStore{Store: inner, cache: c, ttl: ttl}
}

func vmCacheKey(id string) string         { return fmt.Sprintf("vm:%s", id) }
func userCacheKey(username string) string { return fmt.Sprintf("user:%s", username) }

func (s *CachingStore) GetVM(ctx context.Context, id string) (*VMRecord, error) {
	key := vmCacheKey(id)
	if raw, err := s.cache.Get(ctx, key); err == nil {
		var rec VMRecord
		if jsonErr := json.Unmarshal(raw, &rec); jsonErr == nil {
			return &rec, nil
		}
	}

	rec, err := s.Store.GetVM(ctx, id)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(rec); err == nil {
		_ = s.cache.Set(ctx, key, raw, s.ttl)
	}
	return rec, nil
}

func (s *CachingStore) CreateVM(ctx context.Context, rec *VMRecord) error {
	if err := s.Store.CreateVM(ctx, rec); err != nil {
		return err
	}
	_ = s.cache.Delete(ctx, vmCacheKey(rec.ID))
	return nil
}

func (s *CachingStore) DeleteVM(ctx context.Context, id string) error {
	if err := s.Store.DeleteVM(ctx, id); err != nil {
		return err
	}
	_ = s.cache.Delete(ctx, vmCacheKey(id))
	return nil
}

func (s *CachingStore) GetUserByUsername(ctx context.Context, username string) (*UserRecord, error) {
	key := userCacheKey(username)
	if raw, err := s.cache.Get(ctx, key); err == nil {
		var rec UserRecord
		if jsonErr := json.Unmarshal(raw, &rec); jsonErr == nil {
			return &rec, nil
		}
	}

	rec, err := s.Store.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(rec); err == nil {
		_ = s.cache.Set(ctx, key, raw, s.ttl)
	}
	return rec, nil
}

func (s *CachingStore) CreateUser(ctx context.Context, rec *UserRecord) error {
	if err := s.Store.CreateUser(ctx, rec); err != nil {
		return err
	}
	_ = s.cache.Delete(ctx, userCacheKey(rec.Username))
	return nil
}
