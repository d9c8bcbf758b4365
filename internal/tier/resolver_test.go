package tier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	tiers map[string]string
	err   error
	calls int
}

func (f *fakeLookup) SubscriptionTier(_ context.Context, userID string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	raw, ok := f.tiers[userID]
	if !ok {
		return "", ErrNoSubscription
	}
	return raw, nil
}

func setupTestCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	cache, err := NewRedisCache("redis://"+s.Addr(), time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })
	return cache, s
}

func TestResolveWithoutUserIsFree(t *testing.T) {
	lookup := &fakeLookup{tiers: map[string]string{"": "pro"}}
	r := NewStoreResolver(lookup, nil)
	assert.Equal(t, Free, r.Resolve(context.Background(), ""))
	assert.Equal(t, 0, lookup.calls)
}

func TestResolveFromLookup(t *testing.T) {
	lookup := &fakeLookup{tiers: map[string]string{"u-pro": "pro", "u-odd": "platinum"}}
	r := NewStoreResolver(lookup, nil)
	ctx := context.Background()

	assert.Equal(t, Pro, r.Resolve(ctx, "u-pro"))
	assert.Equal(t, Free, r.Resolve(ctx, "u-odd"))
	assert.Equal(t, Free, r.Resolve(ctx, "u-missing"))
}

func TestResolveLookupErrorIsFree(t *testing.T) {
	r := NewStoreResolver(&fakeLookup{err: errors.New("connection refused")}, nil)
	assert.Equal(t, Free, r.Resolve(context.Background(), "u-1"))
}

func TestResolveReadsThroughCache(t *testing.T) {
	cache, s := setupTestCache(t)
	lookup := &fakeLookup{tiers: map[string]string{"u-1": "pro"}}
	r := NewStoreResolver(lookup, cache)
	ctx := context.Background()

	assert.Equal(t, Pro, r.Resolve(ctx, "u-1"))
	assert.Equal(t, Pro, r.Resolve(ctx, "u-1"))
	assert.Equal(t, 1, lookup.calls)

	stored, err := s.Get("tier:u-1")
	require.NoError(t, err)
	assert.Equal(t, "pro", stored)
	assert.True(t, s.TTL("tier:u-1") > 0)

	require.NoError(t, r.Invalidate(ctx, "u-1"))
	lookup.tiers["u-1"] = "free"
	assert.Equal(t, Free, r.Resolve(ctx, "u-1"))
	assert.Equal(t, 2, lookup.calls)
}

func TestResolveCacheExpiry(t *testing.T) {
	cache, s := setupTestCache(t)
	lookup := &fakeLookup{tiers: map[string]string{"u-1": "pro"}}
	r := NewStoreResolver(lookup, cache)
	ctx := context.Background()

	r.Resolve(ctx, "u-1")
	s.FastForward(2 * time.Minute)
	r.Resolve(ctx, "u-1")
	assert.Equal(t, 2, lookup.calls)
}

func TestResolveSurvivesCacheOutage(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	cache := NewRedisCacheWithClient(client, 0)
	s.Close()

	r := NewStoreResolver(&fakeLookup{tiers: map[string]string{"u-1": "pro"}}, cache)
	assert.Equal(t, Pro, r.Resolve(context.Background(), "u-1"))
}

func TestNewRedisCacheRejectsBadURL(t *testing.T) {
	_, err := NewRedisCache("not-a-url", time.Minute)
	assert.Error(t, err)
}

func TestStatic(t *testing.T) {
	assert.Equal(t, Pro, Static(Pro).Resolve(context.Background(), "anyone"))
}
