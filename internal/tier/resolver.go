package tier

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// ErrNoSubscription is returned by a Lookup when the user has no subscription row.
var ErrNoSubscription = errors.New("no subscription")

// Lookup reads the raw tier string stored for a user.
type Lookup interface {
	SubscriptionTier(ctx context.Context, userID string) (string, error)
}

// Resolver answers which tier a user is on. It never fails: anything it
// cannot determine resolves to Free.
type Resolver interface {
	Resolve(ctx context.Context, userID string) Tier
}

// StoreResolver resolves tiers from a Lookup, optionally through a cache.
type StoreResolver struct {
	lookup Lookup
	cache  *RedisCache
}

// NewStoreResolver creates a resolver. cache may be nil.
func NewStoreResolver(lookup Lookup, cache *RedisCache) *StoreResolver {
	return &StoreResolver{lookup: lookup, cache: cache}
}

func (r *StoreResolver) Resolve(ctx context.Context, userID string) Tier {
	if userID == "" || r.lookup == nil {
		return Free
	}

	if r.cache != nil {
		cached, ok, err := r.cache.Get(ctx, userID)
		if err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("Tier cache read failed")
		} else if ok {
			return cached
		}
	}

	raw, err := r.lookup.SubscriptionTier(ctx, userID)
	if errors.Is(err, ErrNoSubscription) {
		r.remember(ctx, userID, Free)
		return Free
	}
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Tier lookup failed, treating user as free")
		return Free
	}

	t := Normalize(raw)
	r.remember(ctx, userID, t)
	return t
}

// Invalidate drops a cached tier, e.g. after a subscription change.
func (r *StoreResolver) Invalidate(ctx context.Context, userID string) error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Delete(ctx, userID)
}

func (r *StoreResolver) remember(ctx context.Context, userID string, t Tier) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Set(ctx, userID, t); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("Tier cache write failed")
	}
}

// Static resolves every user to the same tier.
type Static Tier

func (s Static) Resolve(context.Context, string) Tier {
	return Tier(s)
}
