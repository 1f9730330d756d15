// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BeatGate Contributors

// Package rediscache caches hardware-verification outcomes in Redis.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// DefaultTTL bounds how long a verification outcome stays cached.
const DefaultTTL = 24 * time.Hour

// VerifiedCache is a Redis-backed user.VerifiedCache.
type VerifiedCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis at the given URL and verifies the connection.
func New(ctx context.Context, url string) (*VerifiedCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, oops.Code("REDIS_URL_INVALID").Wrap(err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, oops.Code("REDIS_UNREACHABLE").Wrap(err)
	}

	return &VerifiedCache{client: client, ttl: DefaultTTL}, nil
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(client *redis.Client) *VerifiedCache {
	return &VerifiedCache{client: client, ttl: DefaultTTL}
}

// Close releases the Redis connection.
func (c *VerifiedCache) Close() error {
	return c.client.Close() //nolint:wrapcheck // passthrough close
}

func verifiedKey(id int32) string {
	return fmt.Sprintf("verified:%d", id)
}

// SetVerified records the verification outcome for a user.
func (c *VerifiedCache) SetVerified(ctx context.Context, id int32, verified bool) error {
	val := "0"
	if verified {
		val = "1"
	}
	if err := c.client.Set(ctx, verifiedKey(id), val, c.ttl).Err(); err != nil {
		return oops.Code("VERIFIED_CACHE_SET_FAILED").
			With("user_id", id).
			Wrap(err)
	}
	return nil
}

// Verified returns the cached outcome. The second result is false when
// nothing is cached for the user.
func (c *VerifiedCache) Verified(ctx context.Context, id int32) (bool, bool, error) {
	val, err := c.client.Get(ctx, verifiedKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, oops.Code("VERIFIED_CACHE_GET_FAILED").
			With("user_id", id).
			Wrap(err)
	}
	return val == "1", true, nil
}
