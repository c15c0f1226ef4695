package ratelimit

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"
)

// shortID truncates a user ID for log output. IDs are normally UUIDs but
// admin resets can pass arbitrary path params, so short IDs must not panic.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}

// InvalidateUser removes all rate limit keys for a specific user.
// Used when a user upgrades to the paid plan or when manually resetting limits.
func (rl *RateLimiter) InvalidateUser(ctx context.Context, userID string) error {
	if !rl.redisClient.IsEnabled() {
		// For in-memory fallback, remove the specific limiters
		rl.fallbackMutex.Lock()
		defer rl.fallbackMutex.Unlock()

		weekKey := fmt.Sprintf("ratelimit:user:%s:week", userID)
		delete(rl.fallbackLimiters, weekKey)

		slog.Info("Invalidated user rate limits (in-memory)", "user_id", shortID(userID))
		return nil
	}

	// Delete all keys matching the user pattern
	pattern := fmt.Sprintf("ratelimit:user:%s:*", userID)
	return rl.deleteByPattern(ctx, pattern)
}

// InvalidateIP removes all rate limit keys for a specific IP address.
// Used for manual IP ban/unban or limit resets.
func (rl *RateLimiter) InvalidateIP(ctx context.Context, ip string) error {
	if !rl.redisClient.IsEnabled() {
		rl.fallbackMutex.Lock()
		defer rl.fallbackMutex.Unlock()

		ipKey := fmt.Sprintf("ratelimit:ip:%s", ip)
		delete(rl.fallbackLimiters, ipKey)

		slog.Info("Invalidated IP rate limits (in-memory)", "ip", ip)
		return nil
	}

	pattern := fmt.Sprintf("ratelimit:ip:%s*", ip)
	return rl.deleteByPattern(ctx, pattern)
}

// ResetOnUpgrade immediately resets limits when a user upgrades to paid
func (rl *RateLimiter) ResetOnUpgrade(ctx context.Context, userID string) error {
	slog.Info("Resetting rate limits for user upgrade", "user_id", shortID(userID))
	return rl.InvalidateUser(ctx, userID)
}

// deleteByPattern deletes all Redis keys matching a pattern
func (rl *RateLimiter) deleteByPattern(ctx context.Context, pattern string) error {
	client := rl.redisClient.GetClient()

	// Use SCAN to find matching keys (more efficient than KEYS)
	var cursor uint64
	var deletedCount int

	for {
		keys, nextCursor, err := client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys: %w", err)
		}

		// Delete found keys
		if len(keys) > 0 {
			deleted, err := client.Del(ctx, keys...).Result()
			if err != nil {
				return fmt.Errorf("failed to delete keys: %w", err)
			}
			deletedCount += int(deleted)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	slog.Info("Deleted rate limit keys by pattern", "pattern", pattern, "count", deletedCount)
	return nil
}

// InvalidateAll removes all rate limit keys (emergency use only)
func (rl *RateLimiter) InvalidateAll(ctx context.Context) error {
	if !rl.redisClient.IsEnabled() {
		rl.fallbackMutex.Lock()
		defer rl.fallbackMutex.Unlock()

		count := len(rl.fallbackLimiters)
		rl.fallbackLimiters = make(map[string]*rate.Limiter)

		slog.Warn("Invalidated all rate limits (in-memory)", "count", count)
		return nil
	}

	pattern := "ratelimit:*"
	slog.Warn("Invalidating ALL rate limits", "pattern", pattern)
	return rl.deleteByPattern(ctx, pattern)
}
