package ratelimit

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loansight/loansight/internal/database"
)

// HandleRateLimitStatus returns the current rate limit status for the requesting IP/user
func (rl *RateLimiter) HandleRateLimitStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()

		status := gin.H{
			"ip": ip,
			"limits": gin.H{
				"ip_per_minute": gin.H{
					"limit":  rl.config.IPLimitPerMin,
					"period": "1 minute",
				},
				"user_per_week": gin.H{
					"limit":  rl.config.UserLimitPerWeek,
					"period": "1 week",
				},
			},
			"timestamp": time.Now().Format(time.RFC3339),
		}

		// Add user-specific info if available
		if userID, exists := c.Get("user_id"); exists {
			if userIDStr, ok := userID.(string); ok {
				status["user_id"] = userIDStr

				if userStats, exists := c.Get("user_stats"); exists {
					if stats, ok := userStats.(*database.UsageStats); ok {
						status["is_paid"] = stats.IsPaid
						if stats.IsPaid {
							status["limits"].(gin.H)["user_per_week"] = "unlimited"
						}
					}
				}
			}
		}

		c.JSON(http.StatusOK, status)
	}
}

// HandleAdminResetRateLimit resets rate limits for a specific user (admin only)
func (rl *RateLimiter) HandleAdminResetRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		userID := c.Param("userID")

		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "user ID is required",
			})
			return
		}

		if err := rl.ResetOnUpgrade(ctx, userID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "failed to reset rate limit",
				"details": err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":   "rate limit reset successfully",
			"user_id":   userID,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}
