package security

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/loansight/loansight/internal/database"
	"github.com/loansight/loansight/internal/models"
	"github.com/loansight/loansight/internal/types"
)

// SecurityConfig holds security configuration
type SecurityConfig struct {
	MaxFeatureCount   int           `json:"max_feature_count"`
	MaxRequestsPerMin int           `json:"max_requests_per_min"`
	EnableCORS        bool          `json:"enable_cors"`
	AllowedOrigins    []string      `json:"allowed_origins"`
	TrustedProxies    []string      `json:"trusted_proxies"`
	RequestTimeout    time.Duration `json:"request_timeout"`
}

// DefaultSecurityConfig returns secure defaults
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxFeatureCount:   32,
		MaxRequestsPerMin: 60,
		EnableCORS:        true,
		AllowedOrigins:    []string{"http://localhost:3000", "http://localhost:5173", "https://js.stripe.com", "https://checkout.stripe.com"},
		TrustedProxies:    []string{"127.0.0.1", "::1", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"},
		RequestTimeout:    30 * time.Second,
	}
}

// SecurityMiddleware provides comprehensive security middleware
type SecurityMiddleware struct {
	config      SecurityConfig
	ipLimiters  map[string]*rate.Limiter
	limiterMu   sync.Mutex
	userService *database.UserService
}

// NewSecurityMiddleware creates a new security middleware instance
func NewSecurityMiddleware(config SecurityConfig) *SecurityMiddleware {
	return &SecurityMiddleware{
		config:     config,
		ipLimiters: make(map[string]*rate.Limiter),
	}
}

// SetUserService sets the user service for user-based rate limiting
func (sm *SecurityMiddleware) SetUserService(userService *database.UserService) {
	sm.userService = userService
}

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{2,31}$`)

// ValidateUsername checks registration usernames
func (sm *SecurityMiddleware) ValidateUsername(username string) error {
	if strings.Contains(username, "\x00") || !utf8.ValidString(username) {
		return fmt.Errorf("username contains invalid characters")
	}

	if strings.Contains(username, "..") || strings.Contains(username, "--") {
		return fmt.Errorf("invalid username format")
	}

	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("username must be 3-32 characters of letters, digits, dots, dashes or underscores")
	}

	return nil
}

// ValidateModelNames checks that every requested model is a known ensemble member
func (sm *SecurityMiddleware) ValidateModelNames(names []string) error {
	for _, name := range names {
		known := false
		for _, model := range models.KnownModels {
			if name == model {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("unknown model %q", name)
		}
	}
	return nil
}

// RateLimitByIP implements per-IP rate limiting
func (sm *SecurityMiddleware) RateLimitByIP(c *gin.Context) {
	clientIP := c.ClientIP()

	sm.limiterMu.Lock()
	limiter, exists := sm.ipLimiters[clientIP]
	if !exists {
		// Create limiter with burst capacity for initial requests
		rps := rate.Limit(sm.config.MaxRequestsPerMin / 60.0)
		burst := sm.config.MaxRequestsPerMin / 2
		if burst < 5 {
			burst = 5 // Minimum burst of 5 requests
		}
		limiter = rate.NewLimiter(rps, burst)
		sm.ipLimiters[clientIP] = limiter
	}
	sm.limiterMu.Unlock()

	if !limiter.Allow() {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate limit exceeded for IP",
			"retry_after": "60", // seconds
		})
		c.Abort()
		return
	}

	c.Next()
}

// UserRateLimit enforces the weekly prediction quota for authenticated users
func (sm *SecurityMiddleware) UserRateLimit(c *gin.Context) {
	// Only applies to the prediction endpoint
	if c.Request.URL.Path != "/api/predict" {
		c.Next()
		return
	}

	// Skip if user service is not configured
	if sm.userService == nil {
		c.Next()
		return
	}

	// Anonymous predictions are allowed and only IP limited
	userID := c.GetString("user_id")
	if userID == "" {
		c.Next()
		return
	}

	clientIP := c.ClientIP()
	userAgent := c.GetHeader("User-Agent")

	result, err := sm.userService.ProcessRequest(userID, clientIP, userAgent, c.Request.URL.Path, c.Request.Method)
	if err != nil {
		// Quota bookkeeping must not break predictions, fall back to IP limiting
		fmt.Printf("[USER-RATE-LIMIT] Error processing user request: %v\n", err)
		c.Next()
		return
	}

	// Store user and usage info in context for handlers
	c.Set("user_stats", result.Usage)
	c.Set("request_logged", result.RequestLogged)

	if !result.CanMakeRequest {
		remainingRequests, _ := sm.userService.GetRemainingRequests(result.User.ID)

		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":              "weekly request limit exceeded",
			"message":            fmt.Sprintf("You've used all %d free predictions this week", sm.userService.FreeLimit()),
			"remaining_requests": remainingRequests,
			"is_paid":            result.Usage.IsPaid,
			"week_start":         result.Usage.WeekStart.Format("2006-01-02"),
			"week_end":           result.Usage.WeekEnd.Format("2006-01-02"),
			"upgrade_url":        "/upgrade", // Frontend route for payment
		})
		c.Abort()
		return
	}

	c.Next()
}

// SecurityHeaders adds security headers to responses
func (sm *SecurityMiddleware) SecurityHeaders(c *gin.Context) {
	// Prevent MIME type sniffing
	c.Header("X-Content-Type-Options", "nosniff")

	// Prevent clickjacking - allow Stripe checkout
	c.Header("X-Frame-Options", "SAMEORIGIN")

	// XSS protection
	c.Header("X-XSS-Protection", "1; mode=block")

	// HSTS (HTTP Strict Transport Security) - only in production
	if c.Request.TLS != nil {
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	// Content Security Policy - allow Stripe and external resources
	c.Header("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline' https://js.stripe.com https://checkout.stripe.com; style-src 'self' 'unsafe-inline'; connect-src 'self' https://api.stripe.com; frame-src https://checkout.stripe.com https://js.stripe.com")

	// Referrer Policy
	c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

	// Permissions Policy for camera/microphone (not needed)
	c.Header("Permissions-Policy", "camera=(), microphone=()")

	c.Next()
}

// ValidateContentType validates request content type
func (sm *SecurityMiddleware) ValidateContentType(c *gin.Context) {
	contentType := c.GetHeader("Content-Type")

	// Allow JSON and form-encoded content
	allowedTypes := []string{
		"application/json",
		"application/x-www-form-urlencoded",
		"multipart/form-data",
	}

	if contentType != "" {
		found := false
		for _, allowed := range allowedTypes {
			if strings.Contains(strings.ToLower(contentType), allowed) {
				found = true
				break
			}
		}

		if !found {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{
				"error": "unsupported content type",
			})
			c.Abort()
			return
		}
	}

	c.Next()
}

// RequestTimeout enforces request timeout
func (sm *SecurityMiddleware) RequestTimeout(c *gin.Context) {
	// Create a timeout context
	ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
	defer cancel()

	// Replace request context
	c.Request = c.Request.WithContext(ctx)

	// Set timeout header for client
	c.Header("X-Timeout", strconv.Itoa(int(sm.config.RequestTimeout.Seconds())))

	c.Next()
}

// ValidatePredictRequest validates the predict endpoint request
func (sm *SecurityMiddleware) ValidatePredictRequest(c *gin.Context) {
	var req types.PredictRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid JSON format",
		})
		c.Abort()
		return
	}

	if len(req.Features) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "features field is required",
		})
		c.Abort()
		return
	}

	if len(req.Features) > sm.config.MaxFeatureCount {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("too many features, maximum is %d", sm.config.MaxFeatureCount),
		})
		c.Abort()
		return
	}

	for name := range req.Features {
		if strings.Contains(name, "\x00") || !utf8.ValidString(name) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "feature names contain invalid characters",
			})
			c.Abort()
			return
		}
	}

	// Unknown model names are dropped by the ensemble, not rejected here.
	// The log line is the only trace a client gets.
	if err := sm.ValidateModelNames(req.SelectedModels); err != nil {
		slog.Warn("Predict request selects unknown models", "error", err, "ip", c.ClientIP())
	}

	// Store parsed request in context for handler
	c.Set("predict_request", &req)
	c.Next()
}

// Cleanup periodically cleans up old rate limiters
func (sm *SecurityMiddleware) Cleanup() {
	ticker := time.NewTicker(1 * time.Hour)
	go func() {
		for range ticker.C {
			sm.cleanupOldLimiters()
		}
	}()
}

// cleanupOldLimiters drops all per-IP limiters. The map is rebuilt on
// demand, so a full reset once an hour bounds its size.
func (sm *SecurityMiddleware) cleanupOldLimiters() {
	sm.limiterMu.Lock()
	sm.ipLimiters = make(map[string]*rate.Limiter)
	sm.limiterMu.Unlock()
}
