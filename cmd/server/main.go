package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/loansight/loansight/internal/billing"
	"github.com/loansight/loansight/internal/cache"
	"github.com/loansight/loansight/internal/config"
	"github.com/loansight/loansight/internal/dashboard"
	"github.com/loansight/loansight/internal/database"
	"github.com/loansight/loansight/internal/errors"
	"github.com/loansight/loansight/internal/middleware"
	"github.com/loansight/loansight/internal/models"
	"github.com/loansight/loansight/internal/monitoring"
	"github.com/loansight/loansight/internal/prediction"
	"github.com/loansight/loansight/internal/ratelimit"
	"github.com/loansight/loansight/internal/security"
	"github.com/loansight/loansight/internal/types"
)

// application bundles the services the HTTP layer depends on
type application struct {
	cfg         *config.Config
	db          *database.DB
	repo        *database.Repository
	userService *database.UserService
	registry    *models.Registry
	predictor   *prediction.Service
	dashboards  *dashboard.Service
	metrics     *monitoring.Metrics
	logger      *monitoring.Logger
	appCache    *cache.Cache
	security    *security.SecurityMiddleware
	limiter     *ratelimit.RateLimiter
	billing     *billing.Service
	compression *middleware.CompressionMiddleware
	redis       *ratelimit.RedisClient
}

func main() {
	// Structured logging setup
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := config.Load()
	gin.SetMode(cfg.GinMode)

	app, err := newApplication(cfg)
	if err != nil {
		slog.Error("Failed to initialize application", "error", err)
		os.Exit(1)
	}
	defer errors.SafeClose(app.db, "database")
	defer errors.SafeClose(app.redis, "redis")

	r := app.newRouter()

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		slog.Info("Starting server", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server exited")
}

func newApplication(cfg *config.Config) (*application, error) {
	db, err := database.NewDB(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	repo := database.NewRepository(db)
	userService := database.NewUserService(repo, cfg.JWTSecret, cfg.FreeLimit)

	// Trained model parameters are optional. Without them the ensemble is
	// simulated from the rule score.
	registry := models.NewRegistry(cfg.ModelsDir)

	var predictor *prediction.Service
	if registry.HasModels() {
		slog.Info("Loaded trained model parameters", "models", registry.Loaded())
		predictor = prediction.NewServiceWithSource(registry)
	} else {
		slog.Info("No trained model parameters found, simulating ensemble votes")
		predictor = prediction.NewService()
	}

	appMetrics := monitoring.NewMetrics()
	appLogger := monitoring.NewLogger()

	// Redis is optional, the limiter degrades to in-memory buckets
	redisClient, err := ratelimit.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		slog.Warn("Redis unavailable, continuing with in-memory rate limiting", "error", err)
	}
	limiterConfig := ratelimit.DefaultConfig()
	limiterConfig.UserLimitPerWeek = cfg.FreeLimit
	limiter := ratelimit.NewRateLimiter(redisClient, limiterConfig, appMetrics)

	securityConfig := security.DefaultSecurityConfig()
	securityConfig.AllowedOrigins = cfg.CORSOrigins
	securityMiddleware := security.NewSecurityMiddleware(securityConfig)
	securityMiddleware.SetUserService(userService)
	securityMiddleware.Cleanup()

	billingService := billing.NewService(billing.Config{
		SecretKey:     cfg.StripeSecretKey,
		WebhookSecret: cfg.StripeWebhookSecret,
		PriceID:       cfg.StripePriceID,
	}, userService, limiter)

	return &application{
		cfg:         cfg,
		db:          db,
		repo:        repo,
		userService: userService,
		registry:    registry,
		predictor:   predictor,
		dashboards:  dashboard.NewService(db),
		metrics:     appMetrics,
		logger:      appLogger,
		appCache:    cache.NewCache(cfg.CacheTTL),
		security:    securityMiddleware,
		limiter:     limiter,
		billing:     billingService,
		compression: middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig()),
		redis:       redisClient,
	}, nil
}

func (app *application) newRouter() *gin.Engine {
	r := gin.New()

	// Compression first so every response is eligible
	r.Use(app.compression.Handler())

	// Monitoring before everything else to capture all requests
	r.Use(monitoring.MonitoringMiddleware(app.metrics, app.logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(app.logger))

	// Error handling middleware
	r.Use(errors.ErrorHandler())
	r.Use(errors.RecoveryHandler())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = append(app.cfg.CORSOrigins, "https://js.stripe.com", "https://checkout.stripe.com")
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "Cache-Control", "X-Requested-With"}
	r.Use(cors.New(corsConfig))

	// Security middleware
	r.Use(app.security.SecurityHeaders)
	r.Use(app.security.RequestTimeout)
	r.Use(app.security.ValidateContentType)
	r.Use(app.limiter.IPRateLimitMiddleware())

	// Token parsing runs before the quota checks so they see user_id
	r.Use(app.optionalAuth())
	r.Use(app.security.UserRateLimit)
	r.Use(app.limiter.UserRateLimitMiddleware())

	// Response cache for predictions and dashboard queries
	r.Use(app.appCache.Middleware(app.metrics))

	r.POST("/api/predict", app.security.ValidatePredictRequest, app.handlePredict)

	// Auth endpoints get a second, stricter in-process IP limiter against
	// credential stuffing
	r.POST("/api/auth/register", app.security.RateLimitByIP, app.handleRegister)
	r.POST("/api/auth/login", app.security.RateLimitByIP, app.handleLogin)

	r.GET("/api/applications", app.authRequired(), app.handleListApplications)
	r.GET("/api/applications/:id", app.authRequired(), app.handleGetApplication)
	r.GET("/api/user/stats", app.authRequired(), app.handleUserStats)

	r.GET("/api/dashboard/stats", app.handleDashboardStats)
	r.GET("/api/dashboard/trends", app.handleDashboardTrends)
	r.GET("/api/dashboard/performance", app.handleDashboardPerformance)
	r.GET("/api/dashboard/feature-importance", app.handleFeatureImportance)

	r.GET("/api/models", app.handleModels)

	r.POST("/api/billing/checkout", app.authRequired(),
		app.limiter.EndpointRateLimitMiddleware("billing_checkout", 10), app.billing.HandleCreateCheckout())
	r.POST("/api/billing/webhook", app.billing.HandleWebhook())

	r.GET("/api/ratelimit/status", app.limiter.HandleRateLimitStatus())
	r.POST("/api/admin/ratelimit/reset/:userID", app.authRequired(), app.limiter.HandleAdminResetRateLimit())

	r.GET("/api/health", app.handleHealth)
	r.GET("/health", app.handleHealth)

	// Swagger documentation routes
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Metrics endpoint
	r.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, app.metrics.GetStats())
	})

	// Cache stats endpoints
	r.GET("/cache/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, app.appCache.Stats())
	})

	r.GET("/api/dashboard/cache/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, app.dashboards.GetCacheStats())
	})

	// Pool stats endpoints
	r.GET("/pools/database", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"pool":  "database",
			"stats": app.db.GetPoolStats(),
		})
	})

	r.GET("/pools/compression", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"pool":  "compression",
			"stats": app.compression.GetStats(),
		})
	})

	r.GET("/pools/redis", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"pool":  "redis",
			"stats": app.redis.GetPoolStats(),
		})
	})

	// Performance profiling endpoints (development only)
	if app.cfg.EnableProfiling {
		slog.Info("Enabling performance profiling endpoints")
		r.GET("/debug/pprof/*filepath", gin.WrapF(pprof.Index))
		r.GET("/debug/pprof/cmdline", gin.WrapF(pprof.Cmdline))
		r.GET("/debug/pprof/profile", gin.WrapF(pprof.Profile))
		r.GET("/debug/pprof/symbol", gin.WrapF(pprof.Symbol))
		r.GET("/debug/pprof/trace", gin.WrapF(pprof.Trace))
	}

	return r
}

// optionalAuth attaches user_id to the context when a valid bearer token is
// present. Requests without a token stay anonymous.
func (app *application) optionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.Next()
			return
		}

		userID, err := app.userService.ValidateSessionToken(token)
		if err != nil {
			slog.Debug("Ignoring invalid session token", "error", err)
			c.Next()
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}

// authRequired rejects requests without a valid bearer token
func (app *application) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("user_id") != "" {
			c.Next()
			return
		}

		token := bearerToken(c)
		if token == "" {
			appErr := errors.NewUnauthorizedError("authorization token required")
			c.JSON(appErr.HTTPStatus, appErr)
			c.Abort()
			return
		}

		userID, err := app.userService.ValidateSessionToken(token)
		if err != nil {
			appErr := errors.NewUnauthorizedError("invalid or expired token")
			errors.LogError(c, appErr)
			c.JSON(appErr.HTTPStatus, appErr)
			c.Abort()
			return
		}

		c.Set("user_id", userID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func (app *application) handlePredict(c *gin.Context) {
	reqValue, exists := c.Get("predict_request")
	if !exists {
		appErr := errors.NewInternalError("predict request missing from context", nil)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}
	req := reqValue.(*types.PredictRequest)

	result, err := app.predictor.Predict(req.Features, req.ServiceType, req.SelectedModels)
	if err != nil {
		appErr := errors.NewValidationError("invalid prediction input", err.Error())
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	app.metrics.RecordPrediction(string(result.FinalPrediction))

	userID := c.GetString("user_id")
	applicationID := app.persistPrediction(userID, req, result)

	app.logger.PredictionLogger(
		result.ServiceType,
		string(result.FinalPrediction),
		result.FinalConfidence,
		len(result.ModelVotes),
		time.Duration(result.ProcessingTimeMs)*time.Millisecond,
		applicationID != "",
	)

	response := gin.H{
		"prediction":     result,
		"application_id": applicationID,
	}

	if userID != "" {
		if userStats, err := app.userService.GetUserStats(userID); err == nil {
			response["user_stats"] = userStats
		}
	}

	c.JSON(http.StatusOK, response)
}

// persistPrediction stores the application and prediction rows. Persistence
// failures degrade to a warning, the caller still gets the scored result.
func (app *application) persistPrediction(userID string, req *types.PredictRequest, result *prediction.PredictionResult) string {
	features, err := prediction.NormalizeFeatures(req.Features)
	if err != nil {
		// Predict already normalized the same payload
		return ""
	}

	details := database.ApplicationDetails{
		TimeLimitation:      req.TimeLimitation,
		ResidualFluctuation: req.ResidualFluctuation,
		RequestedAmount:     req.RequestedAmount,
		LoanPurpose:         req.LoanPurpose,
		EmploymentStatus:    req.EmploymentStatus,
		AnnualIncome:        req.AnnualIncome,
	}

	loanApp := database.NewLoanApplication(userID, features, details)
	pred := database.NewPrediction(loanApp.ID, result)

	go func() {
		if err := app.repo.CreateApplication(loanApp); err != nil {
			slog.Warn("Failed to persist loan application", "error", err, "application_id", loanApp.ID)
			app.metrics.IncrementPersistenceError()
			return
		}

		if err := app.repo.SavePrediction(pred); err != nil {
			slog.Warn("Failed to persist prediction", "error", err, "application_id", loanApp.ID)
			app.metrics.IncrementPersistenceError()
		}
	}()

	return loanApp.ID
}

func (app *application) handleRegister(c *gin.Context) {
	var req types.RegisterRequest
	if err := c.BindJSON(&req); err != nil {
		appErr := errors.NewValidationError("invalid registration request", err.Error())
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	if err := app.security.ValidateUsername(req.Username); err != nil {
		appErr := errors.NewValidationError(err.Error())
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	user, err := app.userService.Register(req.Username, req.Email, req.Password, req.FirstName, req.LastName)
	if err != nil {
		appErr := errors.NewValidationError(err.Error())
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	token, err := app.userService.GenerateSessionToken(user.ID)
	if err != nil {
		appErr := errors.ToAppError(err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusCreated, types.AuthResponse{
		Token:    token,
		UserID:   user.ID,
		Username: user.Username,
		IsPaid:   user.IsPaid,
	})
}

func (app *application) handleLogin(c *gin.Context) {
	var req types.LoginRequest
	if err := c.BindJSON(&req); err != nil {
		appErr := errors.NewValidationError("invalid login request", err.Error())
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	user, err := app.userService.Authenticate(req.Username, req.Password)
	if err != nil {
		appErr := errors.NewUnauthorizedError("invalid credentials")
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	token, err := app.userService.GenerateSessionToken(user.ID)
	if err != nil {
		appErr := errors.ToAppError(err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, types.AuthResponse{
		Token:    token,
		UserID:   user.ID,
		Username: user.Username,
		IsPaid:   user.IsPaid,
	})
}

func (app *application) handleListApplications(c *gin.Context) {
	userID := c.GetString("user_id")

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	apps, err := app.repo.GetApplicationsByUser(userID, limit)
	if err != nil {
		appErr := errors.NewDatabaseError("list applications", err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"applications": apps,
		"count":        len(apps),
	})
}

func (app *application) handleGetApplication(c *gin.Context) {
	userID := c.GetString("user_id")
	id := c.Param("id")

	loanApp, err := app.repo.GetApplication(id)
	if err != nil {
		appErr := errors.NewDatabaseError("get application", err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	// Owner-only access, anything else looks like a missing record
	if loanApp == nil || loanApp.UserID != userID {
		appErr := errors.NewNotFoundError("application", id)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	response := gin.H{"application": loanApp}

	if pred, err := app.repo.GetPredictionByApplication(id); err == nil && pred != nil {
		response["prediction"] = pred
	}

	c.JSON(http.StatusOK, response)
}

func (app *application) handleUserStats(c *gin.Context) {
	userID := c.GetString("user_id")

	stats, err := app.userService.GetUserStats(userID)
	if err != nil {
		appErr := errors.ToAppError(err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (app *application) handleDashboardStats(c *gin.Context) {
	stats, err := app.dashboards.GetStats()
	if err != nil {
		appErr := errors.NewDatabaseError("dashboard stats", err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (app *application) handleDashboardTrends(c *gin.Context) {
	months := 6
	if monthsStr := c.Query("months"); monthsStr != "" {
		if m, err := strconv.Atoi(monthsStr); err == nil {
			months = m
		}
	}

	trends, err := app.dashboards.GetMonthlyTrends(months)
	if err != nil {
		appErr := errors.NewDatabaseError("dashboard trends", err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{"trends": trends})
}

func (app *application) handleDashboardPerformance(c *gin.Context) {
	entries, err := app.dashboards.GetModelPerformance()
	if err != nil {
		appErr := errors.NewDatabaseError("model performance", err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{"performance": entries})
}

func (app *application) handleFeatureImportance(c *gin.Context) {
	modelName := c.Query("model")

	entries, err := app.dashboards.GetFeatureImportance(modelName)
	if err != nil {
		appErr := errors.NewDatabaseError("feature importance", err)
		errors.LogError(c, appErr)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, gin.H{"feature_importance": entries})
}

func (app *application) handleModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"models":         app.registry.Info(),
		"default_models": prediction.DefaultModels(),
	})
}

func (app *application) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	deps := gin.H{}
	status := "ok"

	if err := app.db.PingContext(ctx); err != nil {
		deps["database"] = gin.H{"status": "down", "error": err.Error()}
		status = "degraded"
	} else {
		deps["database"] = gin.H{"status": "up"}
	}

	// Redis is optional, its absence degrades rate limiting but not the
	// service itself
	if app.redis != nil && app.redis.IsEnabled() {
		if err := app.redis.HealthCheck(ctx); err != nil {
			deps["redis"] = gin.H{"status": "down", "error": err.Error()}
		} else {
			deps["redis"] = gin.H{"status": "up"}
		}
	} else {
		deps["redis"] = gin.H{"status": "disabled"}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       status,
		"timestamp":    time.Now().Format(time.RFC3339),
		"version":      "1.0.0",
		"dependencies": deps,
		"metrics":      app.metrics.GetStats(),
	})
}
