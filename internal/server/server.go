// Package server wires the economics engine into an HTTP API.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/mbd888/aw3econ/internal/config"
	"github.com/mbd888/aw3econ/internal/cvpi"
	"github.com/mbd888/aw3econ/internal/fees"
	"github.com/mbd888/aw3econ/internal/health"
	"github.com/mbd888/aw3econ/internal/idgen"
	"github.com/mbd888/aw3econ/internal/logging"
	"github.com/mbd888/aw3econ/internal/metrics"
	"github.com/mbd888/aw3econ/internal/ratelimit"
	"github.com/mbd888/aw3econ/internal/reputation"
	"github.com/mbd888/aw3econ/internal/retry"
	"github.com/mbd888/aw3econ/internal/security"
	"github.com/mbd888/aw3econ/internal/settlement"
	"github.com/mbd888/aw3econ/internal/tables"
	"github.com/mbd888/aw3econ/internal/validation"
)

// Version is reported by /health and /v1/info. Overridden from main via ldflags.
var Version = "dev"

const (
	// quoteRetention keeps expired quotes around so late accepts get 410 instead of 404.
	quoteRetention = 24 * time.Hour

	healthCheckTimeout = 2 * time.Second
	dbStatsInterval    = 15 * time.Second
)

// Server wraps the HTTP server and all dependencies
type Server struct {
	cfg    *config.Config
	tables tables.Tables
	db     *sql.DB
	redis  *redis.Client

	feeService  *fees.Service
	feeTimer    *fees.Timer
	cvpiService *cvpi.Service
	repService  *reputation.Service
	calculator  *settlement.Calculator

	connectRetry retry.Policy
	healthChecks *health.Registry
	rateLimiter  *ratelimit.Limiter
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc
	stopOnce     sync.Once

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRedisClient supplies an already connected Redis client, taking
// precedence over REDIS_URL.
func WithRedisClient(client *redis.Client) Option {
	return func(s *Server) {
		s.redis = client
	}
}

// WithConnectRetry overrides the backoff used while waiting for Postgres
// and Redis at startup.
func WithConnectRetry(p retry.Policy) Option {
	return func(s *Server) {
		s.connectRetry = p
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:          cfg,
		logger:       logging.New(cfg.LogLevel, cfg.LogFormat),
		healthChecks: health.NewRegistry(),
		connectRetry: retry.DefaultPolicy(),
	}

	for _, opt := range opts {
		opt(s)
	}

	t, err := cfg.Tables()
	if err != nil {
		return nil, fmt.Errorf("invalid economic tables: %w", err)
	}
	s.tables = t

	// Postgres if DATABASE_URL set, otherwise in-memory
	var (
		quoteStore fees.QuoteStore
		cvpiStore  cvpi.Store
		repStore   reputation.AdjustmentStore
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := s.waitFor("postgres", db.PingContext); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		quoteStore = fees.NewPostgresQuoteStore(db)
		cvpiStore = cvpi.NewPostgresStore(db)
		repStore = reputation.NewPostgresAdjustmentStore(db)
		s.healthChecks.Register("postgres", health.DBChecker("postgres", db, healthCheckTimeout))
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		quoteStore = fees.NewMemoryQuoteStore()
		cvpiStore = cvpi.NewMemoryStore()
		repStore = reputation.NewMemoryAdjustmentStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	// Quotes move to Redis when available; expiry is then handled by key TTLs.
	if s.redis == nil && cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			s.closeConns()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		s.redis = redis.NewClient(redisOpts)
	}
	if s.redis != nil {
		ping := func(ctx context.Context) error { return s.redis.Ping(ctx).Err() }
		if err := s.waitFor("redis", ping); err != nil {
			s.closeConns()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		quoteStore = fees.NewRedisQuoteStore(s.redis, quoteRetention)
		s.healthChecks.Register("redis", health.RedisChecker("redis", s.redis, healthCheckTimeout))
		s.logger.Info("using Redis for fee quotes", "addr", s.redis.Options().Addr)
	} else {
		s.feeTimer = fees.NewTimer(quoteStore, quoteRetention, s.logger)
	}

	if cfg.QuoteSigningSecret == "" {
		s.logger.Warn("QUOTE_SIGNING_SECRET not set, fee quotes will be unsigned")
	}
	s.feeService = fees.NewService(fees.NewEstimator(t), quoteStore, fees.NewSigner(cfg.QuoteSigningSecret), s.logger)
	s.cvpiService = cvpi.NewService(cvpi.NewScorer(t), cvpiStore, s.logger)

	repService, err := reputation.NewService(t, repStore, s.logger)
	if err != nil {
		s.closeConns()
		return nil, fmt.Errorf("failed to build reputation scales: %w", err)
	}
	s.repService = repService
	s.calculator = settlement.NewCalculator(t, repService.Creator())

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)
	return s, nil
}

// waitFor pings a dependency until it answers or the retry policy gives up.
func (s *Server) waitFor(name string, ping func(ctx context.Context) error) error {
	p := s.connectRetry
	p.OnRetry = func(attempt int, err error, wait time.Duration) {
		s.logger.Warn("dependency not reachable, retrying",
			"dependency", name,
			"attempt", attempt,
			"wait", wait.String(),
			"error", err,
		)
	}
	return retry.Do(context.Background(), p, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return ping(ctx)
	})
}

// maskDSN replaces the password in a database URL with "***".
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// closeConns releases connections opened by a New that then failed.
func (s *Server) closeConns() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware(s.cfg.CORSOrigins))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	s.rateLimiter = ratelimit.New(ratelimit.Config{
		RequestsPerMinute: s.cfg.RateLimitRPM,
		BurstSize:         s.cfg.RateLimitBurst,
	})
	s.router.Use(s.rateLimiter.Middleware())

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Reuse an upstream request ID (load balancer, gateway) when it is sane.
		requestID := validation.SanitizeString(c.GetHeader("X-Request-ID"), 128)
		if requestID == "" {
			requestID = idgen.New()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Debug("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	v1 := s.router.Group("/v1")
	v1.GET("/info", s.infoHandler)

	fees.NewHandler(s.feeService).RegisterRoutes(v1)
	cvpi.NewHandler(s.cvpiService).RegisterRoutes(v1)
	settlement.NewHandler(s.calculator).RegisterRoutes(v1)
	reputation.NewHandler(s.repService).RegisterRoutes(v1)

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No route for " + c.Request.Method + " " + c.Request.URL.Path,
		})
	})
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Storage   string          `json:"storage"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, checks := s.healthChecks.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   Version,
		Storage:   s.storageMode(),
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) storageMode() string {
	if s.db != nil {
		return "postgres"
	}
	return "memory"
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// infoHandler publishes the effective economic tables so clients can show
// the same tiers and rates the engine computes with.
func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "aw3econ",
		"description": "Campaign economic model engine",
		"version":     Version,
		"currency":    "USDC",
		"tables":      s.tables,
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the server and blocks until a signal, ctx cancellation or a
// listener error.
func (s *Server) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"env", s.cfg.Env,
			"storage", s.storageMode(),
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	if s.feeTimer != nil {
		go s.feeTimer.Start(runCtx)
	}
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, dbStatsInterval)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		s.stopBackground()
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Give load balancers time to stop sending traffic
	if s.cfg.IsProduction() {
		time.Sleep(5 * time.Second)
	}

	var shutdownErr error
	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			shutdownErr = err
		}
	}

	s.stopBackground()
	s.logger.Info("server stopped")
	return shutdownErr
}

// stopBackground cancels the run context and releases timers and connections.
func (s *Server) stopBackground() {
	s.stopOnce.Do(s.releaseResources)
}

func (s *Server) releaseResources() {
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	if s.feeTimer != nil {
		s.feeTimer.Stop()
		s.logger.Info("quote purge timer stopped")
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
