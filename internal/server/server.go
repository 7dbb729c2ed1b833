package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	configparser "github.com/orgoj/lokilog/internal/config"
	"github.com/orgoj/lokilog/internal/handler"
	"github.com/orgoj/lokilog/internal/iputil"
	"github.com/orgoj/lokilog/internal/logger"
	"github.com/orgoj/lokilog/internal/lokilog"
	"golang.org/x/time/rate"
)

const (
	shutdownTimeout = 10 * time.Second
	// limiters idle for this long are dropped
	limiterIdleTTL = 10 * time.Minute
)

// clientLimiter is the rate limiter of one client IP.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Dependencies holds the dependencies needed by the server.
type Dependencies struct {
	Config    *configparser.Config
	Manager   *lokilog.Manager
	AppLogger *logger.AppLogger
}

// Server is the relay HTTP server.
type Server struct {
	router    *gin.Engine
	config    *configparser.Config
	appLogger *logger.AppLogger
	resolver  *iputil.Resolver
	deps      Dependencies
	// Rate limiting specific
	limiters   map[string]*clientLimiter
	limiterMu  sync.Mutex
	lastSweep  time.Time
	rateLimit  rate.Limit
	burstLimit int
	now        func() time.Time
}

// NewServer creates a new server instance with its dependencies.
func NewServer(deps Dependencies) *Server {
	if deps.Config == nil {
		panic("server: Config dependency cannot be nil")
	}
	if deps.Manager == nil {
		panic("server: Manager dependency cannot be nil")
	}
	if deps.AppLogger == nil {
		panic("server: AppLogger dependency cannot be nil")
	}

	relay := deps.Config.Relay
	resolver, err := iputil.NewResolver(relay.TrustedProxies, relay.ClientIPHeader)
	if err != nil {
		// validateConfig has already checked the list
		panic(fmt.Sprintf("server: failed to parse pre-validated trusted proxies: %v", err))
	}

	if relay.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(gin.LoggerWithConfig(gin.LoggerConfig{SkipPaths: []string{"/health"}}))

	s := &Server{
		router:    router,
		config:    deps.Config,
		appLogger: deps.AppLogger,
		resolver:  resolver,
		deps:      deps,
		limiters:  make(map[string]*clientLimiter),
		now:       time.Now,
	}

	if relay.RequestLimits.RateLimit > 0 {
		// requests per minute to requests per second, bursts up to the per-minute limit
		s.rateLimit = rate.Limit(float64(relay.RequestLimits.RateLimit) / 60.0)
		s.burstLimit = relay.RequestLimits.RateLimit
		s.appLogger.Info("Rate limiting enabled for /log: Rate=%.2f req/sec, Burst=%d", float64(s.rateLimit), s.burstLimit)
	} else {
		s.rateLimit = rate.Inf
		s.appLogger.Info("Rate limiting disabled for /log.")
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		s.appLogger.Health("Health endpoint called from %s", s.resolver.ClientIP(c.Request))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.router.HEAD("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	s.router.GET("/version", handler.VersionHandler)

	logGroup := s.router.Group("/log")
	if s.rateLimit != rate.Inf {
		logGroup.Use(s.rateLimitMiddleware())
	}
	logGroup.POST("", handler.NewLogHandler(handler.LogHandlerDependencies{
		Manager:   s.deps.Manager,
		Config:    s.config,
		AppLogger: s.appLogger,
		Resolver:  s.resolver,
	}))
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// requestIDMiddleware keeps an incoming X-Request-ID or assigns a new one.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(handler.RequestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

// rateLimitMiddleware creates a Gin middleware for rate limiting based on IP.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := s.resolver.ClientIP(c.Request)

		limiter := s.limiterFor(ip)
		if !limiter.Allow() {
			s.appLogger.Info("Rate limit exceeded for IP: %s", ip)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}

		c.Next()
	}
}

// limiterFor returns the limiter of ip. Limiters not used for
// limiterIdleTTL are swept at most once per limiterIdleTTL.
func (s *Server) limiterFor(ip string) *rate.Limiter {
	now := s.now()

	s.limiterMu.Lock()
	defer s.limiterMu.Unlock()

	if now.Sub(s.lastSweep) >= limiterIdleTTL {
		for key, cl := range s.limiters {
			if now.Sub(cl.lastSeen) >= limiterIdleTTL {
				delete(s.limiters, key)
			}
		}
		s.lastSweep = now
	}

	cl, exists := s.limiters[ip]
	if !exists {
		cl = &clientLimiter{limiter: rate.NewLimiter(s.rateLimit, s.burstLimit)}
		s.limiters[ip] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Relay.Host, s.config.Relay.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.appLogger.Info("Starting relay on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.appLogger.Info("Shutting down relay")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
