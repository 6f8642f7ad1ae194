package api

import (
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/killallgit/sensitive-data-api/api/types"
)

// DefaultMaxBodyBytes caps request bodies when no limit is configured
const DefaultMaxBodyBytes int64 = 1024 * 1024

// clientLimiter holds a rate limiter and its last accessed time
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// CORS allows the configured origins; "*" or an empty list allows any origin
func CORS(origins ...string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(origins))
	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+types.UserIDHeader)
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func RequestSizeLimit() gin.HandlerFunc {
	return RequestSizeLimitWithSize(DefaultMaxBodyBytes)
}

// RequestSizeLimitWithSize rejects declared oversize bodies up front and
// caps the rest while they are read
func RequestSizeLimitWithSize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodPost ||
			c.Request.Method == http.MethodPut ||
			c.Request.Method == http.MethodPatch {
			if c.Request.ContentLength > maxBytes {
				c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, types.ErrorResponse{
					Status:  types.StatusError,
					Message: "Request body too large",
					Error:   "PAYLOAD_TOO_LARGE",
				})
				return
			}
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// PerClientRateLimit limits each client IP to rps requests per second within scope.
// Scopes keep separate budgets so a busy endpoint group does not starve another.
func PerClientRateLimit(rateLimiters *sync.Map, cleanupStop chan struct{}, cleanupInitialized *sync.Once, scope string, rps int, burst int) gin.HandlerFunc {
	cleanupInitialized.Do(func() {
		go cleanupOldRateLimiters(rateLimiters, cleanupStop)
	})
	if rps < 1 {
		rps = 1
	}
	if burst < 1 {
		burst = rps
	}

	return func(c *gin.Context) {
		key := scope + "|" + c.ClientIP()

		limiterInterface, ok := rateLimiters.Load(key)
		if !ok {
			fresh := &clientLimiter{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
			limiterInterface, _ = rateLimiters.LoadOrStore(key, fresh)
		}

		cl := limiterInterface.(*clientLimiter)
		cl.lastSeen.Store(time.Now().UnixNano())

		if !cl.limiter.Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, types.ErrorResponse{
				Status:  types.StatusError,
				Message: "Rate limit exceeded. Please slow down your requests.",
				Error:   "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

func cleanupOldRateLimiters(rateLimiters *sync.Map, cleanupStop chan struct{}) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			evictIdleLimiters(rateLimiters, time.Now(), 10*time.Minute)
		case <-cleanupStop:
			return
		}
	}
}

func evictIdleLimiters(rateLimiters *sync.Map, now time.Time, idle time.Duration) {
	rateLimiters.Range(func(key, value interface{}) bool {
		cl, ok := value.(*clientLimiter)
		if !ok || now.Sub(time.Unix(0, cl.lastSeen.Load())) > idle {
			rateLimiters.Delete(key)
		}
		return true
	})
}

// RequestLogger logs one structured line per request
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if user := types.UserID(c); user != "" {
			fields = append(fields, zap.String("user_id", user))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", strings.TrimSpace(c.Errors.String())))
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			log.Error("request", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}
