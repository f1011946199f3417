package httpserver

import (
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/keygate/internal/limiter"
	"github.com/and161185/keygate/internal/service"
)

const (
	requestIDHeader = "X-Request-ID"
	apiKeyHeader    = "X-API-Key"
	apiKeyQuery     = "api_key"
)

// RequestID propagates X-Request-ID or assigns a fresh UUIDv4.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			if u, err := uuid.NewV4(); err == nil {
				id = u.String()
			}
		}
		c.Writer.Header().Set(requestIDHeader, id)
		c.Request = c.Request.WithContext(WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

// AccessLog logs one line per request. The query string is never logged since it may carry an api key.
func AccessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("request_id", RequestIDFromCtx(c.Request.Context())),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("dur", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if status >= http.StatusInternalServerError {
			log.Warn("http", fields...)
			return
		}
		log.Info("http", fields...)
	}
}

// Recover turns a handler panic into a 500.
func Recover(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("path", c.Request.URL.Path),
					zap.String("request_id", RequestIDFromCtx(c.Request.Context())),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Detail: "internal error"})
			}
		}()
		c.Next()
	}
}

// CORS allows any origin. Preflight requests are answered directly.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			// credentials cannot be combined with a literal "*", so the origin is echoed
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		} else {
			c.Header("Access-Control-Allow-Origin", "*")
		}
		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type,Accept,X-API-Key,X-Request-ID")
			c.Header("Access-Control-Max-Age", "86400")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// KeyFunc extracts the identity a bucket is counted against.
type KeyFunc func(*gin.Context) string

// ByClientIP counts per client address.
func ByClientIP(c *gin.Context) string { return c.ClientIP() }

// ByAPIKey counts per presented api key, falling back to the client address.
func ByAPIKey(c *gin.Context) string {
	if k := apiKeyFrom(c); k != "" {
		return "key:" + k
	}
	return "ip:" + c.ClientIP()
}

// RateLimit enforces bucket quotas. Limiter failures are logged and the request is admitted.
func RateLimit(l limiter.Limiter, bucket string, key KeyFunc, m *Metrics, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, retry, err := l.Allow(c.Request.Context(), bucket, key(c))
		if err != nil {
			log.Warn("rate limit check failed", zap.String("bucket", bucket), zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			m.limited(bucket)
			secs := int(math.Ceil(retry.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Detail: "Too many requests"})
			return
		}
		c.Next()
	}
}

func apiKeyFrom(c *gin.Context) string {
	if k := c.Query(apiKeyQuery); k != "" {
		return k
	}
	return c.GetHeader(apiKeyHeader)
}

// RequireAPIKey admits requests carrying an active api key bound to a verified account.
func RequireAPIKey(authz service.Authorizer, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, err := authz.Authorize(c.Request.Context(), apiKeyFrom(c))
		if err != nil {
			respondError(c, log, err, authorizeErrors)
			return
		}
		c.Request = c.Request.WithContext(WithAPIKey(c.Request.Context(), key))
		c.Next()
	}
}
