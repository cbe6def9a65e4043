package middlewares

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/fieldsync/config"
	"github.com/mmdatafocus/fieldsync/utils"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const CorrelationHeader = "x-correlation-id"

// CorrelationMiddleware attaches the caller's correlation id, or a new one, to
// the request context and echoes it back.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader(CorrelationHeader)
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header(CorrelationHeader, cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	}
}

// ReadinessGate answers 503 until the database is connected, and Redis too
// when it is required. /healthz always passes.
func ReadinessGate(requireRedis bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || (requireRedis && config.GetRedisDB() == nil) {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	}
}

// ErrorLogger logs only requests that ended with errors or a 5xx.
func ErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		if len(c.Errors) == 0 && status < http.StatusInternalServerError {
			return
		}
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		tenantId, _ := utils.GetTenantIdFromContext(c.Request.Context())
		entry := logger.WithFields(logrus.Fields{
			"method":         c.Request.Method,
			"path":           c.FullPath(),
			"status":         status,
			"latency_ms":     time.Since(start).Milliseconds(),
			"correlation_id": cid,
			"tenant_id":      tenantId,
		})
		if len(c.Errors) > 0 {
			entry.Error(c.Errors.String())
			return
		}
		entry.Error("request failed")
	}
}

// CorsConfig allows every origin outside production. In production only the
// comma separated CORS_ALLOWED_ORIGINS are allowed, none when it is unset.
func CorsConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		if len(corsConfig.AllowOrigins) == 0 {
			corsConfig.AllowOrigins = []string{}
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization", CorrelationHeader)
	corsConfig.AddExposeHeaders("Content-Length", "Content-Disposition", CorrelationHeader, "X-Fieldsync-Offline")
	corsConfig.AllowCredentials = true
	return corsConfig
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// RateLimiter counts requests per tenant (or client IP before login) in a
// fixed Redis window.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRateLimiter(client *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// RateLimiterFromEnv returns nil unless RATE_LIMIT_ENABLED is set and Redis is connected.
func RateLimiterFromEnv() *RateLimiter {
	if !config.EnvBoolDefault("RATE_LIMIT_ENABLED", false) || config.GetRedisDB() == nil {
		return nil
	}
	limit := config.EnvIntDefault("RATE_LIMIT_MAX_REQUESTS", 600)
	windowSec := config.EnvIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	return NewRateLimiter(config.GetRedisDB(), int64(limit), time.Duration(windowSec)*time.Second)
}

func (rl *RateLimiter) key(c *gin.Context) string {
	if tenantId, ok := utils.GetTenantIdFromContext(c.Request.Context()); ok && tenantId != "" {
		return "ratelimit:tenant:" + tenantId
	}
	return "ratelimit:ip:" + c.ClientIP()
}

func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		key := rl.key(c)

		count, err := rl.client.Incr(ctx, key).Result()
		if err != nil {
			// the limiter never takes the service down with it
			config.LogError(config.GetLogger(), "requestMiddleware.go", "RateLimiter", "Incr", key, err)
			c.Next()
			return
		}
		if count == 1 {
			if err := rl.client.Expire(ctx, key, rl.window).Err(); err != nil {
				config.LogError(config.GetLogger(), "requestMiddleware.go", "RateLimiter", "Expire", key, err)
			}
		}
		if count > rl.limit {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds", int(rl.window.Seconds())),
			})
			return
		}
		c.Next()
	}
}
