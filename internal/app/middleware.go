package app

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"

	"github.com/garyellow/kmutt-form-bot/internal/ctxutil"
	"github.com/garyellow/kmutt-form-bot/internal/logger"
	"github.com/garyellow/kmutt-form-bot/internal/metrics"
	"github.com/garyellow/kmutt-form-bot/internal/ratelimit"
)

// requestIDHeaders are checked in order; the first non-empty one is reused.
var requestIDHeaders = []string{"X-Request-Id", "X-Correlation-Id"}

// securityHeadersMiddleware adds security headers to responses.
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("X-Permitted-Cross-Domain-Policies", "none")
		c.Next()
	}
}

// corsMiddleware allows any origin, method and header without credentials,
// which is what the browser chat widget needs. Preflights end here.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		if c.Request.Method != http.MethodOptions {
			c.Next()
			return
		}
		method := c.GetHeader("Access-Control-Request-Method")
		if method == "" {
			method = "GET, POST, OPTIONS"
		}
		headers := c.GetHeader("Access-Control-Request-Headers")
		if headers == "" {
			headers = "*"
		}
		c.Header("Access-Control-Allow-Methods", method)
		c.Header("Access-Control-Allow-Headers", headers)
		c.Header("Access-Control-Max-Age", "600")
		c.AbortWithStatus(http.StatusNoContent)
	}
}

// requestContextMiddleware puts the request id and client IP on the request
// context so every slog.*Context call below carries them, and echoes the id.
func requestContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		var requestID string
		for _, h := range requestIDHeaders {
			if requestID = c.GetHeader(h); requestID != "" {
				break
			}
		}
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-Id", requestID)

		ctx := ctxutil.WithRequestID(c.Request.Context(), requestID)
		ctx = ctxutil.WithClientIP(ctx, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// loggingMiddleware logs HTTP requests with status-based log levels:
// 5xx=Error, 4xx=Warn, 404=Debug, 3xx/2xx=Debug.
func loggingMiddleware(log *logger.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		entry := log.WithField("http_method", method).
			WithField("http_path", path).
			WithField("http_status", status).
			WithField("duration_ms", time.Since(start).Milliseconds())

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx := c.Request.Context()
		switch {
		case status >= 500:
			m.RecordHTTPError("server", route)
			entry.ErrorContext(ctx, "HTTP request failed")
		case status == http.StatusNotFound:
			entry.DebugContext(ctx, "HTTP request not found")
		case status >= 400:
			m.RecordHTTPError(errorType(status), route)
			entry.WarnContext(ctx, "HTTP request rejected")
		default:
			entry.DebugContext(ctx, "HTTP request completed")
		}
	}
}

func errorType(status int) string {
	switch status {
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusUnauthorized:
		return "unauthorized"
	}
	return "client"
}

// rateLimitMiddleware throttles per client IP. onLimited writes the
// route's own 429 body.
func rateLimitMiddleware(limiter *ratelimit.KeyedLimiter, onLimited func(*gin.Context)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if limiter.Allow(ip) {
			c.Next()
			return
		}
		wait := limiter.RetryAfter(ip)
		c.Header("Retry-After", strconv.Itoa(max(1, int(math.Ceil(wait.Seconds())))))
		onLimited(c)
		c.Abort()
	}
}

// compressJSON gzips JSON responses for clients that accept it. Documents
// are already zip containers and pass through untouched.
func compressJSON(h http.Handler) (http.Handler, error) {
	wrap, err := gzhttp.NewWrapper(gzhttp.ContentTypes([]string{"application/json"}))
	if err != nil {
		return nil, err
	}
	return wrap(h), nil
}
