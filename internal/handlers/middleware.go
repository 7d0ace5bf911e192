package handlers

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// maxTrackedClients bounds the number of token buckets kept in memory. The
// least recently seen client is evicted first.
const maxTrackedClients = 10000

// IPRateLimiter keeps one token bucket per client IP.
type IPRateLimiter struct {
	mu         sync.Mutex
	limiters   *lru.Cache[string, *rate.Limiter]
	rate       rate.Limit
	burst      int
	trustProxy bool
}

// NewIPRateLimiter keys clients by the connection address. With trustProxy
// set, X-Forwarded-For and X-Real-IP are honoured instead; only enable it
// behind a proxy that overwrites those headers.
func NewIPRateLimiter(rps float64, burst int, trustProxy bool) *IPRateLimiter {
	return newIPRateLimiter(rps, burst, trustProxy, maxTrackedClients)
}

func newIPRateLimiter(rps float64, burst int, trustProxy bool, size int) *IPRateLimiter {
	cache, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		panic(err) // size is never <= 0
	}
	return &IPRateLimiter{
		limiters:   cache,
		rate:       rate.Limit(rps),
		burst:      burst,
		trustProxy: trustProxy,
	}
}

func (i *IPRateLimiter) limiter(ip string) *rate.Limiter {
	i.mu.Lock()
	defer i.mu.Unlock()

	l, ok := i.limiters.Get(ip)
	if !ok {
		l = rate.NewLimiter(i.rate, i.burst)
		i.limiters.Add(ip, l)
	}
	return l
}

func (i *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !i.limiter(clientIP(r, i.trustProxy)).Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			return strings.TrimSpace(strings.Split(xff, ",")[0])
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RequestLogger logs one line per request.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("ip", clientIP(r, false)),
				zap.String("forwarded_for", r.Header.Get("X-Forwarded-For")),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
