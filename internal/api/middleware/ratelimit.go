// ratelimit.go — ограничение частоты запросов к публичным endpoints по IP клиента.
package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	apierrors "github.com/bigkaa/blockevidence/internal/api/errors"
)

const (
	// limiterRegistrySize — максимум отслеживаемых IP.
	limiterRegistrySize = 10000
	// limiterIdleTTL — время жизни лимитера неактивного IP.
	limiterIdleTTL = 10 * time.Minute
)

// rateLimitRejectionsTotal — отклонённые запросы по группе endpoints.
var rateLimitRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "be_rate_limit_rejections_total",
		Help: "Количество запросов, отклонённых лимитером",
	},
	[]string{"scope"},
)

// RateLimiter — token bucket на каждый IP клиента.
type RateLimiter struct {
	scope    string
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
}

// NewRateLimiter создаёт лимитер: rps запросов в секунду, burst — размер всплеска.
// scope — метка метрики (verify, login).
func NewRateLimiter(scope string, rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		scope:    scope,
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: expirable.NewLRU[string, *rate.Limiter](limiterRegistrySize, nil, limiterIdleTTL),
	}
}

// Allow проверяет, допустим ли ещё один запрос с ключом key.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters.Get(key)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
	}
	// Add продлевает TTL активного IP.
	l.limiters.Add(key, lim)
	l.mu.Unlock()

	return lim.Allow()
}

// Middleware возвращает HTTP middleware, отвечающий 429 при превышении лимита.
func (l *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(clientIP(r)) {
				rateLimitRejectionsTotal.WithLabelValues(l.scope).Inc()
				w.Header().Set("Retry-After", strconv.Itoa(l.retryAfterSeconds()))
				apierrors.TooManyRequests(w, "Too many requests, please try again later")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *RateLimiter) retryAfterSeconds() int {
	if l.limit <= 0 {
		return 1
	}
	secs := int(1 / float64(l.limit))
	if secs < 1 {
		return 1
	}
	return secs
}

// clientIP — IP клиента из RemoteAddr. Заголовки прокси учитываются
// chi middleware.RealIP раньше в цепочке, если сервер доверяет прокси.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
