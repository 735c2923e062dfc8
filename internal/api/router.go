package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/wonny/aegis-index/internal/api/handlers"
	"github.com/wonny/aegis-index/pkg/logger"
	"github.com/wonny/aegis-index/pkg/redis"
)

// Handlers bundles the endpoint handlers
type Handlers struct {
	Index     *handlers.IndexHandler
	Rebalance *handlers.RebalanceHandler
	Strategy  *handlers.StrategyHandler
	Risk      *handlers.RiskHandler
	Timeline  *handlers.TimelineHandler // nil이면 저장 타임라인 조회 미노출
	Metrics   http.Handler // nil이면 /metrics 미노출
}

// RouterOptions controls cross-cutting middleware
type RouterOptions struct {
	RateLimitPerSecond float64
	RateLimitBurst     int
	RequestTimeout     time.Duration
	ComputeLimiter     *redis.RateLimiter // 인스턴스 간 공유 한도 (선택)
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, opts RouterOptions, log *logger.Logger) http.Handler {
	log = logger.OrNop(log)
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")
	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()
	if opts.RequestTimeout > 0 {
		api.Use(timeoutMiddleware(opts.RequestTimeout))
	}

	// 계산 엔드포인트는 토큰 버킷으로 보호
	var limits []mux.MiddlewareFunc
	if opts.RateLimitPerSecond > 0 {
		burst := max(opts.RateLimitBurst, 1)
		limits = append(limits, rateLimitMiddleware(rate.NewLimiter(rate.Limit(opts.RateLimitPerSecond), burst)))
	}
	if opts.ComputeLimiter != nil {
		limits = append(limits, sharedLimitMiddleware(opts.ComputeLimiter, redis.ComputeRateLimit, log))
	}
	limited := func(fn http.HandlerFunc) http.Handler {
		var next http.Handler = fn
		for i := len(limits) - 1; i >= 0; i-- {
			next = limits[i](next)
		}
		return next
	}

	// Index / rebalance
	api.Handle("/index/compute", limited(h.Index.Compute)).Methods("POST")
	api.Handle("/rebalance/check", limited(h.Rebalance.Check)).Methods("POST")
	api.Handle("/risk/metrics", limited(h.Risk.Metrics)).Methods("POST")

	// Strategy
	api.HandleFunc("/strategy", h.Strategy.Get).Methods("GET")
	api.HandleFunc("/strategy", h.Strategy.Put).Methods("PUT")
	api.HandleFunc("/strategy/override", h.Strategy.Override).Methods("POST")

	// Risk
	api.HandleFunc("/risk/latest", h.Risk.Latest).Methods("GET")

	// Stored timeline
	if h.Timeline != nil {
		api.HandleFunc("/index/values", h.Timeline.Values).Methods("GET")
		api.HandleFunc("/index/latest", h.Timeline.Latest).Methods("GET")
		api.HandleFunc("/index/allocations", h.Timeline.Allocations).Methods("GET")
		api.HandleFunc("/index/runs/{id}/events", h.Timeline.Events).Methods("GET")
	}

	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "aegis-index-api",
	})
}

// statusRecorder captures the response status for logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					writeError(w, http.StatusInternalServerError, "Internal server error")
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// timeoutMiddleware bounds the request context
func timeoutMiddleware(d time.Duration) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// rateLimitMiddleware rejects requests beyond the local token bucket
func rateLimitMiddleware(limiter *rate.Limiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// sharedLimitMiddleware applies the Redis fixed window shared by all instances.
// Redis errors fail open.
func sharedLimitMiddleware(limiter *redis.RateLimiter, cfg redis.RateLimitConfig, log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := limiter.Allow(r.Context(), cfg)
			if err != nil {
				log.WithError(err).Warn("shared rate limit unavailable")
			} else if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func methodNotAllowedHandler(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method "+r.Method+" not allowed")
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(handlers.ErrorResponse{Error: message})
}
