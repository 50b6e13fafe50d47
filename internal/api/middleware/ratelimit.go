package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hugh/issueflow/internal/api/response"
	"github.com/hugh/issueflow/internal/apperr"
	"github.com/hugh/issueflow/internal/cache"
	"github.com/hugh/issueflow/internal/metrics"
	"github.com/hugh/issueflow/pkg/util"
)

// KeyGenerator names the caller a request is counted against.
type KeyGenerator func(r *http.Request) string

// RateLimitOptions parameterizes a fixed-window limiter.
type RateLimitOptions struct {
	// Name labels the limiter in logs and metrics.
	Name                   string
	Window                 time.Duration
	Max                    int
	KeyGenerator           KeyGenerator
	SkipSuccessfulRequests bool
	SkipFailedRequests     bool
	Prefix                 string
	Message                string
}

// RateLimiter counts requests per key in fixed windows of opts.Window. A
// burst straddling a window boundary is not smoothed. When the counter store
// is unavailable requests are let through.
type RateLimiter struct {
	store   cache.CounterStore
	opts    RateLimitOptions
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewRateLimiter creates a rate limiter backed by store
func NewRateLimiter(store cache.CounterStore, opts RateLimitOptions, logger *slog.Logger, m *metrics.Metrics) *RateLimiter {
	if opts.Max <= 0 {
		opts.Max = 100 // Default
	}
	// Windows are counted in whole milliseconds.
	if opts.Window < time.Millisecond {
		opts.Window = 15 * time.Minute
	}
	if opts.KeyGenerator == nil {
		opts.KeyGenerator = KeyByIP
	}
	if opts.Name == "" {
		opts.Name = "api"
	}
	if opts.Prefix == "" {
		opts.Prefix = "rl:" + opts.Name + ":"
	}
	if opts.Message == "" {
		opts.Message = "Too many requests, please try again later."
	}
	if logger == nil {
		logger = util.NopLogger()
	}

	return &RateLimiter{
		store:   store,
		opts:    opts,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

func (rl *RateLimiter) windowSeconds() int64 {
	return int64(math.Ceil(rl.opts.Window.Seconds()))
}

// Handler wraps next with the limiter.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	limited := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		windowMs := rl.opts.Window.Milliseconds()
		window := rl.now().UnixMilli() / windowMs
		id := rl.opts.Prefix + rl.opts.KeyGenerator(r) + ":" + strconv.FormatInt(window, 10)

		current, err := rl.store.Get(ctx, id)
		if err != nil {
			rl.failOpen(ctx, "get", id, err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := rl.opts.Max - int(current+1)
		if remaining < 0 {
			remaining = 0
		}
		reset := time.UnixMilli((window + 1) * windowMs)

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(rl.opts.Max))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.UnixMilli(), 10))

		if current >= int64(rl.opts.Max) {
			h.Set("Retry-After", strconv.FormatInt(rl.windowSeconds(), 10))
			rl.metrics.RateLimited(rl.opts.Name)
			rl.logger.Info("rate limit exceeded", "limiter", rl.opts.Name, "key", id)
			response.Error(w, r, apperr.RateLimited(rl.opts.Message).WithDetails(map[string]any{
				"retryAfter": rl.windowSeconds(),
			}))
			return
		}

		if _, err := rl.store.Incr(ctx, id); err != nil {
			rl.failOpen(ctx, "incr", id, err)
			next.ServeHTTP(w, r)
			return
		}
		// Refreshing the expiry on every hit converges even if an earlier
		// expire was lost.
		if err := rl.store.Expire(ctx, id, time.Duration(rl.windowSeconds())*time.Second); err != nil {
			rl.logger.Warn("rate limit expire failed", "limiter", rl.opts.Name, "key", id, "error", err)
		}

		if rl.opts.SkipSuccessfulRequests || rl.opts.SkipFailedRequests {
			OnResponse(ctx, func(status int) {
				if (rl.opts.SkipSuccessfulRequests && status < 400) || (rl.opts.SkipFailedRequests && status >= 400) {
					go rl.refund(id)
				}
			})
		}

		rc := FromContext(ctx).WithRateLimit(RateLimitInfo{Limit: rl.opts.Max, Remaining: remaining, Reset: reset})
		next.ServeHTTP(w, withRequestContext(r, rc))
	})

	if !rl.opts.SkipSuccessfulRequests && !rl.opts.SkipFailedRequests {
		return limited
	}
	// Refunds need the final status, so make sure a hook registry exists.
	withHooks := ResponseHooks(limited)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hasResponseHooks(r.Context()) {
			limited.ServeHTTP(w, r)
			return
		}
		withHooks.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) refund(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rl.store.Decr(ctx, id); err != nil {
		rl.logger.Warn("rate limit refund failed", "limiter", rl.opts.Name, "key", id, "error", err)
	}
}

func (rl *RateLimiter) failOpen(ctx context.Context, op, id string, err error) {
	rl.metrics.RateLimitStoreError(rl.opts.Name)
	util.LoggerFrom(ctx).Error("rate limit store unavailable, allowing request",
		"limiter", rl.opts.Name,
		"op", op,
		"key", id,
		"error", err,
	)
}

// KeyByIP counts requests per client address.
func KeyByIP(r *http.Request) string {
	return "ip:" + getClientIP(r)
}

// KeyByUser counts per authenticated user, falling back to the client IP.
func KeyByUser(r *http.Request) string {
	if id, ok := GetUserID(r.Context()); ok {
		return "user:" + id.String()
	}
	return KeyByIP(r)
}

// KeyByOrganization counts per resolved tenant, falling back to the user and
// then the IP.
func KeyByOrganization(r *http.Request) string {
	if tc, ok := GetTenant(r.Context()); ok {
		return "org:" + tc.Organization.ID.String()
	}
	return KeyByUser(r)
}

const maxEmailKeyBody = 1 << 20

// KeyByEmail counts per email submitted in a JSON body, falling back to the
// IP. The body is restored for the handler.
func KeyByEmail(r *http.Request) string {
	if r.Body == nil || r.Body == http.NoBody {
		return KeyByIP(r)
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxEmailKeyBody))
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return KeyByIP(r)
	}

	var body struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return KeyByIP(r)
	}
	email := strings.ToLower(strings.TrimSpace(body.Email))
	if email == "" {
		return KeyByIP(r)
	}
	return "email:" + email
}

func APIRateLimit(limit int, window time.Duration) RateLimitOptions {
	return RateLimitOptions{Name: "api", Max: limit, Window: window, KeyGenerator: KeyByIP}
}

func UserRateLimit(limit int, window time.Duration) RateLimitOptions {
	return RateLimitOptions{Name: "user", Max: limit, Window: window, KeyGenerator: KeyByUser}
}

func OrganizationRateLimit(limit int, window time.Duration) RateLimitOptions {
	return RateLimitOptions{Name: "organization", Max: limit, Window: window, KeyGenerator: KeyByOrganization}
}

// AuthRateLimit guards credential endpoints. Successful attempts are
// refunded so only failures count.
func AuthRateLimit(limit int, window time.Duration) RateLimitOptions {
	return RateLimitOptions{
		Name:                   "auth",
		Max:                    limit,
		Window:                 window,
		KeyGenerator:           KeyByEmail,
		SkipSuccessfulRequests: true,
		Message:                "Too many authentication attempts, please try again later.",
	}
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	// Check X-Forwarded-For header (set by proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP in the list (original client)
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}

	// Check X-Real-IP header (set by some proxies)
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	// Fall back to RemoteAddr
	ip := r.RemoteAddr
	// Remove port if present
	if i := strings.LastIndexByte(ip, ':'); i >= 0 {
		return ip[:i]
	}
	return ip
}
