package middleware

import (
	"errors"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/phrazzld/matrix-api/internal/api/shared"
	"github.com/phrazzld/matrix-api/internal/cache"
	"github.com/phrazzld/matrix-api/internal/ratelimit"
)

// RateLimitMiddleware applies per-class rate limiting to routes. Requests
// from authenticated users are keyed by user ID; anonymous requests fall
// back to the client IP. A rejection is remembered in the rate-limit cache
// tier until the caller's window resets, so repeat offenders are turned
// away without touching the limiter.
type RateLimitMiddleware struct {
	limiter  *ratelimit.Limiter
	cacheMgr *cache.Manager
}

// NewRateLimitMiddleware creates a RateLimitMiddleware backed by the given
// limiter. cacheMgr may be nil to disable rejection caching.
func NewRateLimitMiddleware(limiter *ratelimit.Limiter, cacheMgr *cache.Manager) *RateLimitMiddleware {
	return &RateLimitMiddleware{limiter: limiter, cacheMgr: cacheMgr}
}

// Limit returns middleware that charges each request to the given class as
// the given operation. Rejected requests get a 429 with a Retry-After
// header.
func (m *RateLimitMiddleware) Limit(class ratelimit.Class, op ratelimit.Operation) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := string(class) + ":" + clientKey(r) + ":" + string(op)

			if seconds, rejected := m.cachedRejection(key); rejected {
				shared.RespondWithErrorAndLog(w, r, http.StatusTooManyRequests,
					"Rate limit exceeded, try again later", nil,
					shared.WithRetryAfter(seconds))
				return
			}

			if err := m.limiter.Allow(class, clientKey(r), op); err != nil {
				var limitErr *ratelimit.Error
				if errors.As(err, &limitErr) {
					m.rememberRejection(key, limitErr.RetryAfter)
					shared.RespondWithErrorAndLog(w, r, http.StatusTooManyRequests,
						"Rate limit exceeded, try again later", err,
						shared.WithRetryAfter(limitErr.RetryAfterSeconds()))
					return
				}
				shared.RespondWithErrorAndLog(w, r, http.StatusTooManyRequests,
					"Rate limit exceeded, try again later", err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// cachedRejection reports whether key was recently rejected, along with the
// remaining retry-after in whole seconds. The cached entry carries the
// window reset time so the hint stays accurate as the window drains.
func (m *RateLimitMiddleware) cachedRejection(key string) (int, bool) {
	if m.cacheMgr == nil {
		return 0, false
	}
	v, ok := m.cacheMgr.Get(cache.TierRateLimit, key)
	if !ok {
		return 0, false
	}
	resetAt, ok := v.(time.Time)
	if !ok {
		return 0, false
	}
	seconds := int(math.Ceil(time.Until(resetAt).Seconds()))
	if seconds < 1 {
		// Window boundary; let the limiter decide.
		return 0, false
	}
	return seconds, true
}

func (m *RateLimitMiddleware) rememberRejection(key string, retryAfter time.Duration) {
	if m.cacheMgr == nil || retryAfter <= 0 {
		return
	}
	// Entry lifetime matches the window remainder, so it can never outlive
	// the rejection it records.
	_ = m.cacheMgr.Set(cache.TierRateLimit, key, time.Now().Add(retryAfter), retryAfter)
}

// clientKey identifies the caller for bucketing. Authenticated requests use
// the user ID so limits follow the account across addresses.
func clientKey(r *http.Request) string {
	if userID, ok := GetUserID(r); ok {
		return userID.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
