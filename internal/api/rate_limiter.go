package api

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// Tier selects the per-caller rate limit. Callers identify via the
// X-Api-Tier header; unknown or missing tiers get the free limit.
type Tier string

const (
	TierFree    Tier = "free"
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
)

// RateLimiter manages rate limiting for API requests
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex

	// Rate limits per tier (requests per second)
	freeTierLimit    rate.Limit
	basicTierLimit   rate.Limit
	premiumTierLimit rate.Limit

	// Burst size (number of requests that can be made in a burst)
	burstSize int
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(freeTierRPS, basicTierRPS, premiumTierRPS int) *RateLimiter {
	return &RateLimiter{
		limiters:         make(map[string]*rate.Limiter),
		freeTierLimit:    rate.Limit(freeTierRPS),
		basicTierLimit:   rate.Limit(basicTierRPS),
		premiumTierLimit: rate.Limit(premiumTierRPS),
		burstSize:        10, // Allow bursts of 10 requests
	}
}

// getLimiter returns the rate limiter for a specific caller and tier
func (rl *RateLimiter) getLimiter(caller string, tier Tier) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[caller]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	var limit rate.Limit
	switch tier {
	case TierPremium:
		limit = rl.premiumTierLimit
	case TierBasic:
		limit = rl.basicTierLimit
	default:
		limit = rl.freeTierLimit
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check in case another goroutine created it
	if limiter, exists := rl.limiters[caller]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(limit, rl.burstSize)
	rl.limiters[caller] = limiter

	return limiter
}

// RateLimitMiddleware creates a middleware that enforces rate limiting
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Callers identify by their address; anonymous requests share a
			// per-IP bucket at the free limit.
			caller := r.Header.Get("X-Caller-Address")
			if caller == "" {
				caller = r.RemoteAddr
			}

			tier := Tier(r.Header.Get("X-Api-Tier"))
			if tier == "" {
				tier = TierFree
			}

			limiter := rl.getLimiter(caller, tier)

			if !limiter.Allow() {
				respondError(w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded. Please try again later.", map[string]interface{}{
					"tier":  tier,
					"limit": limiter.Limit(),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
