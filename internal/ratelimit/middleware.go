package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/noah-isme/toko-cart/internal/common"
)

// Limit is the number of events allowed per Window.
type Limit struct {
	Window time.Duration
	Max    int
}

// Enabled reports whether the limit constrains anything.
func (l Limit) Enabled() bool { return l.Window > 0 && l.Max > 0 }

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Allower decides whether another event for key fits in the limit.
type Allower interface {
	Allow(ctx context.Context, key string, limit Limit) (Decision, error)
}

// Handler rejects requests over Limit with 429 RATE_LIMITED. A failing
// Limiter lets the request through and reports the error to OnError.
type Handler struct {
	Limiter Allower
	Limit   Limit
	Key     func(*http.Request) string
	OnError func(error)
}

func (h Handler) Middleware(next http.Handler) http.Handler {
	if h.Limiter == nil || h.Key == nil || !h.Limit.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d, err := h.Limiter.Allow(r.Context(), h.Key(r), h.Limit)
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		hdr := w.Header()
		hdr.Set("X-RateLimit-Limit", strconv.Itoa(h.Limit.Max))
		hdr.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		hdr.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		if d.Allowed {
			next.ServeHTTP(w, r)
			return
		}
		wait := int(math.Ceil(time.Until(d.ResetAt).Seconds()))
		hdr.Set("Retry-After", strconv.Itoa(max(wait, 1)))
		common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many voucher attempts, slow down", nil)
	})
}

// KeyByUserOrIP keys limits by authenticated user, else by client IP.
func KeyByUserOrIP(scope string) func(*http.Request) string {
	return func(r *http.Request) string {
		if uid, ok := common.UserID(r.Context()); ok {
			return scope + ":user:" + uid
		}
		return scope + ":ip:" + common.ClientIP(r)
	}
}
