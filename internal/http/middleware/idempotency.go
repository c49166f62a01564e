// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements idempotency support for inbound events. Chat gateways
// redeliver webhooks on timeouts; an Idempotency-Key lets the bot recognise a
// redelivery and answer it from the stored receipt instead of advancing the
// conversation twice.
//
// The middleware validates the header, resolves the scope the key belongs to
// (the participant identifier), and marks replays so the rate limiter skips
// them. Serving the stored reply is left to the handler.
package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the idempotency key.
const HeaderIdempotencyKey = "Idempotency-Key"

// Context keys used internally to stash idempotency state.
const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemScope  = "idem.scope"
	ctxKeyIdemReplay = "idem.replay" // bool: a stored receipt exists
	ctxKeyRateBypass = "rate.bypass" // bool: skip rate limiting
)

// defaultKeyPattern is an RFC 7230-like token plus common safe characters.
var defaultKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// GetIdempotencyKey returns the validated key stashed by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, _ := c.Get(ctxKeyIdemKey)
	s := asString(v)
	return s, s != ""
}

// GetIdempotencyScope returns the scope resolved for the key, or "".
func GetIdempotencyScope(c *gin.Context) string {
	v, _ := c.Get(ctxKeyIdemScope)
	return asString(v)
}

// IsReplay reports whether a stored receipt exists for this request's key.
func IsReplay(c *gin.Context) bool {
	v, _ := c.Get(ctxKeyIdemReplay)
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures IdempotencyValidator.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters; nil uses ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
	// Scope resolves the namespace of the key, typically the participant
	// identifier from the request body. An empty scope skips the lookup.
	Scope func(*gin.Context) string
}

// IdempotencyLookup reports whether a still-valid receipt exists for
// (scope, key) at now. Lookup errors never block processing.
type IdempotencyLookup func(ctx context.Context, scope, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header when present.
//
//   - scope: resolved for every request, so the rate limiter can key on it
//   - absent header: no lookup
//   - invalid header: 400 bad_idempotency_key
//   - receipt found: replay and rate-bypass flags are set
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultKeyPattern
	}

	return func(c *gin.Context) {
		var scope string
		if opts.Scope != nil {
			scope = opts.Scope(c)
		}
		if scope != "" {
			c.Set(ctxKeyIdemScope, scope)
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": GetRequestID(c),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil && scope != "" {
			if exists, err := lookup(c.Request.Context(), scope, key, time.Now().UTC()); err == nil && exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
				idempotentReplays.Inc()
			}
		}

		c.Next()
	}
}
