package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type idemProbe struct {
	key    string
	scope  string
	replay bool
	bypass bool
}

func idemRouter(opts IdempotencyOptions, lookup IdempotencyLookup, probe *idemProbe) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.POST("/inbound", IdempotencyValidator(opts, lookup), func(c *gin.Context) {
		probe.key, _ = GetIdempotencyKey(c)
		probe.scope = GetIdempotencyScope(c)
		probe.replay = IsReplay(c)
		probe.bypass = IsRateBypass(c)
		c.Status(http.StatusOK)
	})
	return r
}

func postInbound(r http.Handler, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/inbound?identifier=42", strings.NewReader(`{}`))
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func queryScope(c *gin.Context) string { return c.Query("identifier") }

func TestIdempotencyValidator_NoHeader_ScopeOnly(t *testing.T) {
	called := false
	lookup := func(context.Context, string, string, time.Time) (bool, error) {
		called = true
		return true, nil
	}
	var p idemProbe
	w := postInbound(idemRouter(IdempotencyOptions{Scope: queryScope}, lookup, &p), "")
	if w.Code != http.StatusOK || called || p.key != "" || p.replay {
		t.Fatalf("code=%d called=%v probe=%+v", w.Code, called, p)
	}
	if p.scope != "42" {
		t.Fatalf("scope should be resolved without a key, got %q", p.scope)
	}
}

func TestIdempotencyValidator_InvalidKey(t *testing.T) {
	var p idemProbe
	r := idemRouter(IdempotencyOptions{MaxLen: 8, Pattern: regexp.MustCompile(`^[a-z]+$`)}, nil, &p)

	for _, key := range []string{"toolongkey", "UPPER", "bad key"} {
		w := postInbound(r, key)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("key %q: code=%d", key, w.Code)
		}
		var body map[string]string
		_ = json.Unmarshal(w.Body.Bytes(), &body)
		if body["code"] != "bad_idempotency_key" || body["request_id"] == "" {
			t.Fatalf("key %q: body=%v", key, body)
		}
	}
}

func TestIdempotencyValidator_ReplayDetected(t *testing.T) {
	var gotScope, gotKey string
	lookup := func(_ context.Context, scope, key string, _ time.Time) (bool, error) {
		gotScope, gotKey = scope, key
		return true, nil
	}
	var p idemProbe
	w := postInbound(idemRouter(IdempotencyOptions{Scope: queryScope}, lookup, &p), "evt-1")
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d", w.Code)
	}
	if gotScope != "42" || gotKey != "evt-1" {
		t.Fatalf("lookup args = %q %q", gotScope, gotKey)
	}
	if p.key != "evt-1" || p.scope != "42" || !p.replay || !p.bypass {
		t.Fatalf("probe = %+v", p)
	}
}

func TestIdempotencyValidator_LookupMissOrError(t *testing.T) {
	cases := map[string]IdempotencyLookup{
		"miss": func(context.Context, string, string, time.Time) (bool, error) { return false, nil },
		"error": func(context.Context, string, string, time.Time) (bool, error) {
			return true, errors.New("db down")
		},
	}
	for name, lookup := range cases {
		var p idemProbe
		w := postInbound(idemRouter(IdempotencyOptions{Scope: queryScope}, lookup, &p), "evt-1")
		if w.Code != http.StatusOK || p.replay || p.bypass || p.key != "evt-1" {
			t.Fatalf("%s: code=%d probe=%+v", name, w.Code, p)
		}
	}
}

func TestIdempotencyValidator_NoScope_SkipsLookup(t *testing.T) {
	called := false
	lookup := func(context.Context, string, string, time.Time) (bool, error) {
		called = true
		return true, nil
	}
	var p idemProbe
	postInbound(idemRouter(IdempotencyOptions{}, lookup, &p), "evt-1")
	if called || p.replay || p.scope != "" {
		t.Fatalf("lookup ran without scope: called=%v probe=%+v", called, p)
	}
}
