package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountersInflightAndUnmatched(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/api/v1/admin/feedback/:id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	baseOK := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/api/v1/admin/feedback/:id", "200"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "unmatched", "404"))

	for _, path := range []string{"/api/v1/admin/feedback/1", "/api/v1/admin/feedback/2", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/api/v1/admin/feedback/:id", "200")); got != baseOK+2 {
		t.Fatalf("route counter = %v; want %v", got, baseOK+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "unmatched", "404")); got != base404+1 {
		t.Fatalf("unmatched counter = %v; want %v", got, base404+1)
	}
	if inFlight := testutil.ToFloat64(httpInflight); inFlight != 0 {
		t.Fatalf("httpInflight = %v; want 0", inFlight)
	}
	lint, err := testutil.CollectAndLint(httpReqs)
	if err != nil || len(lint) != 0 {
		t.Fatalf("lint problems: %v %v", lint, err)
	}
}

func TestMetrics_IdempotentReplayCounted(t *testing.T) {
	gin.SetMode(gin.TestMode)
	base := testutil.ToFloat64(idempotentReplays)

	lookup := func(context.Context, string, string, time.Time) (bool, error) { return true, nil }
	r := gin.New()
	r.POST("/inbound", IdempotencyValidator(IdempotencyOptions{Scope: queryScope}, lookup), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/inbound?identifier=7", strings.NewReader(`{}`))
	req.Header.Set(HeaderIdempotencyKey, "evt-9")
	r.ServeHTTP(httptest.NewRecorder(), req)

	if got := testutil.ToFloat64(idempotentReplays); got != base+1 {
		t.Fatalf("replays = %v; want %v", got, base+1)
	}
}

func TestTrackSession(t *testing.T) {
	base := testutil.ToFloat64(wsSessions)
	done := TrackSession()
	if got := testutil.ToFloat64(wsSessions); got != base+1 {
		t.Fatalf("sessions = %v; want %v", got, base+1)
	}
	done()
	if got := testutil.ToFloat64(wsSessions); got != base {
		t.Fatalf("sessions after done = %v; want %v", got, base)
	}
}
