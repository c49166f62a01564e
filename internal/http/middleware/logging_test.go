package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf) // plain JSON lines
	return &buf
}

func TestRequestID_GenerateAndPropagate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/rid", func(c *gin.Context) {
		if GetRequestID(c) == "" {
			t.Fatalf("requestID not set in context")
		}
		c.String(http.StatusOK, "ok")
	})

	// No header -> generated
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rid", nil))
	if w.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("expected generated %s header", RequestIDHeader)
	}

	// Lowercase header -> propagated
	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/rid", nil)
	req2.Header.Set(strings.ToLower(RequestIDHeader), "abc-123")
	r.ServeHTTP(w2, req2)
	if got := w2.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Fatalf("expected propagated request id, got %q", got)
	}
}

func TestRequestID_OversizedHeaderIsReplaced(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/rid", func(c *gin.Context) { c.Status(http.StatusOK) })

	long := strings.Repeat("x", maxRequestIDLength+1)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rid", nil)
	req.Header.Set(RequestIDHeader, long)
	r.ServeHTTP(w, req)

	got := w.Header().Get(RequestIDHeader)
	if got == "" || got == long || len(got) > maxRequestIDLength {
		t.Fatalf("expected a fresh request id, got %q", got)
	}
}

func TestRecovery_PanicsToJSON500AndLogs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(RequestIDHeader, "rid-boom")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["request_id"] != "rid-boom" || body["code"] != "internal_error" {
		t.Fatalf("unexpected envelope: %v", body)
	}
	if !strings.Contains(buf.String(), `"message":"panic recovered"`) ||
		!strings.Contains(buf.String(), `"request_id":"rid-boom"`) {
		t.Fatalf("panic not logged: %s", buf.String())
	}
}

func TestRecovery_PanicAfterWrite_NoJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	_ = captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/late", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("late")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/late", nil))
	if strings.Contains(w.Body.String(), "internal_error") {
		t.Fatalf("envelope must not be appended to a written body: %q", w.Body.String())
	}
}

func TestLoggerFrom_FallbackAndRequestScoped(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	// Fallback: no RedactingLogger attached.
	r := gin.New()
	r.Use(RequestID())
	r.GET("/fallback", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("from fallback")
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/fallback", nil)
	req.Header.Set(RequestIDHeader, "rid-fb")
	r.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	if !strings.Contains(out, `"message":"from fallback"`) || !strings.Contains(out, `"request_id":"rid-fb"`) {
		t.Fatalf("fallback logger missing fields: %s", out)
	}

	// Request-scoped: RedactingLogger attaches method and path.
	buf.Reset()
	r2 := gin.New()
	r2.Use(RequestID(), RedactingLogger(RedactOptions{}))
	r2.GET("/scoped/:id", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("from scoped")
		c.Status(http.StatusOK)
	})
	r2.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/scoped/7", nil))

	first := strings.SplitN(buf.String(), "\n", 2)[0]
	if !strings.Contains(first, `"message":"from scoped"`) ||
		!strings.Contains(first, `"path":"/scoped/:id"`) ||
		!strings.Contains(first, `"method":"GET"`) {
		t.Fatalf("scoped logger missing fields: %s", first)
	}
}

func TestAsString(t *testing.T) {
	if asString("x") != "x" || asString(42) != "" || asString(nil) != "" {
		t.Fatalf("asString conversions wrong")
	}
}
