package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func serveSecure(opt SecurityOptions, req *http.Request) http.Header {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders(opt))
	r.GET("/*any", func(c *gin.Context) { c.Status(http.StatusOK) })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_BaselineOnly(t *testing.T) {
	h := serveSecure(SecurityOptions{}, httptest.NewRequest(http.MethodGet, "/api/devices", nil))

	for _, kv := range baselineHeaders {
		if h.Get(kv[0]) != kv[1] {
			t.Fatalf("%s = %q; want %q", kv[0], h.Get(kv[0]), kv[1])
		}
	}
	for _, name := range []string{"Permissions-Policy", "Cache-Control", "Strict-Transport-Security"} {
		if h.Get(name) != "" {
			t.Fatalf("unexpected %s: %q", name, h.Get(name))
		}
	}
}

func TestSecurityHeaders_PolicyAndGlobalNoStore(t *testing.T) {
	h := serveSecure(SecurityOptions{NoStore: true, EnablePolicy: true},
		httptest.NewRequest(http.MethodGet, "/api/devices", nil))

	if h.Get("X-Permitted-Cross-Domain-Policies") != "none" || h.Get("Permissions-Policy") == "" {
		t.Fatalf("policy headers missing: %v", h)
	}
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("no-store headers missing: %v", h)
	}
}

func TestSecurityHeaders_NoStorePrefixes(t *testing.T) {
	opt := SecurityOptions{NoStorePrefixes: []string{"/api/config"}}

	h := serveSecure(opt, httptest.NewRequest(http.MethodGet, "/api/config/telegram", nil))
	if h.Get("Cache-Control") != "no-store" {
		t.Fatalf("settings response must not be cached, Cache-Control=%q", h.Get("Cache-Control"))
	}
	h = serveSecure(opt, httptest.NewRequest(http.MethodGet, "/api/devices", nil))
	if h.Get("Cache-Control") != "" {
		t.Fatalf("unexpected Cache-Control on device list: %q", h.Get("Cache-Control"))
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	tlsReq := httptest.NewRequest(http.MethodGet, "/", nil)
	tlsReq.TLS = &tls.ConnectionState{}
	proxied := httptest.NewRequest(http.MethodGet, "/", nil)
	proxied.Header.Set("X-Forwarded-Proto", "HTTPS")
	plain := httptest.NewRequest(http.MethodGet, "/", nil)

	cases := []struct {
		name string
		opt  SecurityOptions
		req  *http.Request
		want string
	}{
		{"tls custom age", SecurityOptions{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour}, tlsReq, "max-age=86400; includeSubDomains; preload"},
		{"proxy default age", SecurityOptions{EnableHSTS: true}, proxied, "max-age=15552000; includeSubDomains; preload"},
		{"plain http", SecurityOptions{EnableHSTS: true}, plain, ""},
		{"disabled", SecurityOptions{}, tlsReq, ""},
	}
	for _, tc := range cases {
		if got := serveSecure(tc.opt, tc.req).Get("Strict-Transport-Security"); got != tc.want {
			t.Fatalf("%s: HSTS %q; want %q", tc.name, got, tc.want)
		}
	}
}

func Test_hasAnyPrefix(t *testing.T) {
	if hasAnyPrefix("/api/config/x", nil) {
		t.Fatalf("nil prefixes must not match")
	}
	if hasAnyPrefix("/api/devices", []string{"", "/api/config"}) {
		t.Fatalf("empty prefix must not match everything")
	}
	if !hasAnyPrefix("/api/config/sms_forward", []string{"/api/config"}) {
		t.Fatalf("expected prefix match")
	}
}
