package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// EnableHSTS sends Strict-Transport-Security on HTTPS requests only.
	// HSTSMaxAge <= 0 means 180 days.
	EnableHSTS bool
	HSTSMaxAge time.Duration

	// NoStore disables caching everywhere; NoStorePrefixes only below the
	// given paths (e.g. "/api/config", whose responses carry credentials).
	NoStore         bool
	NoStorePrefixes []string

	// EnablePolicy adds Permissions-Policy and X-Permitted-Cross-Domain-Policies.
	EnablePolicy bool
}

type headerSet [][2]string

func (hs headerSet) apply(h http.Header) {
	for _, kv := range hs {
		h.Set(kv[0], kv[1])
	}
}

var (
	baselineHeaders = headerSet{
		{"X-Content-Type-Options", "nosniff"},
		{"X-Frame-Options", "DENY"},
		{"Referrer-Policy", "no-referrer"},
	}
	policyHeaders = headerSet{
		{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()"},
		{"X-Permitted-Cross-Domain-Policies", "none"},
	}
	noStoreHeaders = headerSet{
		{"Cache-Control", "no-store"},
		{"Pragma", "no-cache"},
		{"Expires", "0"},
	}
)

// SecurityHeaders hardens JSON API responses. Header sets are resolved once
// at construction; per request only the no-store and HSTS decisions remain.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	always := append(headerSet{}, baselineHeaders...)
	if opt.EnablePolicy {
		always = append(always, policyHeaders...)
	}
	if opt.NoStore {
		always = append(always, noStoreHeaders...)
	}

	var hsts string
	if opt.EnableHSTS {
		age := opt.HSTSMaxAge
		if age <= 0 {
			age = defaultHSTSMaxAge
		}
		hsts = "max-age=" + strconv.FormatInt(int64(age/time.Second), 10) + "; includeSubDomains; preload"
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		always.apply(h)
		if !opt.NoStore && hasAnyPrefix(c.Request.URL.Path, opt.NoStorePrefixes) {
			noStoreHeaders.apply(h)
		}
		if hsts != "" && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		c.Next()
	}
}

// isHTTPS reports TLS termination here or at a proxy (X-Forwarded-Proto).
func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}
