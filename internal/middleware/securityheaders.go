// Package middleware - securityheaders.go
//
// SecurityHeaders adds the standard hardening headers (HSTS, CSP with a
// per-request nonce, frame/sniffing protections) to every response.
// SecurityHeadersRelaxed is the development counterpart: same header set,
// permissive CSP, no HSTS preload.
package middleware

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/gin-gonic/gin"
)

// generateNonce returns a base64-encoded 128-bit random value for use in
// the Content-Security-Policy header and any server-rendered inline script.
func generateNonce() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(bytes), nil
}

// SecurityHeaders is the production hardening middleware. Apply it to every
// route; the control plane's API serves no embeddable content, so framing is
// denied unconditionally.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		nonce, err := generateNonce()
		if err != nil {
			nonce = ""
		}
		c.Set("csp_nonce", nonce)

		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")

		var csp string
		if nonce != "" {
			csp = "default-src 'self'; " +
				"script-src 'self' 'nonce-" + nonce + "'; " +
				"style-src 'self' 'nonce-" + nonce + "'; " +
				"img-src 'self' data:; " +
				"font-src 'self' data:; " +
				"connect-src 'self'; " +
				"frame-ancestors 'none'; " +
				"base-uri 'self'; " +
				"form-action 'self'; " +
				"upgrade-insecure-requests; " +
				"block-all-mixed-content"
		} else {
			csp = "default-src 'self'; " +
				"script-src 'self'; " +
				"style-src 'self'; " +
				"img-src 'self' data:; " +
				"font-src 'self' data:; " +
				"connect-src 'self'; " +
				"frame-ancestors 'none'; " +
				"base-uri 'self'; " +
				"form-action 'self'"
		}
		c.Header("Content-Security-Policy", csp)

		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Permissions-Policy",
			"geolocation=(), "+
				"microphone=(), "+
				"camera=(), "+
				"payment=(), "+
				"usb=(), "+
				"magnetometer=(), "+
				"gyroscope=(), "+
				"accelerometer=()")
		c.Header("X-Permitted-Cross-Domain-Policies", "none")
		c.Header("X-Download-Options", "noopen")

		if c.Request.URL.Path != "/health" && c.Request.URL.Path != "/version" {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, private")
			c.Header("Pragma", "no-cache")
		}
		c.Header("Server", "")

		c.Next()
	}
}

// SecurityHeadersRelaxed applies a permissive CSP suitable only for local
// development, never production.
func SecurityHeadersRelaxed() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "SAMEORIGIN")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Content-Security-Policy",
			"default-src 'self' 'unsafe-inline' 'unsafe-eval'; "+
				"img-src 'self' data: https:; "+
				"connect-src 'self' ws: wss: http: https:")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("X-Permitted-Cross-Domain-Policies", "none")
		c.Header("X-Download-Options", "noopen")

		c.Next()
	}
}
