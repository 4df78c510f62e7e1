package middleware

import (
	"github.com/labstack/echo/v4"
)

// SecurityHeaders returns middleware that sets security-related HTTP headers
// on every response. These headers protect against common web attacks even
// if application-level vulnerabilities exist.
//
// Sudogate runs behind the host platform's reverse proxy, so TLS is handled
// externally. These headers provide defense-in-depth at the application layer.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()

			// Content-Security-Policy: Sudogate serves JSON and redirects only,
			// so the policy can be maximally restrictive.
			h.Set("Content-Security-Policy",
				"default-src 'none'; "+
					"frame-ancestors 'none'; "+
					"base-uri 'none'",
			)

			// Strict-Transport-Security: enforce HTTPS for 1 year including
			// subdomains. The reverse proxy terminates TLS; this header tells
			// browsers to always use HTTPS for subsequent requests.
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")

			// X-Content-Type-Options: prevent MIME type sniffing.
			h.Set("X-Content-Type-Options", "nosniff")

			// X-Frame-Options: prevent clickjacking (redundant with CSP
			// frame-ancestors but some older browsers only support this header).
			h.Set("X-Frame-Options", "DENY")

			// Referrer-Policy: the challenge redirect URL carries a stash key in
			// its query string; never leak it to external sites via Referer.
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

			// Cache-Control: challenge and status responses are per-user state
			// and must never be cached by intermediaries.
			h.Set("Cache-Control", "no-store")

			return next(c)
		}
	}
}
