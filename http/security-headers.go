package http

import (
	"net/http"
	"strings"
)

var contentSecurityPolicy = strings.Join([]string{
	"default-src 'self'",
	"frame-ancestors 'self' https://*.vercel.app",
	"base-uri 'none'",
	"script-src 'self' 'unsafe-inline'",
	"style-src 'self' 'unsafe-inline' https://fonts.googleapis.com https://cdnjs.cloudflare.com",
	"style-src-elem 'self' 'unsafe-inline' https://fonts.googleapis.com https://cdnjs.cloudflare.com",
	"font-src 'self' https://fonts.gstatic.com data:",
	"img-src 'self' data: https:",
	"connect-src 'self'",
	"object-src 'none'",
	"frame-src 'self'",
	"upgrade-insecure-requests",
}, "; ")

// securityHeaders sets the security headers on every response and
// disables caching on the dynamic endpoints.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		h.Set("Cross-Origin-Resource-Policy", "cross-origin")
		h.Set("Content-Security-Policy", contentSecurityPolicy)

		p := r.URL.Path
		if strings.HasPrefix(p, "/submit") || strings.HasPrefix(p, "/submissions") || strings.HasPrefix(p, "/health") {
			h.Set("Cache-Control", "no-store")
		}
		next.ServeHTTP(w, r)
	})
}
