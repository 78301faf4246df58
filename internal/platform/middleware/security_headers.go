package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// apiHeaders apply to every response. Responses carry patient contact and
// exposure details, so nothing may be cached or framed.
var apiHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"X-XSS-Protection", "0"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
	{"Referrer-Policy", "no-referrer"},
	{"Permissions-Policy", "camera=(), microphone=(), geolocation=()"},
	{"Cache-Control", "no-store"},
	{"Pragma", "no-cache"},
}

const hstsValue = "max-age=31536000; includeSubDomains"

// SecurityHeaders sets the API response headers. HSTS is only sent over
// HTTPS, directly or behind a proxy that reports X-Forwarded-Proto, so a
// plain-HTTP development server does not pin browsers to TLS.
func SecurityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for _, kv := range apiHeaders {
				h.Set(kv[0], kv[1])
			}
			if servedOverHTTPS(c) {
				h.Set("Strict-Transport-Security", hstsValue)
			}
			return next(c)
		}
	}
}

func servedOverHTTPS(c echo.Context) bool {
	req := c.Request()
	if req.TLS != nil {
		return true
	}
	return strings.EqualFold(req.Header.Get(echo.HeaderXForwardedProto), "https")
}
