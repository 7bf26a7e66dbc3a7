package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	apiCSP = "default-src 'none'; frame-ancestors 'none'"
	// The SPA build loads its own bundles and remote listing images.
	spaCSP = "default-src 'self'; base-uri 'self'; frame-ancestors 'none'; object-src 'none'; img-src 'self' data: https:; style-src 'self' 'unsafe-inline'; connect-src 'self'"
	// swagger-ui is pulled from unpkg with an inline bootstrap script.
	docsCSP = "default-src 'self'; frame-ancestors 'none'; object-src 'none'; img-src 'self' data: https:; style-src 'self' 'unsafe-inline' https://unpkg.com; script-src 'self' 'unsafe-inline' https://unpkg.com; connect-src 'self'"
)

func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("X-XSS-Protection", "0")
		switch p := c.Request.URL.Path; {
		case strings.HasPrefix(p, "/api"):
			c.Header("Content-Security-Policy", apiCSP)
		case strings.HasPrefix(p, "/docs"):
			c.Header("Content-Security-Policy", docsCSP)
		default:
			c.Header("Content-Security-Policy", spaCSP)
		}
		c.Next()
	}
}
