package middlewares

import (
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequireContentType rejects bodies on POST/PUT/PATCH unless the media type is one of allowed.
func RequireContentType(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			// bodiless POSTs such as logout are fine
			if c.Request.ContentLength == 0 && c.GetHeader("Content-Type") == "" {
				break
			}
			mt, _, err := mime.ParseMediaType(c.GetHeader("Content-Type"))
			if err != nil || !contains(allowed, strings.ToLower(mt)) {
				abortWithError(c, http.StatusUnsupportedMediaType, "unsupported_media_type",
					"Content-Type must be one of "+strings.Join(allowed, ", "))
				return
			}
		}
		c.Next()
	}
}

func RequireJSON() gin.HandlerFunc {
	return RequireContentType("application/json")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
