package middlewares

import "github.com/gin-gonic/gin"

// abortWithError writes the same flat error body the handlers use.
func abortWithError(c *gin.Context, status int, code, message string) {
	body := gin.H{
		"code":    code,
		"message": message,
	}
	if v, ok := c.Get(CtxRequestID); ok {
		if id, ok := v.(string); ok && id != "" {
			body["requestId"] = id
		}
	}
	c.AbortWithStatusJSON(status, body)
}
