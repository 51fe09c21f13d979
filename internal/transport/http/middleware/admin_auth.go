package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequireAdminToken guards administrative endpoints with a static bearer
// token. With no token configured the endpoints are disabled outright.
func RequireAdminToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "administrative API is not configured",
			})
			return
		}

		presented := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if presented == "" {
			presented = c.GetHeader("X-Admin-Token")
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid admin credentials",
			})
			return
		}

		c.Next()
	}
}
