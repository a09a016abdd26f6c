package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/syncbridge/backend/internal/interfaces/http/dto"
)

// AdminToken guards operational endpoints with a static bearer token. An
// empty token leaves the routes open and logs a warning once.
func AdminToken(token string, logger *zap.Logger) gin.HandlerFunc {
	if token == "" {
		logger.Warn("Admin token not configured, sync API is unauthenticated")
		return func(c *gin.Context) {
			c.Next()
		}
	}

	expected := []byte(token)
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeUnauthorized,
				"Missing or invalid admin token",
				GetRequestID(c),
			))
			return
		}
		c.Next()
	}
}
