package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lirads-audit-server/internal/auth"
	"github.com/lirads-audit-server/internal/domain"
)

// UsernameKey is the gin context key holding the authenticated reader.
const UsernameKey = "username"

// TokenValidator validates bearer tokens.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// BearerAuth requires a valid "Authorization: Bearer" token.
func BearerAuth(v TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			abortUnauthorized(c, "Bearer token required")
			return
		}

		claims, err := v.Validate(strings.TrimSpace(token))
		if err != nil {
			abortUnauthorized(c, "Invalid or expired token")
			return
		}

		c.Set(UsernameKey, claims.Username)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", `Bearer realm="lirads"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, domain.NewAPIError(
		domain.ErrAuthentication, msg, "", c.GetString(CorrelationIDKey)))
}
