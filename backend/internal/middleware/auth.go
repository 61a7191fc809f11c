package middleware

import (
	"net/http"

	"task-tracker/backend/internal/models"
	"task-tracker/backend/internal/services"
	"task-tracker/backend/internal/utils"

	"github.com/gin-gonic/gin"
)

const callerKey = "caller"

// TokenParser turns a bearer token into the caller it identifies.
type TokenParser interface {
	ParseAccessToken(token string) (services.Caller, error)
}

func AuthMiddleware(parser TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := utils.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		caller, err := parser.ParseAccessToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(callerKey, caller)
		c.Next()
	}
}

// RequireRole rejects callers whose token does not carry one of roles. The services
// still evaluate their own policy against the stored user.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := CallerFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		for _, role := range roles {
			if caller.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
	}
}

func CallerFrom(c *gin.Context) (services.Caller, bool) {
	value, exists := c.Get(callerKey)
	if !exists {
		return services.Caller{}, false
	}
	caller, ok := value.(services.Caller)
	return caller, ok
}

// WithCaller stores caller on the context the way AuthMiddleware does.
func WithCaller(c *gin.Context, caller services.Caller) {
	c.Set(callerKey, caller)
}
