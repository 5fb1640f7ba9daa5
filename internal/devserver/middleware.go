package devserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/chatcore/internal/auth"
	"github.com/lalith-99/chatcore/internal/backend"
	"github.com/lalith-99/chatcore/internal/models"
)

const contextKeyUser = "user"

// RequireAuth validates the bearer session token and stores the resolved
// user in the request context. Requests without a valid token never reach
// the handler.
func RequireAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, backend.APIError{
				Code: backend.CodeNotAuthorized, Message: "missing authorization header",
			})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, backend.APIError{
				Code: backend.CodeNotAuthorized, Message: "invalid authorization format, expected: Bearer <token>",
			})
			return
		}

		user, err := auth.UserFromToken(parts[1], secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, backend.APIError{
				Code: backend.CodeNotAuthorized, Message: "invalid or expired token",
			})
			return
		}

		c.Set(contextKeyUser, user)
		c.Next()
	}
}

// CurrentUser extracts the authenticated user stored by RequireAuth.
func CurrentUser(c *gin.Context) models.User {
	val, exists := c.Get(contextKeyUser)
	if !exists {
		return models.User{}
	}
	user, ok := val.(models.User)
	if !ok {
		return models.User{}
	}
	return user
}
