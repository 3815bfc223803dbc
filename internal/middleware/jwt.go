package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-calendar-api/internal/service"
	appErrors "github.com/noah-isme/course-calendar-api/pkg/errors"
	"github.com/noah-isme/course-calendar-api/pkg/response"
)

// ContextUserKey is the gin context key storing JWT claims.
const ContextUserKey = "currentUser"

// FeedTokenParam is the query parameter carrying a calendar subscription token.
const FeedTokenParam = "token"

// JWT protects routes by requiring a valid access token.
func JWT(tokens *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		claims, err := tokens.ValidateToken(token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, claims)
		c.Next()
	}
}

// FeedAuth accepts a subscription token in the query string, since calendar
// applications cannot send headers, and falls back to a bearer token.
func FeedAuth(tokens *service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := c.Query(FeedTokenParam); raw != "" {
			claims, err := tokens.ValidateFeedToken(raw)
			if err != nil {
				response.Error(c, err)
				c.Abort()
				return
			}
			c.Set(ContextUserKey, claims)
			c.Next()
			return
		}
		JWT(tokens)(c)
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", appErrors.ErrUnauthorized
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}
