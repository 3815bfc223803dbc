package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-calendar-api/internal/middleware"
	"github.com/noah-isme/course-calendar-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// viewerFromContext returns the authenticated viewer, false when the request
// carries no usable identity.
func viewerFromContext(c *gin.Context) (models.Viewer, bool) {
	claims := claimsFromContext(c)
	if claims == nil || claims.UserID == "" {
		return models.Viewer{}, false
	}
	return claims.Viewer(), true
}

// requestBaseURL reconstructs the externally visible scheme and host.
func requestBaseURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if forwarded := c.GetHeader("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	host := c.Request.Host
	if forwarded := c.GetHeader("X-Forwarded-Host"); forwarded != "" {
		host = forwarded
	}
	return scheme + "://" + host
}
