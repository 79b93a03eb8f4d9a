package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"invoice-backend/internal/shared/auth"
	"invoice-backend/internal/shared/server/respond"
)

const (
	userIDKey     = "userId"
	orgIDKey      = "orgId"
	locationIDKey = "locationId"
)

// Auth validates JWTs and stores org/location identity in context.
// Outside production, X-Org-Id / X-Location-Id headers are accepted as a
// development bypass.
func Auth(env string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader != "" {
			if !strings.HasPrefix(authHeader, "Bearer ") {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
			if token == "" {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}

			claims, err := auth.VerifyJWT(token)
			if err != nil {
				respond.Error(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token", nil)
				return
			}

			c.Set(userIDKey, claims.Sub)
			c.Set(orgIDKey, claims.OrgID)
			if claims.LocationID != "" {
				c.Set(locationIDKey, claims.LocationID)
			}
			c.Next()
			return
		}

		if env != "production" {
			orgID := strings.TrimSpace(c.GetHeader("X-Org-Id"))
			if orgID != "" {
				c.Set(orgIDKey, orgID)
				if locationID := strings.TrimSpace(c.GetHeader("X-Location-Id")); locationID != "" {
					c.Set(locationIDKey, locationID)
				}
				c.Next()
				return
			}
		}

		respond.Error(c, http.StatusUnauthorized, "unauthorized", "Missing identity", nil)
	}
}

// UserIDFromContext fetches the user ID stored by Auth middleware.
func UserIDFromContext(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// OrgIDFromContext fetches the organization ID stored by Auth middleware.
func OrgIDFromContext(c *gin.Context) string {
	return c.GetString(orgIDKey)
}

// LocationIDFromContext fetches the location ID stored by Auth middleware.
func LocationIDFromContext(c *gin.Context) string {
	return c.GetString(locationIDKey)
}
