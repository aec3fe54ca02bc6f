package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tasktrail/tasktrail/internal/authz"
)

// RequirePermission gates a route group on a tenant-wide permission key.
// Project-level role requirements stay in the services; this only covers
// surfaces with no project context, like admin endpoints.
func RequirePermission(resolver *authz.Resolver, key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := GetActor(c)
		if !resolver.HasTenantPermission(actor, key) {
			c.JSON(http.StatusForbidden, gin.H{"error": "requires " + key + " permission"})
			c.Abort()
			return
		}
		c.Next()
	}
}
