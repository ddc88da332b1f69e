package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
)

// Roles a control token may carry. Viewers read the playlist and player
// state, operators also drive playback, admins can do anything.
const (
	RoleViewer   = "viewer"
	RoleOperator = "operator"
	RoleAdmin    = "admin"
)

// RequireRole lets the request through when the role set by RequireAuth is
// admin or one of roles. Routes using it must sit behind RequireAuth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get("user_role")
		name, ok := role.(string)
		if !ok || name == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token has no role claim"})
			return
		}
		if name == RoleAdmin || slices.Contains(roles, name) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "role " + name + " cannot use this player endpoint",
		})
	}
}
