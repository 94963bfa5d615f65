package rbac

import (
	"net/http"

	"ai-phone-assistant/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireAnyRole lets the request through when the staff role is listed.
// Admins pass every check; roles outside the known set never do.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		staff, ok := auth.StaffFrom(c.Request.Context())
		if !ok || staff.Role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if !Allows(staff.Role, allowed...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
