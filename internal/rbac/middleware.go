package rbac

import (
	"errors"
	"net/http"

	"classroom-access/internal/auth"

	"github.com/gin-gonic/gin"
)

const ctxClassroomRole = "classroom_role"

// RequireClassroomRole allows access if the caller holds any of the provided
// roles in the classroom named by the route parameter param.
// Rules:
// - the principal must already be in the request context (run a guard first)
// - admin privilege bypasses the membership check
// - unknown classrooms are 404, insufficient roles are 403
func RequireClassroomRole(src MembershipSource, param string, allowed ...ResourceRole) gin.HandlerFunc {
	allowedSet := make(map[ResourceRole]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		p, ok := auth.PrincipalFromContext(c.Request.Context())
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "authentication required", "status": http.StatusUnauthorized})
			return
		}

		id := c.Param(param)
		if id == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": param + " required", "status": http.StatusBadRequest})
			return
		}

		m, err := src.Membership(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, ErrResourceNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"message": "classroom not found", "status": http.StatusNotFound})
				return
			}
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "membership lookup failed", "status": http.StatusInternalServerError})
			return
		}

		role := RoleOf(p, m)
		c.Set(ctxClassroomRole, role)

		if p.IsAdmin() {
			c.Next()
			return
		}
		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "forbidden", "status": http.StatusForbidden})
			return
		}
		c.Next()
	}
}

// ClassroomRole returns the role computed by RequireClassroomRole.
func ClassroomRole(c *gin.Context) ResourceRole {
	if v, ok := c.Get(ctxClassroomRole); ok {
		if r, ok := v.(ResourceRole); ok {
			return r
		}
	}
	return RoleNonMember
}
