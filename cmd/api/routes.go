package main

import (
	"net/http"
	"time"

	"classroom-access/internal/guard"
	"classroom-access/internal/obs"
	"classroom-access/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, a app) {
	d, o, h := a.deps, a.httpOpts, a.handlers
	mw := func(g guard.Guard) gin.HandlerFunc { return guard.Middleware(g, o) }

	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})
	r.GET("/metrics", gin.WrapH(obs.Handler(a.registry)))

	v1 := r.Group("/v1")
	{
		// AUTH routes (token issuance).
		authGroup := v1.Group("/auth")
		authGroup.POST("/login", mw(guard.AnonymousRequired(d, guard.AnonymousOptions{})), h.Login)
		authGroup.POST("/refresh", mw(guard.RequireLogin(d, guard.LoginOptions{RefreshOnly: true, IgnoreVerification: true})), h.Refresh)
		authGroup.POST("/logout", mw(guard.RequireLogin(d, guard.LoginOptions{IgnoreVerification: true, IgnoreLocked: true})), h.Logout)

		v1.GET("/me", mw(guard.RequireLogin(d, guard.LoginOptions{IgnoreVerification: true})), h.Me)
		v1.GET("/catalog", mw(guard.OptionalLogin(d, guard.OptionalOptions{})), h.Viewer)

		// CLASSROOM routes
		classrooms := v1.Group("/classrooms/:classroom_id")
		classrooms.Use(mw(guard.RequireLogin(d, guard.LoginOptions{})))
		{
			classrooms.GET("", rbac.RequireClassroomRole(a.memberships, "classroom_id", rbac.RoleOwner, rbac.RoleEducator, rbac.RoleStudent), h.Classroom)
			classrooms.GET("/manage", rbac.RequireClassroomRole(a.memberships, "classroom_id", rbac.RoleOwner, rbac.RoleEducator), h.Classroom)
		}

		// EDUCATOR routes
		educator := v1.Group("/educator")
		educator.Use(mw(guard.RequireEducator(d, guard.EducatorOptions{})))
		{
			educator.GET("/ping", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"status": "ok"})
			})
		}

		// ADMIN routes
		// Admin endpoints require a fresh token from a real login, not a refresh exchange.
		admin := v1.Group("/admin")
		admin.Use(mw(guard.RequireAdmin(d, guard.AdminOptions{Fresh: true})))
		{
			admin.GET("/ping", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"status": "ok"})
			})
		}
	}
}
