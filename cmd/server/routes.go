package main

import (
	"github.com/gin-gonic/gin"
	"github.com/tasktrail/tasktrail/internal/authz"
	"github.com/tasktrail/tasktrail/internal/handlers"
	"github.com/tasktrail/tasktrail/internal/middleware"
	"github.com/tasktrail/tasktrail/internal/models"
	"github.com/tasktrail/tasktrail/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	r.Use(middleware.RequestID())
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	db := models.GetDB()

	// Health check
	healthHandler := handlers.NewHealthHandler()
	r.GET("/health", healthHandler.CheckHealth)

	// Login endpoints get a tighter limiter than the rest of the API.
	loginLimiter := middleware.NewRateLimiter(5, 10)

	api := r.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth", loginLimiter.Middleware())
		{
			auth.POST("/login", svc.authHandler.Login)
			auth.POST("/refresh", svc.authHandler.Refresh)
			auth.GET("/config", svc.authHandler.GetAuthConfig)
		}

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.AuthRequired(db))
		protected.Use(middleware.AuditLog())
		{
			// Auth
			protected.GET("/auth/me", svc.authHandler.GetCurrentUser)
			protected.POST("/auth/logout", svc.authHandler.Logout)
			protected.POST("/auth/change-password", svc.authHandler.ChangePassword)

			// Projects
			projectHandler := handlers.NewProjectHandler(db, svc.resolver)
			protected.GET("/projects", projectHandler.List)
			protected.GET("/projects/:id", projectHandler.GetByID)
			protected.POST("/projects", projectHandler.Create)
			protected.PUT("/projects/:id", projectHandler.Update)
			protected.DELETE("/projects/:id", projectHandler.Delete)

			// Project members
			memberHandler := handlers.NewProjectMemberHandler(db, svc.resolver)
			protected.GET("/projects/:id/members", memberHandler.List)
			protected.POST("/projects/:id/members", memberHandler.Add)
			protected.PUT("/projects/:id/members/:userID", memberHandler.Update)
			protected.DELETE("/projects/:id/members/:userID", memberHandler.Remove)

			// Tasks
			taskHandler := handlers.NewTaskHandler(db, svc.resolver, svc.events)
			protected.GET("/tasks", taskHandler.List)
			protected.GET("/tasks/:id", taskHandler.GetByID)
			protected.POST("/tasks", taskHandler.Create)
			protected.PATCH("/tasks/:id", taskHandler.Mutate)
			protected.DELETE("/tasks/:id", taskHandler.Delete)
			protected.GET("/tasks/:id/history", taskHandler.History)

			// Comments
			commentHandler := handlers.NewCommentHandler(db, svc.resolver)
			protected.GET("/tasks/:id/comments", commentHandler.List)
			protected.POST("/tasks/:id/comments", commentHandler.Create)
			protected.PUT("/comments/:id", commentHandler.Update)
			protected.DELETE("/comments/:id", commentHandler.Delete)

			// Labels
			labelHandler := handlers.NewLabelHandler(db, svc.resolver)
			protected.GET("/labels", labelHandler.List)
			protected.POST("/labels", labelHandler.Create)
			protected.PUT("/labels/:id", labelHandler.Update)
			protected.DELETE("/labels/:id", labelHandler.Delete)

			// Users (list/read guarded in the service: self-lookups allowed)
			userHandler := handlers.NewUserHandler(db, svc.resolver)
			protected.GET("/users", userHandler.List)
			protected.GET("/users/:id", userHandler.GetByID)
			protected.POST("/users", userHandler.Create)
			protected.PUT("/users/:id", userHandler.Update)
			protected.DELETE("/users/:id", userHandler.Delete)

			// Roles
			roleHandler := handlers.NewRoleHandler(db, svc.resolver)
			protected.GET("/roles", roleHandler.List)
			protected.GET("/roles/permissions", roleHandler.Permissions)
			protected.POST("/roles", roleHandler.Create)
			protected.PUT("/roles/:id", roleHandler.Update)
			protected.DELETE("/roles/:id", roleHandler.Delete)
			protected.POST("/roles/assign", roleHandler.Assign)
			protected.POST("/roles/revoke", roleHandler.Revoke)
		}

		// Admin-only routes
		admin := api.Group("/system")
		admin.Use(middleware.AuthRequired(db))
		admin.Use(middleware.RequirePermission(svc.resolver, authz.PermAdminAccess))
		admin.Use(middleware.AuditLog())
		{
			systemConfigHandler := handlers.NewSystemConfigHandler(db)
			admin.GET("/email-config", systemConfigHandler.GetEmailConfig)
			admin.PUT("/email-config", systemConfigHandler.UpdateEmailConfig)

			systemLogHandler := handlers.NewSystemLogHandler(db)
			admin.GET("/logs", systemLogHandler.List)
			admin.GET("/logs/modules", systemLogHandler.GetModules)
			admin.GET("/logs/retention", systemLogHandler.GetRetention)
			admin.PUT("/logs/retention", systemLogHandler.SetRetention)
			admin.POST("/logs/cleanup", systemLogHandler.Cleanup)
		}
	}
}
