package main

import (
	"github.com/gin-gonic/gin"
	"github.com/rebolloluis/family-tree/internal/handlers"
	"github.com/rebolloluis/family-tree/internal/middleware"
	"github.com/rebolloluis/family-tree/internal/models"
	"github.com/rebolloluis/family-tree/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS(svc.cfg.Server.CORSOrigins...))
	r.MaxMultipartMemory = svc.cfg.Upload.MaxUploadBytes()

	// Rate limiter for public auth routes
	authLimiter := middleware.NewRateLimiter(5, 10)

	// Health and metrics
	healthHandler := handlers.NewHealthHandler(models.GetDB(), svc.taskQueue, svc.hub)
	r.GET("/health", healthHandler.CheckHealth)
	r.GET("/metrics", handlers.Metrics())

	// Locally stored photos and avatars
	if svc.cfg.Upload.Driver == "" || svc.cfg.Upload.Driver == "local" {
		r.Static(svc.cfg.Upload.PublicPath, svc.cfg.Upload.Dir)
	}

	familyHandler := handlers.NewFamilyHandler(svc.families)
	treeHandler := handlers.NewTreeHandler(svc.trees)
	profileHandler := handlers.NewProfileHandler(svc.profiles)
	streamHandler := handlers.NewChangeStreamHandler(svc.hub, svc.families)

	// API routes
	api := r.Group("/api")
	{
		// Auth routes (public)
		auth := api.Group("/auth", authLimiter.Middleware())
		{
			auth.POST("/register", svc.authHandler.Register)
			auth.POST("/login", svc.authHandler.Login)
			auth.POST("/refresh", svc.authHandler.Refresh)
			auth.GET("/config", svc.authHandler.GetAuthConfig)
		}

		// Realtime streams accept the token as a query parameter
		streams := api.Group("/families/:id", middleware.StreamAuthRequired())
		{
			streams.GET("/events", streamHandler.StreamChanges)
			streams.GET("/live", treeHandler.LiveTree)
		}

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.AuthRequired(), middleware.AuditLog())
		{
			// Auth
			protected.GET("/auth/me", svc.authHandler.GetCurrentUser)
			protected.POST("/auth/logout", svc.authHandler.Logout)
			protected.POST("/auth/change-password", svc.authHandler.ChangePassword)

			// Families
			protected.GET("/families", familyHandler.List)
			protected.POST("/families", familyHandler.Create)
			protected.GET("/families/:id", familyHandler.Get)
			protected.PUT("/families/:id", familyHandler.Update)
			protected.DELETE("/families/:id", familyHandler.Delete)

			// Tree
			protected.GET("/families/:id/tree", treeHandler.GetTree)
			protected.GET("/families/:id/tree.svg", treeHandler.GetTreeSVG)
			protected.GET("/families/:id/members/:memberID/descendants", treeHandler.GetDescendants)
			protected.GET("/families/:id/members/:memberID/candidates", treeHandler.GetCandidates)

			// Members
			protected.GET("/members/relations", handlers.Relations)
			protected.POST("/families/:id/members", treeHandler.AddMember)
			protected.PUT("/families/:id/members/:memberID", treeHandler.EditMember)
			protected.DELETE("/families/:id/members/:memberID", treeHandler.DeleteMember)
			protected.POST("/families/:id/members/:memberID/photo", treeHandler.UploadPhoto)
			protected.POST("/families/:id/members/:memberID/this-is-me", treeHandler.LinkSelf)

			// Profile
			protected.GET("/profile", profileHandler.Get)
			protected.PUT("/profile", profileHandler.Update)
			protected.POST("/profile/avatar", profileHandler.UploadAvatar)
			protected.DELETE("/profile/self-link", profileHandler.ClearSelfLink)
		}

		// Admin only routes
		admin := api.Group("")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired(), middleware.AuditLog())
		{
			// Users
			userHandler := handlers.NewUserHandler(models.GetDB())
			admin.GET("/users", userHandler.List)
			admin.PUT("/users/:id", userHandler.Update)
			admin.DELETE("/users/:id", userHandler.Delete)

			// System Logs
			systemLogHandler := handlers.NewSystemLogHandler(models.GetDB())
			admin.GET("/system-logs", systemLogHandler.List)
			admin.GET("/system-logs/modules", systemLogHandler.GetModules)
			admin.GET("/system-logs/retention", systemLogHandler.GetRetentionDays)
			admin.PUT("/system-logs/retention", systemLogHandler.SetRetentionDays)
			admin.POST("/system-logs/cleanup", systemLogHandler.Cleanup)

			// System Config
			systemConfigHandler := handlers.NewSystemConfigHandler(models.GetDB())
			admin.GET("/system-config", systemConfigHandler.List)
			admin.GET("/system-config/auth-session", systemConfigHandler.GetAuthSessionConfig)
			admin.PUT("/system-config/auth-session", systemConfigHandler.UpdateAuthSessionConfig)
		}
	}
}
