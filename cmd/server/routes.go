package main

import (
	"github.com/gin-gonic/gin"

	"github.com/aravindsuri/dqagent/internal/handlers"
	"github.com/aravindsuri/dqagent/internal/middleware"
	"github.com/aravindsuri/dqagent/internal/models"
	"github.com/aravindsuri/dqagent/internal/services"
	"github.com/aravindsuri/dqagent/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger("/health", "/api/health"), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	// Rate limiter for the generation endpoint (LLM calls are expensive)
	generateLimiter := middleware.NewRateLimiter(1, 3)

	// Health check and Prometheus-style runtime metrics
	healthHandler := handlers.NewHealthHandler()
	r.GET("/health", healthHandler.CheckHealth)
	r.GET("/metrics", handlers.Metrics)

	// API routes
	api := r.Group("/api")
	{
		api.GET("/health", healthHandler.CheckHealth)
		api.GET("/welcome", handlers.Welcome)

		// Auth routes (public)
		auth := api.Group("/auth")
		{
			auth.POST("/login", svc.authHandler.Login)
			auth.POST("/refresh", svc.authHandler.Refresh)
			auth.GET("/config", svc.authHandler.GetAuthConfig)
		}

		// SSE Events (public route with internal token validation)
		eventsHandler := handlers.NewEventsHandler(services.GetEventHub())
		api.GET("/events", eventsHandler.Stream)
		api.GET("/events/:channel", eventsHandler.Stream)

		questionnaireHandler := handlers.NewQuestionnaireHandler(
			svc.gateway, svc.lifecycle, services.NewQuestionnaireService(models.GetDB()), svc.cache)

		// Protected routes
		protected := api.Group("")
		protected.Use(middleware.AuthRequired())
		{
			// Auth
			protected.GET("/auth/me", svc.authHandler.GetCurrentUser)
			protected.POST("/auth/logout", svc.authHandler.Logout)
			protected.POST("/auth/change-password", svc.authHandler.ChangePassword)

			// Countries (read for all users)
			countryHandler := handlers.NewCountryHandler(models.GetDB())
			protected.GET("/countries", countryHandler.List)
			protected.GET("/countries/:code", countryHandler.Get)

			// Questionnaires
			protected.POST("/questionnaire/generate", generateLimiter.Middleware(), questionnaireHandler.Generate)
			protected.POST("/questionnaire/generate/cancel", questionnaireHandler.CancelGenerate)
			protected.GET("/questionnaire", questionnaireHandler.GetByKeyOrList)
			protected.GET("/questionnaire/:id", questionnaireHandler.Get)
			protected.GET("/questionnaire/:id/progress", questionnaireHandler.Progress)
			protected.GET("/questionnaire/:id/next-question", questionnaireHandler.NextQuestion)
			protected.POST("/questionnaire/:id/response", questionnaireHandler.SubmitResponse)
			protected.PUT("/questionnaire/:id/response/:question_id/draft", questionnaireHandler.SaveDraft)
			protected.POST("/questionnaire/:id/save", questionnaireHandler.Save)

			// Country metrics
			metricsHandler := handlers.NewCountryMetricsHandler(models.GetDB(), svc.cfg)
			protected.GET("/metrics/:country", metricsHandler.Get)

			// Dashboard (all users)
			dashboardHandler := handlers.NewDashboardHandler(models.GetDB())
			protected.GET("/dashboard/stats", dashboardHandler.GetStats)

			// Prompts (read for all users)
			promptHandler := handlers.NewPromptHandler(models.GetDB())
			protected.GET("/prompts", promptHandler.List)
			protected.GET("/prompts/default", promptHandler.GetDefault)
			protected.GET("/prompts/active", promptHandler.GetAllActive)
			protected.GET("/prompts/:id", promptHandler.GetByID)
		}

		// Approval routes (risk analysts and admins)
		approver := api.Group("")
		approver.Use(middleware.AuthRequired(), middleware.ApproverRequired())
		{
			approver.POST("/questionnaire/:id/response/:question_id/approve", questionnaireHandler.ApproveResponse)
		}

		// Admin only routes
		admin := api.Group("")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired(), middleware.AuditLog())
		{
			admin.DELETE("/questionnaire/:id", questionnaireHandler.Delete)

			// Users
			userHandler := handlers.NewUserHandler(models.GetDB())
			admin.GET("/users", userHandler.List)
			admin.POST("/users", userHandler.Create)
			admin.PUT("/users/:id", userHandler.Update)
			admin.DELETE("/users/:id", userHandler.Delete)

			// Countries (write operations)
			countryHandler := handlers.NewCountryHandler(models.GetDB())
			admin.POST("/countries", countryHandler.Upsert)
			admin.PUT("/countries/:code/active", countryHandler.SetActive)

			// AI Providers
			providerHandler := handlers.NewProviderHandler(models.GetDB(), svc.cfg)
			admin.GET("/providers", providerHandler.List)
			admin.GET("/providers/active", providerHandler.GetActive)
			admin.GET("/providers/:id", providerHandler.GetByID)
			admin.POST("/providers", providerHandler.Create)
			admin.PUT("/providers/:id", providerHandler.Update)
			admin.DELETE("/providers/:id", providerHandler.Delete)
			admin.POST("/providers/:id/test", providerHandler.Test)

			// Prompts (write operations)
			promptHandler := handlers.NewPromptHandler(models.GetDB())
			admin.POST("/prompts", promptHandler.Create)
			admin.PUT("/prompts/:id", promptHandler.Update)
			admin.DELETE("/prompts/:id", promptHandler.Delete)
			admin.POST("/prompts/:id/set-default", promptHandler.SetDefault)

			// System Config
			systemConfigHandler := handlers.NewSystemConfigHandler(models.GetDB())
			systemConfigHandler.SetScheduler(svc.scheduler)
			systemConfigHandler.SetNotifier(svc.notifier)
			admin.GET("/system-config", systemConfigHandler.ListByGroup)
			admin.PUT("/system-config", systemConfigHandler.UpdateValue)
			admin.GET("/system-config/ldap", systemConfigHandler.GetLDAPConfig)
			admin.PUT("/system-config/ldap", systemConfigHandler.UpdateLDAPConfig)
			admin.POST("/notify/test", systemConfigHandler.TestNotification)
			admin.POST("/reminders/run", systemConfigHandler.RunReminders)

			// System Logs
			systemLogHandler := handlers.NewSystemLogHandler(models.GetDB())
			admin.GET("/system-logs", systemLogHandler.List)
			admin.GET("/system-logs/modules", systemLogHandler.GetModules)
			admin.POST("/system-logs/cleanup", systemLogHandler.Cleanup)

			// AI usage accounting
			aiUsageHandler := handlers.NewAIUsageHandler(models.GetDB())
			admin.GET("/ai-usage/stats", aiUsageHandler.GetStats)
			admin.GET("/ai-usage/trend", aiUsageHandler.GetDailyTrend)
			admin.GET("/ai-usage/providers", aiUsageHandler.GetProviderBreakdown)
		}
	}
}
