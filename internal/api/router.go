package api

import (
	"github.com/gin-gonic/gin"

	"github.com/opsdesk/opsdesk/internal/api/handlers"
	"github.com/opsdesk/opsdesk/internal/api/middleware"
	"github.com/opsdesk/opsdesk/internal/core/auth"
)

type Router struct {
	engine         *gin.Engine
	authMiddleware *middleware.AuthMiddleware
	authHandler    *handlers.AuthHandler
	entityHandler  *handlers.EntityHandler
}

func NewRouter(
	authService *auth.Service,
	authHandler *handlers.AuthHandler,
	entityHandler *handlers.EntityHandler,
) *Router {
	return &Router{
		authMiddleware: middleware.NewAuthMiddleware(authService),
		authHandler:    authHandler,
		entityHandler:  entityHandler,
	}
}

func (r *Router) Setup(mode string) *gin.Engine {
	gin.SetMode(mode)
	r.engine = gin.New()
	r.engine.Use(gin.Recovery())
	r.engine.Use(middleware.RequestLogger())

	r.setupRoutes()
	return r.engine
}

func (r *Router) setupRoutes() {
	api := r.engine.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Auth routes (public)
	authRoutes := api.Group("/auth")
	{
		authRoutes.POST("/register", r.authHandler.Register)
		authRoutes.POST("/login", r.authHandler.Login)
	}

	// Protected routes
	protected := api.Group("")
	protected.Use(r.authMiddleware.Authenticate())
	{
		protected.GET("/auth/me", r.authHandler.Me)

		protected.GET("/entities", r.entityHandler.Types)
		entities := protected.Group("/entities/:type")
		{
			entities.GET("", r.entityHandler.List)
			entities.POST("", r.entityHandler.Create)
			entities.GET("/:id", r.entityHandler.Get)
			entities.PATCH("/:id", r.entityHandler.Update)
			entities.DELETE("/:id", r.entityHandler.Delete)
		}
	}
}
