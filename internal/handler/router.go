package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/r3hensler/base-client-server/internal/config"
	"github.com/r3hensler/base-client-server/internal/service"
)

// NewRouter wires middleware and routes. The refresh-token cookie is scoped
// to /api/v1/auth, so every endpoint that touches it lives under that group.
func NewRouter(cfg config.Config, svc *service.AuthService, limiter *service.RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(SecurityHeaders(cfg.Env))
	if cfg.Env == "development" {
		router.Use(CORSMiddleware(strings.Split(cfg.CORS.AllowedOrigins, ","), true))
	}

	router.GET("/", Root)
	router.GET("/health", Health)
	router.GET("/openapi.json", OpenAPIDoc)

	authHandler := NewAuthHandler(svc, limiter)
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", authHandler.Logout)
		auth.GET("/me", AuthMiddleware(svc), authHandler.Me)
	}

	return router
}
