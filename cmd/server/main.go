package main

import (
	"log"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/loomnote/chat-backend/internal/api/handlers"
	"github.com/loomnote/chat-backend/internal/api/middleware"
	"github.com/loomnote/chat-backend/internal/config"
	"github.com/loomnote/chat-backend/internal/database"
	"github.com/loomnote/chat-backend/internal/identity"
)

func main() {
	// Load configuration
	config, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// Initialize database connections
	db := database.InitDB(config)
	redisClient := database.InitRedis(config)

	// Setup and run the server
	r := setupRouter(db, redisClient, config)
	port := config.ServerPort

	log.Printf("Server starting on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

func setupRouter(db *gorm.DB, redisClient *redis.Client, config *config.Config) *gin.Engine {
	r := gin.Default()

	// Configure CORS middleware
	headers := cors.DefaultConfig()
	headers.AllowOrigins = []string{config.FrontendURL}
	headers.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	headers.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Tenant-ID"}
	headers.ExposeHeaders = []string{"Content-Length", "X-Refreshed-Token"}
	headers.AllowCredentials = true
	r.Use(cors.New(headers))

	// Initialize handlers and middleware with dependencies
	resolver := identity.NewResolver(db, config.JWTSecret, config.TokenTTL, config.RefreshWindow)
	handler := handlers.NewHandler(db, redisClient, resolver, config)
	authMiddleware := middleware.NewAuthMiddleware(resolver)

	// API routes
	api := r.Group("/api")
	{
		// Auth routes
		authGroup := api.Group("/auth")
		{
			authGroup.POST("/register", handler.RegisterHandler)
			authGroup.POST("/login", handler.LoginHandler)
		}

		// Conversation routes - protected by authentication
		conversations := api.Group("/conversations", authMiddleware.AuthMiddleware())
		{
			conversations.GET("", handler.ListConversations)
			conversations.POST("", handler.CreateConversation)
			conversations.GET("/:conversationId", handler.GetConversation)
			conversations.DELETE("/:conversationId", handler.DeleteConversation)
		}

		// Streaming chat turn endpoint
		api.POST("/chat", authMiddleware.AuthMiddleware(), handler.StreamTurn)
	}

	return r
}
