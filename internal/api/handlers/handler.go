package handlers

import (
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/loomnote/chat-backend/internal/config"
	"github.com/loomnote/chat-backend/internal/gateway"
	"github.com/loomnote/chat-backend/internal/identity"
	"github.com/loomnote/chat-backend/internal/orchestrator"
	"github.com/loomnote/chat-backend/internal/store"
)

// handler is the core struct with all dependencies
type handler struct {
	db           *gorm.DB
	store        *store.ConversationStore
	resolver     *identity.Resolver
	orchestrator *orchestrator.Orchestrator
	config       *config.Config
}

// NewHandler creates a new handler instance
func NewHandler(db *gorm.DB, redisClient *redis.Client, resolver *identity.Resolver, config *config.Config) *handler {
	conversationStore := store.New(db, redisClient)
	modelClient := gateway.NewClient(
		config.ModelBaseURL,
		config.ModelAPIKey,
		config.ModelDefault,
		config.ModelTemperature,
		config.ModelTimeout,
	)
	return &handler{
		db:           db,
		store:        conversationStore,
		resolver:     resolver,
		orchestrator: orchestrator.New(conversationStore, modelClient),
		config:       config,
	}
}
