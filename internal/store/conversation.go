// Package store owns persistence of conversations and messages. Every read
// and write is scoped to the (tenant, user) pair resolved by the identity
// package.
//
// Ownership checks happen here in application code against the already
// resolved scope. Storage-layer row policies are deliberately not relied on:
// self-referential policies were a known source of circular-evaluation bugs
// in systems like this one.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/loomnote/chat-backend/internal/apperr"
	"github.com/loomnote/chat-backend/internal/models"
)

const messageCacheTTL = 24 * time.Hour

// Scope is the (tenant, user) pair every store operation is checked against.
type Scope struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
}

// ConversationStore is the CRUD surface over conversations and messages.
// The Redis client is optional; a nil client disables caching and every
// read falls through to the database.
type ConversationStore struct {
	db    *gorm.DB
	cache *redis.Client
}

// New creates a ConversationStore.
func New(db *gorm.DB, cache *redis.Client) *ConversationStore {
	return &ConversationStore{db: db, cache: cache}
}

// errNotFound is returned for both nonexistent and unowned conversations so
// the two cases cannot be told apart by a caller probing for other tenants'
// data.
func errNotFound() error {
	return apperr.New(apperr.KindNotFound, "conversation not found")
}

// Create inserts a new conversation for the scope. It is explicitly not
// idempotent: two calls yield two distinct conversations.
func (s *ConversationStore) Create(ctx context.Context, scope Scope, title string) (*models.Conversation, error) {
	conversation := models.Conversation{
		TenantID: scope.TenantID,
		UserID:   scope.UserID,
		Title:    title,
		Metadata: datatypes.JSONMap{},
	}
	if err := s.db.WithContext(ctx).Create(&conversation).Error; err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return &conversation, nil
}

// List returns the scope's conversations, newest-updated first. No
// conversations is an empty slice, not an error.
func (s *ConversationStore) List(ctx context.Context, scope Scope) ([]models.Conversation, error) {
	conversations := make([]models.Conversation, 0)
	if err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", scope.TenantID, scope.UserID).
		Order("updated_at DESC").
		Find(&conversations).Error; err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return conversations, nil
}

// Get returns the conversation and its messages in creation order, or a
// not-found error when the id does not exist or is not owned by the scope.
func (s *ConversationStore) Get(ctx context.Context, scope Scope, id uuid.UUID) (*models.Conversation, []models.Message, error) {
	conversation, err := s.owned(ctx, scope, id)
	if err != nil {
		return nil, nil, err
	}

	messages, err := s.Messages(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return conversation, messages, nil
}

// Messages returns the conversation's messages in creation order, serving
// from the Redis cache when possible. Callers must have checked ownership.
func (s *ConversationStore) Messages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	if s.cache != nil {
		if cached, err := s.cachedMessages(ctx, conversationID); err == nil && len(cached) > 0 {
			return cached, nil
		}
	}

	messages := make([]models.Message, 0)
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	if s.cache != nil && len(messages) > 0 {
		if err := s.rebuildMessageCache(ctx, conversationID, messages); err != nil {
			log.Printf("Failed to cache messages for conversation %s: %v", conversationID, err)
		}
	}
	return messages, nil
}

// AppendMessage inserts a message and bumps the parent conversation's
// updated_at. The store does not deduplicate: idempotency, if wanted, is the
// caller's concern.
func (s *ConversationStore) AppendMessage(ctx context.Context, conversationID uuid.UUID, role, content string, metadata map[string]interface{}) (*models.Message, error) {
	message := models.Message{
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		Metadata:       datatypes.JSONMap(metadata),
	}
	if err := s.db.WithContext(ctx).Create(&message).Error; err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	if err := s.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update("updated_at", time.Now()).Error; err != nil {
		log.Printf("Failed to bump conversation %s: %v", conversationID, err)
	}

	if s.cache != nil {
		if err := s.cacheMessage(ctx, conversationID, message); err != nil {
			log.Printf("Failed to cache message: %v", err)
		}
	}
	return &message, nil
}

// Delete removes the conversation and all of its messages, under the same
// ownership rule as Get.
func (s *ConversationStore) Delete(ctx context.Context, scope Scope, id uuid.UUID) error {
	if _, err := s.owned(ctx, scope, id); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.Conversation{}).Error
	})
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Del(ctx, messageCacheKey(id)).Err(); err != nil {
			log.Printf("Failed to drop message cache for conversation %s: %v", id, err)
		}
	}
	return nil
}

// owned loads the conversation and checks it against the scope. Existence
// and ownership failures return the same error value.
func (s *ConversationStore) owned(ctx context.Context, scope Scope, id uuid.UUID) (*models.Conversation, error) {
	var conversation models.Conversation
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&conversation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNotFound()
		}
		return nil, fmt.Errorf("fetch conversation: %w", err)
	}
	if conversation.TenantID != scope.TenantID || conversation.UserID != scope.UserID {
		return nil, errNotFound()
	}
	return &conversation, nil
}

// cachedMessage is the JSON shape stored in the Redis message list.
type cachedMessage struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversationId"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
}

func messageCacheKey(conversationID uuid.UUID) string {
	return fmt.Sprintf("chat:%s:messages", conversationID)
}

func (s *ConversationStore) cacheMessage(ctx context.Context, conversationID uuid.UUID, msg models.Message) error {
	msgJSON, err := json.Marshal(cachedMessage{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Role:           msg.Role,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	// RPushX, not RPush: appending must never recreate an expired key with
	// only the newest message, or reads would serve a truncated history. A
	// missing key stays missing until Messages rebuilds it from the database.
	msgPipe := s.cache.Pipeline()
	msgPipe.RPushX(ctx, messageCacheKey(conversationID), msgJSON)
	msgPipe.Expire(ctx, messageCacheKey(conversationID), messageCacheTTL)

	if _, err := msgPipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache message: %w", err)
	}
	return nil
}

func (s *ConversationStore) cachedMessages(ctx context.Context, conversationID uuid.UUID) ([]models.Message, error) {
	cachedMsgs, err := s.cache.LRange(ctx, messageCacheKey(conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get messages from cache: %w", err)
	}

	var messages []models.Message
	for _, msgStr := range cachedMsgs {
		var cached cachedMessage
		if err := json.Unmarshal([]byte(msgStr), &cached); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		messages = append(messages, models.Message{
			ID:             cached.ID,
			ConversationID: cached.ConversationID,
			Role:           cached.Role,
			Content:        cached.Content,
			CreatedAt:      cached.CreatedAt,
		})
	}
	return messages, nil
}

func (s *ConversationStore) rebuildMessageCache(ctx context.Context, conversationID uuid.UUID, messages []models.Message) error {
	msgPipe := s.cache.Pipeline()
	msgPipe.Del(ctx, messageCacheKey(conversationID))

	for _, msg := range messages {
		msgJSON, err := json.Marshal(cachedMessage{
			ID:             msg.ID,
			ConversationID: msg.ConversationID,
			Role:           msg.Role,
			Content:        msg.Content,
			CreatedAt:      msg.CreatedAt,
		})
		if err != nil {
			log.Printf("Failed to marshal message: %v", err)
			continue
		}
		msgPipe.RPush(ctx, messageCacheKey(conversationID), msgJSON)
	}

	msgPipe.Expire(ctx, messageCacheKey(conversationID), messageCacheTTL)
	if _, err := msgPipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache messages: %w", err)
	}
	return nil
}
