package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/loomnote/chat-backend/internal/apperr"
	"github.com/loomnote/chat-backend/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Tenant{},
		&models.Membership{},
		&models.Conversation{},
		&models.Message{},
	))
	return db
}

func newTestStore(t *testing.T) *ConversationStore {
	t.Helper()
	return New(newTestDB(t), nil)
}

func testScope() Scope {
	return Scope{TenantID: uuid.New(), UserID: uuid.New()}
}

func TestCreateAssignsDefaults(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	scope := testScope()

	conversation, err := s.Create(ctx, scope, "")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, conversation.ID)
	assert.Equal(t, models.DefaultConversationTitle, conversation.Title)
	assert.Equal(t, scope.TenantID, conversation.TenantID)
	assert.Equal(t, scope.UserID, conversation.UserID)

	titled, err := s.Create(ctx, scope, "Plans")
	require.NoError(t, err)
	assert.Equal(t, "Plans", titled.Title)
}

func TestCreateIsNotIdempotent(t *testing.T) {
	// Two creates yield two distinct conversations. This is the intended
	// create semantics, not a bug.
	ctx := context.Background()
	s := newTestStore(t)
	scope := testScope()

	first, err := s.Create(ctx, scope, "same title")
	require.NoError(t, err)
	second, err := s.Create(ctx, scope, "same title")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)

	conversations, err := s.List(ctx, scope)
	require.NoError(t, err)
	assert.Len(t, conversations, 2)
}

func TestListScopedAndOrdered(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	scope := testScope()
	otherScope := testScope()

	older, err := s.Create(ctx, scope, "older")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	newer, err := s.Create(ctx, scope, "newer")
	require.NoError(t, err)
	_, err = s.Create(ctx, otherScope, "not mine")
	require.NoError(t, err)

	conversations, err := s.List(ctx, scope)
	require.NoError(t, err)
	require.Len(t, conversations, 2)
	assert.Equal(t, newer.ID, conversations[0].ID)
	assert.Equal(t, older.ID, conversations[1].ID)
	for _, conversation := range conversations {
		assert.Equal(t, scope.TenantID, conversation.TenantID)
		assert.Equal(t, scope.UserID, conversation.UserID)
	}
}

func TestListEmptyIsNotAnError(t *testing.T) {
	s := newTestStore(t)

	conversations, err := s.List(context.Background(), testScope())
	require.NoError(t, err)
	assert.NotNil(t, conversations)
	assert.Empty(t, conversations)
}

func TestAppendMessageBumpsConversation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	scope := testScope()

	first, err := s.Create(ctx, scope, "first")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)
	second, err := s.Create(ctx, scope, "second")
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	// Appending to the older conversation moves it to the top of the list.
	_, err = s.AppendMessage(ctx, first.ID, models.RoleMessageUser, "hello", nil)
	require.NoError(t, err)

	conversations, err := s.List(ctx, scope)
	require.NoError(t, err)
	require.Len(t, conversations, 2)
	assert.Equal(t, first.ID, conversations[0].ID)
	assert.Equal(t, second.ID, conversations[1].ID)
}

func TestMessagesOrderedByCreation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	scope := testScope()

	conversation, err := s.Create(ctx, scope, "")
	require.NoError(t, err)

	contents := []struct{ role, content string }{
		{models.RoleMessageUser, "Hello"},
		{models.RoleMessageAssistant, "Hi there"},
		{models.RoleMessageUser, "How are you?"},
		{models.RoleMessageAssistant, "Fine, thanks"},
	}
	for _, m := range contents {
		_, err := s.AppendMessage(ctx, conversation.ID, m.role, m.content, nil)
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	_, messages, err := s.Get(ctx, scope, conversation.ID)
	require.NoError(t, err)
	require.Len(t, messages, len(contents))
	for i, m := range contents {
		assert.Equal(t, m.role, messages[i].Role)
		assert.Equal(t, m.content, messages[i].Content)
		if i > 0 {
			assert.False(t, messages[i].CreatedAt.Before(messages[i-1].CreatedAt))
		}
	}
}

func TestGetNotFoundIndistinguishable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	scopeA := testScope()
	scopeB := Scope{TenantID: scopeA.TenantID, UserID: uuid.New()} // same tenant, different user

	owned, err := s.Create(ctx, scopeB, "user B's conversation")
	require.NoError(t, err)

	// Nonexistent id.
	_, _, errMissing := s.Get(ctx, scopeA, uuid.New())
	// Exists but belongs to another user in the same tenant.
	_, _, errUnowned := s.Get(ctx, scopeA, owned.ID)

	require.Error(t, errMissing)
	require.Error(t, errUnowned)
	assert.True(t, apperr.IsNotFound(errMissing))
	assert.True(t, apperr.IsNotFound(errUnowned))
	// The two failures must not be distinguishable by message either.
	assert.Equal(t, errMissing.Error(), errUnowned.Error())
}

func TestGetWrongTenant(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	scope := testScope()

	conversation, err := s.Create(ctx, scope, "")
	require.NoError(t, err)

	crossTenant := Scope{TenantID: uuid.New(), UserID: scope.UserID}
	_, _, err = s.Get(ctx, crossTenant, conversation.ID)
	assert.True(t, apperr.IsNotFound(err))
}

func TestDeleteCascadesToMessages(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	scope := testScope()

	conversation, err := s.Create(ctx, scope, "")
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, conversation.ID, models.RoleMessageUser, "hello", nil)
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, conversation.ID, models.RoleMessageAssistant, "hi", nil)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, scope, conversation.ID))

	_, _, err = s.Get(ctx, scope, conversation.ID)
	assert.True(t, apperr.IsNotFound(err))

	var count int64
	require.NoError(t, s.db.Model(&models.Message{}).
		Where("conversation_id = ?", conversation.ID).
		Count(&count).Error)
	assert.Zero(t, count)
}

func TestDeleteNotFoundRules(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	scope := testScope()

	other, err := s.Create(ctx, testScope(), "someone else's")
	require.NoError(t, err)

	errMissing := s.Delete(ctx, scope, uuid.New())
	errUnowned := s.Delete(ctx, scope, other.ID)

	assert.True(t, apperr.IsNotFound(errMissing))
	assert.True(t, apperr.IsNotFound(errUnowned))
	assert.Equal(t, errMissing.Error(), errUnowned.Error())
}
