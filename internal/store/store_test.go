package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"whatsapp-inbox/internal/database"
	"whatsapp-inbox/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:store_%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func TestResolveContactCreatesOnce(t *testing.T) {
	db := newTestDB(t)
	contacts := NewContactStore(db)
	ctx := context.Background()

	first, err := contacts.ResolveContact(ctx, "5511988880001", "Paula")
	require.NoError(t, err)
	assert.Equal(t, "Paula", first.Name)
	assert.Equal(t, models.LeadNew, first.LeadStatus)
	assert.NotEmpty(t, first.ID)

	second, err := contacts.ResolveContact(ctx, "5511988880001", "Outro Nome")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Paula", second.Name)
}

func TestResolveContactFallsBackToPhoneAsName(t *testing.T) {
	db := newTestDB(t)
	contacts := NewContactStore(db)

	contact, err := contacts.ResolveContact(context.Background(), "5511988880002", "")
	require.NoError(t, err)
	assert.Equal(t, "5511988880002", contact.Name)
}

func TestConcurrentResolveOpenYieldsOneConversation(t *testing.T) {
	db := newTestDB(t)
	contacts := NewContactStore(db)
	conversations := NewConversationStore(db)
	ctx := context.Background()

	contact, err := contacts.ResolveContact(ctx, "5511988880003", "")
	require.NoError(t, err)

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, err := conversations.ResolveOpen(ctx, contact.ID)
			if assert.NoError(t, err) {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, ids[0], ids[i])
	}

	var count int64
	require.NoError(t, db.Model(&models.Conversation{}).
		Where("contact_id = ?", contact.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestResolveOpenSkipsClosedConversations(t *testing.T) {
	db := newTestDB(t)
	contacts := NewContactStore(db)
	conversations := NewConversationStore(db)
	ctx := context.Background()

	contact, err := contacts.ResolveContact(ctx, "5511988880004", "")
	require.NoError(t, err)

	first, err := conversations.ResolveOpen(ctx, contact.ID)
	require.NoError(t, err)
	require.NoError(t, conversations.Close(ctx, first.ID))

	second, err := conversations.ResolveOpen(ctx, contact.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	closed, err := conversations.FindByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationClosed, closed.Status)
}

func TestInsertDuplicateProviderID(t *testing.T) {
	db := newTestDB(t)
	messages := NewMessageStore(db)
	ctx := context.Background()

	providerID := "wamid.store-dup"
	first := models.Message{ConversationID: "conv-1", Sender: models.SenderClient, Content: "a", ProviderMessageID: &providerID}
	require.NoError(t, messages.Insert(ctx, &first))

	dup := models.Message{ConversationID: "conv-1", Sender: models.SenderClient, Content: "a", ProviderMessageID: &providerID}
	err := messages.Insert(ctx, &dup)
	assert.ErrorIs(t, err, ErrDuplicateProviderID)
}

func TestInsertAllowsManyMessagesWithoutProviderID(t *testing.T) {
	db := newTestDB(t)
	messages := NewMessageStore(db)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		msg := models.Message{ConversationID: "conv-2", Sender: models.SenderSystem, Content: "nota"}
		require.NoError(t, messages.Insert(ctx, &msg))
	}

	count, err := messages.CountByConversation(ctx, "conv-2")
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestListByConversationPagesBackwards(t *testing.T) {
	db := newTestDB(t)
	messages := NewMessageStore(db)
	ctx := context.Background()

	base := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		msg := models.Message{
			ID:             fmt.Sprintf("m%d", i),
			ConversationID: "conv-3",
			Sender:         models.SenderClient,
			Content:        fmt.Sprintf("msg %d", i),
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, messages.Insert(ctx, &msg))
	}

	page, err := messages.ListByConversation(ctx, "conv-3", 2, "")
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "msg 3", page[0].Content)
	assert.Equal(t, "msg 4", page[1].Content)

	older, err := messages.ListByConversation(ctx, "conv-3", 2, page[0].ID)
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, "msg 1", older[0].Content)
	assert.Equal(t, "msg 2", older[1].Content)
}

func TestBumpSummaryTruncatesPreview(t *testing.T) {
	db := newTestDB(t)
	contacts := NewContactStore(db)
	conversations := NewConversationStore(db)
	ctx := context.Background()

	contact, err := contacts.ResolveContact(ctx, "5511988880005", "")
	require.NoError(t, err)
	conv, err := conversations.ResolveOpen(ctx, contact.ID)
	require.NoError(t, err)

	long := strings.Repeat("á", PreviewLimit+40)
	require.NoError(t, conversations.BumpSummary(ctx, conv.ID, long, time.Now(), true))

	got, err := conversations.FindByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, PreviewLimit, len([]rune(got.LastMessagePreview)))
	assert.Equal(t, 1, got.UnreadCount)
}

func TestQuickReplyShortcutUnique(t *testing.T) {
	db := newTestDB(t)
	replies := NewQuickReplyStore(db)
	ctx := context.Background()

	require.NoError(t, replies.Create(ctx, &models.QuickReply{Shortcut: "/ola", Content: "Olá! Como posso ajudar?"}))
	err := replies.Create(ctx, &models.QuickReply{Shortcut: "/ola", Content: "outro"})
	assert.ErrorIs(t, err, ErrDuplicateShortcut)
}
