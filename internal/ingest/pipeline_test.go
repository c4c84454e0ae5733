package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"whatsapp-inbox/internal/database"
	"whatsapp-inbox/internal/events"
	"whatsapp-inbox/internal/models"
	"whatsapp-inbox/internal/store"
	wire "whatsapp-inbox/pkg/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	// One connection keeps sqlite from returning busy errors under
	// concurrent writers.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

type testEnv struct {
	db            *gorm.DB
	contacts      *store.ContactStore
	conversations *store.ConversationStore
	messages      *store.MessageStore
	bus           *events.MemoryBus
	pipeline      *Pipeline
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	contacts := store.NewContactStore(db)
	conversations := store.NewConversationStore(db)
	messages := store.NewMessageStore(db)
	bus := events.NewMemoryBus()
	return &testEnv{
		db:            db,
		contacts:      contacts,
		conversations: conversations,
		messages:      messages,
		bus:           bus,
		pipeline:      NewPipeline(contacts, conversations, messages, bus, zap.NewNop()),
	}
}

func textMessage(id, from, body string) wire.WebhookMessage {
	return wire.WebhookMessage{
		From:      from,
		ID:        id,
		Timestamp: "1714000000",
		Type:      "text",
		Text:      &wire.TextMessage{Body: body},
	}
}

func (e *testEnv) openConversation(t *testing.T, phone string) *models.Conversation {
	t.Helper()
	contact, err := e.contacts.ResolveContact(context.Background(), phone, "")
	require.NoError(t, err)
	conv, err := e.conversations.ResolveOpen(context.Background(), contact.ID)
	require.NoError(t, err)
	return conv
}

func TestIngestPersistsMessageAndBumpsUnread(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	err := env.pipeline.Ingest(ctx, textMessage("wamid.1", "5511999990001", "Quero um pacote para Cancún"), "Maria")
	require.NoError(t, err)

	contact, err := env.contacts.ResolveContact(ctx, "5511999990001", "")
	require.NoError(t, err)
	assert.Equal(t, "Maria", contact.Name)
	assert.NotNil(t, contact.LastMessageAt)

	conv, err := env.conversations.ResolveOpen(ctx, contact.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, conv.UnreadCount)
	assert.Equal(t, "Quero um pacote para Cancún", conv.LastMessagePreview)

	msgs, err := env.messages.ListByConversation(ctx, conv.ID, 10, "")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.SenderClient, msgs[0].Sender)
	assert.Equal(t, models.StatusDelivered, msgs[0].Status)
	require.NotNil(t, msgs[0].ProviderMessageID)
	assert.Equal(t, "wamid.1", *msgs[0].ProviderMessageID)
}

func TestIngestIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var newMessages int
	_, err := env.bus.Subscribe(events.MessageNew, func(events.Event) { newMessages++ })
	require.NoError(t, err)

	msg := textMessage("wamid.dup", "5511999990002", "oi")
	require.NoError(t, env.pipeline.Ingest(ctx, msg, "João"))
	require.NoError(t, env.pipeline.Ingest(ctx, msg, "João"))
	require.NoError(t, env.pipeline.Ingest(ctx, msg, "João"))

	conv := env.openConversation(t, "5511999990002")
	assert.Equal(t, 1, conv.UnreadCount)

	count, err := env.messages.CountByConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	// Redeliveries are silent: no repeated events.
	assert.Equal(t, 1, newMessages)
}

func TestUnreadAccumulatesAndResetsOnlyOnMarkAsRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		msg := textMessage(fmt.Sprintf("wamid.u%d", i), "5511999990003", fmt.Sprintf("mensagem %d", i))
		require.NoError(t, env.pipeline.Ingest(ctx, msg, "Ana"))
	}

	conv := env.openConversation(t, "5511999990003")
	assert.Equal(t, 3, conv.UnreadCount)

	// Fetching does not reset.
	again, err := env.conversations.FindByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, again.UnreadCount)

	require.NoError(t, env.conversations.MarkAsRead(ctx, conv.ID))
	unread, err := env.conversations.Unread(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)

	// The next inbound message starts counting again.
	require.NoError(t, env.pipeline.Ingest(ctx, textMessage("wamid.u4", "5511999990003", "mais uma"), "Ana"))
	unread, err = env.conversations.Unread(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}

func TestIngestReusesOpenConversationAfterClose(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.pipeline.Ingest(ctx, textMessage("wamid.c1", "5511999990004", "primeira"), ""))
	first := env.openConversation(t, "5511999990004")

	require.NoError(t, env.conversations.Close(ctx, first.ID))

	require.NoError(t, env.pipeline.Ingest(ctx, textMessage("wamid.c2", "5511999990004", "segunda"), ""))
	second := env.openConversation(t, "5511999990004")

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, models.ConversationOpen, second.Status)
}

func TestStatusForUnknownMessageIsNoOp(t *testing.T) {
	env := newTestEnv(t)

	var statusEvents int
	_, err := env.bus.Subscribe(events.MessageStatus, func(events.Event) { statusEvents++ })
	require.NoError(t, err)

	err = env.pipeline.IngestStatus(context.Background(), wire.WebhookStatus{
		ID:     "wamid.never-seen",
		Status: "delivered",
	})
	require.NoError(t, err)
	assert.Equal(t, 0, statusEvents)
}

func TestStatusUpdateAppliesAndEmitsEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.pipeline.Ingest(ctx, textMessage("wamid.s1", "5511999990005", "oi"), ""))

	var got []events.Event
	_, err := env.bus.Subscribe(events.MessageStatus, func(evt events.Event) { got = append(got, evt) })
	require.NoError(t, err)

	err = env.pipeline.IngestStatus(ctx, wire.WebhookStatus{ID: "wamid.s1", Status: "read"})
	require.NoError(t, err)

	msg, err := env.messages.FindByProviderID(ctx, "wamid.s1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, msg.Status)

	require.Len(t, got, 1)
	require.NotNil(t, got[0].Status)
	assert.Equal(t, models.StatusRead, got[0].Status.Status)
	assert.Equal(t, msg.ID, got[0].Status.MessageID)
}

func TestFailedStatusKeepsProviderDetail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.pipeline.Ingest(ctx, textMessage("wamid.f1", "5511999990006", "oi"), ""))

	err := env.pipeline.IngestStatus(ctx, wire.WebhookStatus{
		ID:     "wamid.f1",
		Status: "failed",
		Errors: []wire.WebhookError{{Code: 131047, Title: "Re-engagement message", Message: "24h window expired"}},
	})
	require.NoError(t, err)

	msg, err := env.messages.FindByProviderID(ctx, "wamid.f1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, msg.Status)
	require.NotNil(t, msg.Error)
	assert.Equal(t, 131047, msg.Error.Code)
	assert.Equal(t, "24h window expired", msg.Error.Message)
}

func TestConcurrentBurstSharesOneConversation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := textMessage(fmt.Sprintf("wamid.b%d", i), "5511999990007", fmt.Sprintf("rajada %d", i))
			assert.NoError(t, env.pipeline.Ingest(ctx, msg, "Carlos"))
		}(i)
	}
	wg.Wait()

	var convs []models.Conversation
	contact, err := env.contacts.ResolveContact(ctx, "5511999990007", "")
	require.NoError(t, err)
	require.NoError(t, env.db.Where("contact_id = ?", contact.ID).Find(&convs).Error)
	require.Len(t, convs, 1)
	assert.Equal(t, n, convs[0].UnreadCount)

	count, err := env.messages.CountByConversation(ctx, convs[0].ID)
	require.NoError(t, err)
	assert.EqualValues(t, n, count)
}

func TestProfileNameNeverOverwritesExisting(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.pipeline.Ingest(ctx, textMessage("wamid.n1", "5511999990008", "oi"), "Nome Antigo"))

	contact, err := env.contacts.Update(ctx, mustContactID(t, env, "5511999990008"), map[string]any{"name": "Nome Curado"})
	require.NoError(t, err)
	assert.Equal(t, "Nome Curado", contact.Name)

	require.NoError(t, env.pipeline.Ingest(ctx, textMessage("wamid.n2", "5511999990008", "de novo"), "Nome Novo Do Provider"))

	contact, err = env.contacts.FindByID(ctx, contact.ID)
	require.NoError(t, err)
	assert.Equal(t, "Nome Curado", contact.Name)
}

func mustContactID(t *testing.T, env *testEnv, phone string) string {
	t.Helper()
	contact, err := env.contacts.ResolveContact(context.Background(), phone, "")
	require.NoError(t, err)
	return contact.ID
}
