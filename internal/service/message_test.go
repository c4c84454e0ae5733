package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"whatsapp-inbox/internal/cache"
	"whatsapp-inbox/internal/database"
	"whatsapp-inbox/internal/events"
	"whatsapp-inbox/internal/models"
	"whatsapp-inbox/internal/store"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:service_%s?mode=memory&cache=shared", name)
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

// fakeSender scripts provider behavior for the send path.
type fakeSender struct {
	mu      sync.Mutex
	nextID  int
	failErr error
	entered chan struct{}
	release chan struct{}
	calls   []string
}

func (f *fakeSender) SendText(ctx context.Context, to, body string) (string, error) {
	return f.send(to)
}

func (f *fakeSender) SendTemplate(ctx context.Context, to, templateName, languageCode string) (string, error) {
	return f.send(to)
}

func (f *fakeSender) send(to string) (string, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, to)
	if f.failErr != nil {
		return "", f.failErr
	}
	f.nextID++
	return fmt.Sprintf("wamid.out-%d", f.nextID), nil
}

type sendEnv struct {
	db     *gorm.DB
	msgs   *store.MessageStore
	convs  *store.ConversationStore
	bus    *events.MemoryBus
	sender *fakeSender
	svc    *MessageService
	conv   *models.Conversation
}

func newSendEnv(t *testing.T) *sendEnv {
	t.Helper()
	db := newTestDB(t)
	contacts := store.NewContactStore(db)
	convs := store.NewConversationStore(db)
	msgs := store.NewMessageStore(db)
	bus := events.NewMemoryBus()
	sender := &fakeSender{}

	svc := NewMessageService(convs, msgs, sender, bus, cache.New(0), zap.NewNop())

	ctx := context.Background()
	contact, err := contacts.ResolveContact(ctx, "5511977770001", "Cliente")
	require.NoError(t, err)
	conv, err := convs.ResolveOpen(ctx, contact.ID)
	require.NoError(t, err)

	return &sendEnv{db: db, msgs: msgs, convs: convs, bus: bus, sender: sender, svc: svc, conv: conv}
}

func TestSendPersistsAgentMessage(t *testing.T) {
	env := newSendEnv(t)
	ctx := context.Background()

	var published []events.Event
	_, err := env.bus.Subscribe(events.MessageNew, func(evt events.Event) { published = append(published, evt) })
	require.NoError(t, err)

	msg, err := env.svc.SendToCustomer(ctx, SendRequest{
		ConversationID: env.conv.ID,
		Content:        "Segue a proposta do pacote!",
		SenderName:     "Agente Bia",
	})
	require.NoError(t, err)
	assert.Equal(t, models.SenderAgent, msg.Sender)
	assert.Equal(t, models.StatusSent, msg.Status)
	require.NotNil(t, msg.ProviderMessageID)
	assert.Equal(t, "wamid.out-1", *msg.ProviderMessageID)

	// Sent to the contact's phone.
	assert.Equal(t, []string{"5511977770001"}, env.sender.calls)

	stored, err := env.msgs.FindByProviderID(ctx, "wamid.out-1")
	require.NoError(t, err)
	assert.Equal(t, "Segue a proposta do pacote!", stored.Content)

	// Agent sends never bump unread.
	unread, err := env.convs.Unread(ctx, env.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)

	require.Len(t, published, 1)
	assert.Equal(t, env.conv.ID, published[0].ConversationID)
}

func TestTemplateSendStoresPlaceholderContent(t *testing.T) {
	env := newSendEnv(t)
	ctx := context.Background()

	msg, err := env.svc.SendToCustomer(ctx, SendRequest{
		ConversationID: env.conv.ID,
		TemplateName:   "boas_vindas",
	})
	require.NoError(t, err)
	assert.Equal(t, "template", msg.ContentType)
	assert.Equal(t, "[Template: boas_vindas]", msg.Content)

	conv, err := env.convs.FindByID(ctx, env.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "[Template: boas_vindas]", conv.LastMessagePreview)
}

func TestSendFailureLeavesNothingBehind(t *testing.T) {
	env := newSendEnv(t)
	ctx := context.Background()
	env.sender.failErr = errors.New("131047: re-engagement required")

	_, err := env.svc.SendToCustomer(ctx, SendRequest{
		ConversationID: env.conv.ID,
		Content:        "essa não vai",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "131047")

	var count int64
	require.NoError(t, env.db.Model(&models.Message{}).
		Where("conversation_id = ?", env.conv.ID).Count(&count).Error)
	assert.EqualValues(t, 0, count)

	conv, err := env.convs.FindByID(ctx, env.conv.ID)
	require.NoError(t, err)
	assert.Empty(t, conv.LastMessagePreview)
}

func TestSendRejectsConcurrentSendOnSameConversation(t *testing.T) {
	env := newSendEnv(t)
	ctx := context.Background()
	env.sender.entered = make(chan struct{}, 1)
	env.sender.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := env.svc.SendToCustomer(ctx, SendRequest{ConversationID: env.conv.ID, Content: "primeira"})
		done <- err
	}()

	<-env.sender.entered

	_, err := env.svc.SendToCustomer(ctx, SendRequest{ConversationID: env.conv.ID, Content: "segunda"})
	assert.ErrorIs(t, err, ErrSendInFlight)

	close(env.sender.release)
	require.NoError(t, <-done)

	// The guard lifts once the first send finishes.
	env.sender.entered = nil
	env.sender.release = nil
	_, err = env.svc.SendToCustomer(ctx, SendRequest{ConversationID: env.conv.ID, Content: "terceira"})
	require.NoError(t, err)
}

func TestSendToUnknownConversation(t *testing.T) {
	env := newSendEnv(t)

	_, err := env.svc.SendToCustomer(context.Background(), SendRequest{
		ConversationID: "no-such-conversation",
		Content:        "oi",
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, env.sender.calls)
}

func TestMarkAsReadEmitsPatch(t *testing.T) {
	env := newSendEnv(t)
	ctx := context.Background()

	require.NoError(t, env.convs.BumpSummary(ctx, env.conv.ID, "oi", time.Now(), true))

	svc := NewConversationService(env.convs, env.msgs, cache.New(0), env.bus, zap.NewNop())

	var patches []events.Event
	_, err := env.bus.Subscribe(events.ConversationUpdated, func(evt events.Event) { patches = append(patches, evt) })
	require.NoError(t, err)

	require.NoError(t, svc.MarkAsRead(ctx, env.conv.ID))

	unread, err := env.convs.Unread(ctx, env.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)

	require.Len(t, patches, 1)
	require.NotNil(t, patches[0].Patch)
	require.NotNil(t, patches[0].Patch.UnreadCount)
	assert.Equal(t, 0, *patches[0].Patch.UnreadCount)
	assert.Nil(t, patches[0].Patch.Status)
}

func TestConversationGetIsCachedUntilInvalidated(t *testing.T) {
	env := newSendEnv(t)
	ctx := context.Background()

	svc := NewConversationService(env.convs, env.msgs, cache.New(0), env.bus, zap.NewNop())

	first, err := svc.Get(ctx, env.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationOpen, first.Status)

	// A direct store write is invisible until the cache entry drops.
	require.NoError(t, env.convs.Assign(ctx, env.conv.ID, "agent-7"))
	cached, err := svc.Get(ctx, env.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, first.AssignedAgentID, cached.AssignedAgentID)

	// Mutating through the service invalidates.
	require.NoError(t, svc.Close(ctx, env.conv.ID))
	fresh, err := svc.Get(ctx, env.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationClosed, fresh.Status)
	assert.Equal(t, "agent-7", fresh.AssignedAgentID)
}
