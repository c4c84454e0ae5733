package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"whatsapp-inbox/internal/ai"
	"whatsapp-inbox/internal/api"
	"whatsapp-inbox/internal/cache"
	"whatsapp-inbox/internal/config"
	"whatsapp-inbox/internal/crm"
	"whatsapp-inbox/internal/database"
	"whatsapp-inbox/internal/events"
	"whatsapp-inbox/internal/ingest"
	"whatsapp-inbox/internal/service"
	"whatsapp-inbox/internal/store"
	"whatsapp-inbox/internal/webhook"
	"whatsapp-inbox/internal/whatsapp"
	"whatsapp-inbox/internal/ws"
	"whatsapp-inbox/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	zl, err := logger.New(cfg.LogLevel)
	if cfg.Environment == "development" {
		zl, err = logger.NewDevelopment()
	}
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync()

	db, err := database.Connect(cfg)
	if err != nil {
		zl.Fatal("failed to connect to database", zap.Error(err))
	}

	contacts := store.NewContactStore(db)
	conversations := store.NewConversationStore(db)
	messages := store.NewMessageStore(db)
	notes := store.NewNoteStore(db)
	quickReplies := store.NewQuickReplyStore(db)

	var bus events.Bus
	if cfg.NATSUrl != "" {
		natsBus, err := events.ConnectNATS(cfg.NATSUrl, zl)
		if err != nil {
			zl.Fatal("failed to connect to nats", zap.Error(err))
		}
		bus = natsBus
		zl.Info("using nats event transport", zap.String("url", cfg.NATSUrl))
	} else {
		bus = events.NewMemoryBus()
		zl.Info("using in-process event transport")
	}
	defer bus.Close()

	waClient := whatsapp.NewClient(cfg)

	var leadSync *service.LeadSync
	if cfg.CRMBaseURL != "" {
		crmClient := crm.NewHTTPClient(cfg.CRMBaseURL, cfg.CRMToken)
		leadSync = service.NewLeadSync(contacts, crmClient, zl)
	}

	pipeline := ingest.NewPipeline(contacts, conversations, messages, bus, zl).
		WithReadMarker(waClient)
	if leadSync != nil {
		pipeline = pipeline.WithCRMSync(leadSync)
	}

	convCache := cache.New(0)
	conversationSvc := service.NewConversationService(conversations, messages, convCache, bus, zl)
	messageSvc := service.NewMessageService(conversations, messages, waClient, bus, convCache, zl)
	if cfg.OpenAIAPIKey != "" {
		messageSvc = messageSvc.WithSuggester(ai.NewOpenAISuggester(cfg.OpenAIAPIKey))
	}

	hub := ws.NewHub(bus, zl)
	if err := hub.Start(); err != nil {
		zl.Fatal("failed to start websocket hub", zap.Error(err))
	}
	defer hub.Stop()

	webhookHandler := webhook.NewHandler(cfg, pipeline, zl)
	conversationHandler := api.NewConversationHandler(conversationSvc)
	messageHandler := api.NewMessageHandler(messageSvc)
	contactHandler := api.NewContactHandler(contacts, notes)
	if leadSync != nil {
		contactHandler = contactHandler.WithLeadSync(leadSync)
	}
	quickReplyHandler := api.NewQuickReplyHandler(quickReplies)
	mediaHandler := api.NewMediaHandler(waClient)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(api.CORSMiddleware())

	r.GET("/webhook", webhookHandler.Verify)
	r.POST("/webhook", webhookHandler.Receive)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", func(c *gin.Context) {
		hub.ServeWs(c.Writer, c.Request)
	})

	apiGroup := r.Group("/api", api.AuthMiddleware(cfg.JWTSecret))
	{
		apiGroup.GET("/conversations", conversationHandler.List)
		apiGroup.GET("/conversations/:id", conversationHandler.Get)
		apiGroup.GET("/conversations/:id/messages", conversationHandler.Messages)
		apiGroup.POST("/conversations/:id/messages", messageHandler.Send)
		apiGroup.POST("/conversations/:id/read", conversationHandler.MarkAsRead)
		apiGroup.POST("/conversations/:id/assign", conversationHandler.Assign)
		apiGroup.POST("/conversations/:id/close", conversationHandler.Close)
		apiGroup.GET("/conversations/:id/suggestion", messageHandler.Suggest)
		apiGroup.POST("/send", messageHandler.Send)

		apiGroup.GET("/contacts", contactHandler.List)
		apiGroup.POST("/contacts", contactHandler.Create)
		apiGroup.GET("/contacts/export", contactHandler.Export)
		apiGroup.GET("/contacts/:id", contactHandler.Get)
		apiGroup.PUT("/contacts/:id", contactHandler.Update)
		apiGroup.DELETE("/contacts/:id", contactHandler.Delete)
		apiGroup.GET("/contacts/:id/notes", contactHandler.ListNotes)
		apiGroup.POST("/contacts/:id/notes", contactHandler.CreateNote)
		apiGroup.DELETE("/contacts/:id/notes/:noteId", contactHandler.DeleteNote)

		apiGroup.GET("/quick-replies", quickReplyHandler.List)
		apiGroup.POST("/quick-replies", quickReplyHandler.Create)
		apiGroup.PUT("/quick-replies/:id", quickReplyHandler.Update)
		apiGroup.DELETE("/quick-replies/:id", quickReplyHandler.Delete)

		apiGroup.GET("/media/:id", mediaHandler.RetrieveURL)
	}

	zl.Info("server starting", zap.String("port", cfg.Port))
	if err := r.Run(":" + cfg.Port); err != nil {
		zl.Fatal("server stopped", zap.Error(err))
	}
}
