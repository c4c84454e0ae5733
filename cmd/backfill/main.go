// Backfill recomputes the denormalized conversation summaries from the
// messages table: last message preview, last activity timestamp and
// unread count. Run it after manual data fixes or imports.
package main

import (
	"context"
	"errors"
	"log"

	"go.uber.org/zap"

	"whatsapp-inbox/internal/config"
	"whatsapp-inbox/internal/database"
	"whatsapp-inbox/internal/models"
	"whatsapp-inbox/internal/store"
	"whatsapp-inbox/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync()

	db, err := database.Connect(cfg)
	if err != nil {
		zl.Fatal("failed to connect to database", zap.Error(err))
	}

	ctx := context.Background()
	messages := store.NewMessageStore(db)

	var conversations []models.Conversation
	if err := db.WithContext(ctx).Find(&conversations).Error; err != nil {
		zl.Fatal("failed to list conversations", zap.Error(err))
	}
	zl.Info("recomputing conversation summaries", zap.Int("count", len(conversations)))

	var fixed int
	for _, conv := range conversations {
		last, err := messages.LastByConversation(ctx, conv.ID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			zl.Error("failed to load last message",
				zap.String("conversation_id", conv.ID), zap.Error(err))
			continue
		}

		updates := map[string]any{}
		if last == nil {
			if conv.LastMessagePreview != "" || conv.LastMessageAt != nil {
				updates["last_message_preview"] = ""
				updates["last_message_at"] = nil
			}
		} else {
			preview := store.Truncate(last.Content, store.PreviewLimit)
			if conv.LastMessagePreview != preview {
				updates["last_message_preview"] = preview
			}
			if conv.LastMessageAt == nil || !conv.LastMessageAt.Equal(last.CreatedAt) {
				updates["last_message_at"] = last.CreatedAt
			}
		}

		// Unread is not recoverable from message rows alone (read
		// resets are agent actions), so only repair negative counts.
		if conv.UnreadCount < 0 {
			updates["unread_count"] = 0
		}

		if len(updates) == 0 {
			continue
		}
		err = db.WithContext(ctx).Model(&models.Conversation{}).
			Where("id = ?", conv.ID).
			Updates(updates).Error
		if err != nil {
			zl.Error("failed to update conversation",
				zap.String("conversation_id", conv.ID), zap.Error(err))
			continue
		}
		fixed++
	}

	zl.Info("backfill completed", zap.Int("updated", fixed))
}
