package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	wire "whatsapp-inbox/pkg/models"
)

func TestNormalizeInbound(t *testing.T) {
	tests := []struct {
		name        string
		msg         wire.WebhookMessage
		wantType    string
		wantContent string
		wantMediaID string
	}{
		{
			name:        "text verbatim",
			msg:         wire.WebhookMessage{Type: "text", Text: &wire.TextMessage{Body: "Oi, quero viajar para Lisboa"}},
			wantType:    "text",
			wantContent: "Oi, quero viajar para Lisboa",
		},
		{
			name:        "image with caption",
			msg:         wire.WebhookMessage{Type: "image", Image: &wire.MediaMessage{ID: "media-1", Caption: "o passaporte"}},
			wantType:    "image",
			wantContent: "o passaporte",
			wantMediaID: "media-1",
		},
		{
			name:        "image without caption",
			msg:         wire.WebhookMessage{Type: "image", Image: &wire.MediaMessage{ID: "media-2"}},
			wantType:    "image",
			wantContent: "[Image]",
			wantMediaID: "media-2",
		},
		{
			name:        "audio",
			msg:         wire.WebhookMessage{Type: "audio", Audio: &wire.MediaMessage{ID: "media-3"}},
			wantType:    "audio",
			wantContent: "[Audio]",
			wantMediaID: "media-3",
		},
		{
			name:        "video with caption",
			msg:         wire.WebhookMessage{Type: "video", Video: &wire.MediaMessage{ID: "media-4", Caption: "a praia"}},
			wantType:    "video",
			wantContent: "a praia",
			wantMediaID: "media-4",
		},
		{
			name:        "document with filename",
			msg:         wire.WebhookMessage{Type: "document", Document: &wire.MediaMessage{ID: "media-5", Filename: "itinerario.pdf"}},
			wantType:    "document",
			wantContent: "itinerario.pdf",
			wantMediaID: "media-5",
		},
		{
			name:        "document without filename",
			msg:         wire.WebhookMessage{Type: "document", Document: &wire.MediaMessage{ID: "media-6"}},
			wantType:    "document",
			wantContent: "[Document]",
			wantMediaID: "media-6",
		},
		{
			name:        "location",
			msg:         wire.WebhookMessage{Type: "location", Location: &wire.LocationMessage{Latitude: -23.55, Longitude: -46.63}},
			wantType:    "location",
			wantContent: "[Location: -23.55, -46.63]",
		},
		{
			name:        "sticker",
			msg:         wire.WebhookMessage{Type: "sticker", Sticker: &wire.MediaMessage{ID: "media-7"}},
			wantType:    "sticker",
			wantContent: "[Sticker]",
		},
		{
			name:        "reaction",
			msg:         wire.WebhookMessage{Type: "reaction", Reaction: &wire.ReactionMessage{MessageID: "wamid.1", Emoji: "👍"}},
			wantType:    "reaction",
			wantContent: "[Reaction: 👍]",
		},
		{
			name:        "unknown type still yields content",
			msg:         wire.WebhookMessage{Type: "interactive"},
			wantType:    "interactive",
			wantContent: "[interactive]",
		},
		{
			name:        "text with missing payload",
			msg:         wire.WebhookMessage{Type: "text"},
			wantType:    "text",
			wantContent: "[text]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeInbound(tt.msg)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantContent, got.Content)
			assert.Equal(t, tt.wantMediaID, got.MediaID)
		})
	}
}
