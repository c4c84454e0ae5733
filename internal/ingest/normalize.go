package ingest

import (
	"fmt"

	"whatsapp-inbox/pkg/models"
)

// NormalizedMessage is the canonical shape of an inbound message unit,
// independent of the provider's per-type payload layout.
type NormalizedMessage struct {
	Type    string
	Content string
	MediaID string
}

// NormalizeInbound maps a provider message to its canonical type and a
// human-readable content string. Pure and total: every provider type,
// including ones this system has never seen, yields a non-empty
// content string.
func NormalizeInbound(msg models.WebhookMessage) NormalizedMessage {
	out := NormalizedMessage{Type: msg.Type}

	switch msg.Type {
	case "text":
		if msg.Text != nil {
			out.Content = msg.Text.Body
		}
	case "image":
		out.Content = "[Image]"
		if msg.Image != nil {
			if msg.Image.Caption != "" {
				out.Content = msg.Image.Caption
			}
			out.MediaID = msg.Image.ID
		}
	case "audio":
		out.Content = "[Audio]"
		if msg.Audio != nil {
			out.MediaID = msg.Audio.ID
		}
	case "video":
		out.Content = "[Video]"
		if msg.Video != nil {
			if msg.Video.Caption != "" {
				out.Content = msg.Video.Caption
			}
			out.MediaID = msg.Video.ID
		}
	case "document":
		out.Content = "[Document]"
		if msg.Document != nil {
			if msg.Document.Filename != "" {
				out.Content = msg.Document.Filename
			}
			out.MediaID = msg.Document.ID
		}
	case "location":
		if msg.Location != nil {
			out.Content = fmt.Sprintf("[Location: %v, %v]", msg.Location.Latitude, msg.Location.Longitude)
		} else {
			out.Content = "[Location]"
		}
	case "sticker":
		out.Content = "[Sticker]"
	case "reaction":
		if msg.Reaction != nil {
			out.Content = fmt.Sprintf("[Reaction: %s]", msg.Reaction.Emoji)
		} else {
			out.Content = "[Reaction]"
		}
	default:
		out.Content = "[" + msg.Type + "]"
	}

	if out.Content == "" {
		out.Content = "[" + msg.Type + "]"
	}
	return out
}
