// Package ai produces reply suggestions for agents from recent
// conversation history.
package ai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"whatsapp-inbox/internal/models"
)

// SuggestionRequest carries the conversation context for a suggestion.
type SuggestionRequest struct {
	ContactName string
	ContactTags []string
	AgentName   string
	History     []models.Message
}

// Suggester proposes a reply an agent can edit before sending.
type Suggester interface {
	SuggestReply(ctx context.Context, req SuggestionRequest) (string, error)
}

// OpenAISuggester implements Suggester on the OpenAI chat API.
type OpenAISuggester struct {
	client *openai.Client
	model  string
}

func NewOpenAISuggester(apiKey string) *OpenAISuggester {
	return &OpenAISuggester{
		client: openai.NewClient(apiKey),
		model:  "gpt-4o-mini",
	}
}

func (s *OpenAISuggester) SuggestReply(ctx context.Context, req SuggestionRequest) (string, error) {
	system := fmt.Sprintf(
		"You are assisting %s, a travel agency sales agent, in a WhatsApp conversation with %s.",
		req.AgentName, req.ContactName)
	if len(req.ContactTags) > 0 {
		system += " Contact tags: " + strings.Join(req.ContactTags, ", ") + "."
	}
	system += " Suggest one short, friendly reply in the customer's language. Reply with the message text only."

	msgs := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
	}
	for _, m := range req.History {
		role := openai.ChatMessageRoleUser
		if m.Sender == models.SenderAgent || m.Sender == models.SenderBot {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     s.model,
		Messages:  msgs,
		MaxTokens: 300,
	})
	if err != nil {
		return "", fmt.Errorf("suggestion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("suggestion response carried no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
