package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"whatsapp-inbox/internal/config"
)

const defaultTimeout = 15 * time.Second

// Client talks to the WhatsApp Cloud API (Graph API). Requests are
// bounded by the http client timeout; a hung provider call surfaces as
// an error, never as a pending send.
type Client struct {
	cfg  *config.Config
	http *http.Client
	base string
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: defaultTimeout},
		base: fmt.Sprintf("https://graph.facebook.com/%s", cfg.GraphAPIVersion),
	}
}

// APIError preserves the provider's failure detail verbatim so the
// send path can surface it to the agent.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp API error: status %d - %s", e.StatusCode, e.Body)
}

// --- Request/response shapes ---

type GenericMessage struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Text             *TextObj     `json:"text,omitempty"`
	Template         *TemplateObj `json:"template,omitempty"`
}

type TextObj struct {
	Body       string `json:"body"`
	PreviewUrl bool   `json:"preview_url,omitempty"`
}

type TemplateObj struct {
	Name     string      `json:"name"`
	Language LanguageObj `json:"language"`
}

type LanguageObj struct {
	Code string `json:"code"`
}

// SendResponse is the Cloud API reply to a message send. The message
// id is the correlation key for later status webhooks.
type SendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func (c *Client) sendRequest(ctx context.Context, method, url string, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.WhatsAppToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return respBody, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

func (c *Client) sendMessage(ctx context.Context, msg GenericMessage) (string, error) {
	url := fmt.Sprintf("%s/%s/messages", c.base, c.cfg.PhoneNumberID)
	respBody, err := c.sendRequest(ctx, http.MethodPost, url, msg)
	if err != nil {
		return "", err
	}

	var resp SendResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to decode send response: %w", err)
	}
	if len(resp.Messages) == 0 {
		return "", fmt.Errorf("send response carried no message id")
	}
	return resp.Messages[0].ID, nil
}

// SendText sends a plain text message and returns the provider
// message id.
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	return c.sendMessage(ctx, GenericMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &TextObj{Body: body},
	})
}

// SendTemplate sends an approved template message. An empty language
// code defaults to pt_BR, the agency's locale.
func (c *Client) SendTemplate(ctx context.Context, to, templateName, languageCode string) (string, error) {
	if languageCode == "" {
		languageCode = "pt_BR"
	}
	return c.sendMessage(ctx, GenericMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "template",
		Template: &TemplateObj{
			Name:     templateName,
			Language: LanguageObj{Code: languageCode},
		},
	})
}

// MarkAsRead flags an inbound message as read on WhatsApp so the
// customer sees the blue check marks.
func (c *Client) MarkAsRead(ctx context.Context, providerMessageID string) error {
	url := fmt.Sprintf("%s/%s/messages", c.base, c.cfg.PhoneNumberID)
	body := map[string]string{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        providerMessageID,
	}
	_, err := c.sendRequest(ctx, http.MethodPost, url, body)
	return err
}

// RetrieveMediaURL resolves an opaque media id to a short-lived
// download URL. Fetching the bytes needs another authorized request.
func (c *Client) RetrieveMediaURL(ctx context.Context, mediaID string) (string, error) {
	url := fmt.Sprintf("%s/%s", c.base, mediaID)
	respBody, err := c.sendRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(respBody, &obj); err != nil {
		return "", err
	}
	return obj.URL, nil
}
