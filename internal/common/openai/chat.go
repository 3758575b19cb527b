// Package openai is the known-good chat completion path used when the
// agent service cannot be reached, and for client-side memory mode.
package openai

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
	"time"

	oa "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"tutor-chat/internal/models"
)

// ErrEmptyCompletion is returned when the API answers without choices.
var ErrEmptyCompletion = stderrors.New("chat completion returned no choices")

type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	SystemPrompt string
	Timeout      time.Duration
	MaxRetries   int
}

type ChatClient struct {
	client       oa.Client
	model        string
	maxTokens    int
	systemPrompt string
}

func NewChatClient(cfg Config, opts ...option.RequestOption) *ChatClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	base := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Transport: transport, Timeout: timeout}),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		base = append(base, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	return &ChatClient{
		client:       oa.NewClient(append(base, opts...)...),
		model:        model,
		maxTokens:    cfg.MaxTokens,
		systemPrompt: cfg.SystemPrompt,
	}
}

// Complete sends the system prompt, prior turns and the new question, and
// returns the first choice's text.
func (c *ChatClient) Complete(ctx context.Context, history []models.Turn, q models.Question) (string, error) {
	params := oa.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: c.messages(history, q),
	}
	if c.maxTokens > 0 {
		params.MaxTokens = oa.Int(int64(c.maxTokens))
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *ChatClient) messages(history []models.Turn, q models.Question) []oa.ChatCompletionMessageParamUnion {
	messages := make([]oa.ChatCompletionMessageParamUnion, 0, len(history)+2)
	if c.systemPrompt != "" {
		messages = append(messages, oa.SystemMessage(c.systemPrompt))
	}
	for _, t := range history {
		switch t.Role {
		case models.RoleSystem:
			messages = append(messages, oa.SystemMessage(t.Text))
		case models.RoleAssistant:
			messages = append(messages, oa.AssistantMessage(t.Text))
		default:
			messages = append(messages, userMessage(t.Text, t.ImageDataURL))
		}
	}
	return append(messages, userMessage(q.Text, q.ImageDataURL))
}

// userMessage is plain text, or text plus image parts when an image is attached.
func userMessage(text, imageDataURL string) oa.ChatCompletionMessageParamUnion {
	if imageDataURL == "" {
		return oa.UserMessage(text)
	}
	parts := make([]oa.ChatCompletionContentPartUnionParam, 0, 2)
	if text != "" {
		parts = append(parts, oa.TextContentPart(text))
	}
	parts = append(parts, oa.ImageContentPart(oa.ChatCompletionContentPartImageImageURLParam{URL: imageDataURL}))
	return oa.UserMessage(parts)
}
