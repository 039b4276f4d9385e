package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"

	"pdfrag/internal/domain"
)

const DefaultModel = openai.GPT4oMini

// Config configures the OpenAI-compatible generator.
type Config struct {
	APIKey      string
	Model       string
	Temperature float32
	BaseURL     string
}

// Client answers assembled messages through an OpenAI-compatible chat
// completions endpoint; images are sent as data URLs.
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
}

var _ domain.Generator = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &Client{client: openai.NewClientWithConfig(oc), model: cfg.Model, temperature: cfg.Temperature}, nil
}

func (c *Client) Name() string { return "openai" }

func (c *Client) Generate(ctx context.Context, msg domain.Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{{
			Role:         openai.ChatMessageRoleUser,
			MultiContent: toParts(msg),
		}},
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", &domain.GenerationError{Provider: c.Name(), Err: err}
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", &domain.GenerationError{Provider: c.Name(), Err: errors.New("empty response")}
	}
	logrus.WithFields(logrus.Fields{"model": c.model, "tokens": resp.Usage.TotalTokens}).Debug("openai answered")
	return resp.Choices[0].Message.Content, nil
}

func toParts(msg domain.Message) []openai.ChatMessagePart {
	parts := make([]openai.ChatMessagePart, 0, len(msg.Parts))
	for _, p := range msg.Parts {
		switch p.Type {
		case domain.PartImage:
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: p.DataURL(), Detail: openai.ImageURLDetailAuto},
			})
		default:
			parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: p.Text})
		}
	}
	return parts
}
