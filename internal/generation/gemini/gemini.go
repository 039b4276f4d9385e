package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"pdfrag/internal/domain"
)

const (
	DefaultModel       = "gemini-2.0-flash"
	DefaultTemperature = 0.2
)

// Config configures the Gemini generator.
type Config struct {
	APIKey      string
	Model       string
	Temperature float32
	BaseURL     string
}

// Client answers assembled messages with a Gemini model. Provider failures
// are returned as GenerationError without retrying.
type Client struct {
	client      *genai.Client
	model       string
	temperature float32
}

var _ domain.Generator = (*Client)(nil)

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{client: client, model: cfg.Model, temperature: cfg.Temperature}, nil
}

func (c *Client) Name() string { return "gemini" }

func (c *Client) Generate(ctx context.Context, msg domain.Message) (string, error) {
	parts, err := toParts(msg)
	if err != nil {
		return "", &domain.GenerationError{Provider: c.Name(), Err: err}
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr(c.temperature),
	})
	if err != nil {
		return "", &domain.GenerationError{Provider: c.Name(), Err: err}
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", &domain.GenerationError{Provider: c.Name(), Err: errors.New("empty response")}
	}
	logrus.WithFields(logrus.Fields{"model": c.model, "images": msg.ImageParts()}).Debug("gemini answered")
	return text, nil
}

func toParts(msg domain.Message) ([]*genai.Part, error) {
	parts := make([]*genai.Part, 0, len(msg.Parts))
	for i, p := range msg.Parts {
		switch p.Type {
		case domain.PartImage:
			data, err := p.Bytes()
			if err != nil {
				return nil, fmt.Errorf("part %d: %w", i, err)
			}
			parts = append(parts, genai.NewPartFromBytes(data, p.MIMEType))
		default:
			parts = append(parts, genai.NewPartFromText(p.Text))
		}
	}
	return parts, nil
}
