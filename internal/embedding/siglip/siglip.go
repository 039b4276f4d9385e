package siglip

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"pdfrag/internal/embedding"
)

const (
	DefaultBaseURL   = "http://localhost:8000"
	DefaultModel     = "google/siglip-so400m-patch14-384"
	DefaultDimension = 1152
)

// Client talks to a SigLIP/CLIP-style embedding server exposing
// POST /embed/text and POST /embed/image. Text and image vectors come from
// the same model and therefore share one space.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	client     *http.Client
	maxRetries int
}

// Config configures the embedding server client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	APIKey    string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// NewClient creates a new embedding server client using the provided configuration.
func NewClient(cfg Config) *Client {
	if cfg.APIKey == "" && cfg.APIKeyEnv != "" {
		cfg.APIKey = os.Getenv(cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DefaultDimension
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: t},
		maxRetries: 5,
	}
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "siglip" }

// Dimension returns the dimensionality of the produced embedding vectors.
func (c *Client) Dimension() int { return c.dimension }

// EmbedText returns the normalized text embedding.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float64, error) {
	return c.embed(ctx, "/embed/text", map[string]any{"model": c.model, "inputs": []string{text}})
}

// EmbedImage PNG-encodes the image and returns its normalized embedding.
func (c *Client) EmbedImage(ctx context.Context, img image.Image) ([]float64, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	payload := base64.StdEncoding.EncodeToString(buf.Bytes())
	return c.embed(ctx, "/embed/image", map[string]any{"model": c.model, "images": []string{payload}})
}

func (c *Client) embed(ctx context.Context, path string, body any) ([]float64, error) {
	url := c.baseURL + path
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, lastDelay(lastErr, attempt-1)); err != nil {
				return nil, err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = &retryableError{status: resp.Status, retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
			logrus.WithFields(logrus.Fields{"status": resp.StatusCode, "attempt": attempt}).Warn("embedding server busy, retrying")
			continue
		}

		payload, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("embedding server %s failed: %s", path, resp.Status)
		}
		if err != nil {
			lastErr = err
			continue
		}
		v, err := decodeVector(payload)
		if err != nil {
			return nil, err
		}
		if len(v) != c.dimension {
			return nil, fmt.Errorf("embedding server returned %d dimensions, want %d", len(v), c.dimension)
		}
		return embedding.Normalize(v)
	}
	return nil, fmt.Errorf("embedding server %s: retries exhausted: %w", path, lastErr)
}

// decodeVector accepts {"embeddings": [[...]]}, the OpenAI-compatible
// {"data": [{"embedding": [...]}]} and the single {"embedding": [...]} shapes.
func decodeVector(payload []byte) ([]float64, error) {
	var out struct {
		Embeddings [][]float64 `json:"embeddings"`
		Embedding  []float64   `json:"embedding"`
		Data       []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	switch {
	case len(out.Embeddings) > 0 && len(out.Embeddings[0]) > 0:
		return out.Embeddings[0], nil
	case len(out.Data) > 0 && len(out.Data[0].Embedding) > 0:
		return out.Data[0].Embedding, nil
	case len(out.Embedding) > 0:
		return out.Embedding, nil
	}
	return nil, errors.New("no embedding returned")
}

type retryableError struct {
	status     string
	retryAfter time.Duration
}

func (e *retryableError) Error() string { return "embedding server: " + e.status }

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func lastDelay(err error, attempt int) time.Duration {
	var re *retryableError
	if errors.As(err, &re) && re.retryAfter > 0 {
		return re.retryAfter
	}
	return retryDelay(attempt)
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
