package embedding

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"pdfrag/internal/domain"
)

// SharedOptions controls how a Shared embedder dispatches calls.
type SharedOptions struct {
	// Serialize funnels every call through one lock, for backends that are
	// not safe for concurrent inference.
	Serialize bool
	// RateLimit caps calls per second; zero means unlimited.
	RateLimit float64
	Burst     int
	MaxTokens int
}

// Shared is the process-wide embedder handed to every session. It truncates
// text, enforces the unit-norm contract and wraps failures in EmbeddingError.
type Shared struct {
	backend   domain.Embedder
	serialize bool
	mu        sync.Mutex
	limiter   *rate.Limiter
	maxTokens int
}

var _ domain.Embedder = (*Shared)(nil)

func NewShared(backend domain.Embedder, opts SharedOptions) *Shared {
	s := &Shared{backend: backend, serialize: opts.Serialize, maxTokens: opts.MaxTokens}
	if s.maxTokens == 0 {
		s.maxTokens = DefaultMaxTokens
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	logrus.WithFields(logrus.Fields{
		"backend":   backend.Name(),
		"dimension": backend.Dimension(),
		"serialize": opts.Serialize,
	}).Info("embedder initialised")
	return s
}

func (s *Shared) Name() string { return s.backend.Name() }

func (s *Shared) Dimension() int { return s.backend.Dimension() }

// EmbedText embeds a query. Errors carry Page -1.
func (s *Shared) EmbedText(ctx context.Context, text string) ([]float64, error) {
	return s.embedText(ctx, text, -1, 0)
}

// EmbedChunk embeds a text chunk, attributing failures to its page and index.
func (s *Shared) EmbedChunk(ctx context.Context, text string, page, index int) ([]float64, error) {
	return s.embedText(ctx, text, page, index)
}

// EmbedImage embeds an image without page attribution.
func (s *Shared) EmbedImage(ctx context.Context, img image.Image) ([]float64, error) {
	return s.EmbedPageImage(ctx, img, -1, 0)
}

// EmbedPageImage embeds an image, attributing failures to its page and index.
func (s *Shared) EmbedPageImage(ctx context.Context, img image.Image, page, index int) ([]float64, error) {
	if img == nil {
		return nil, &domain.EmbeddingError{Kind: domain.KindImage, Page: page, Index: index, Err: fmt.Errorf("nil image")}
	}
	v, err := s.dispatch(ctx, func() ([]float64, error) { return s.backend.EmbedImage(ctx, img) })
	return s.check(v, err, domain.KindImage, page, index)
}

func (s *Shared) embedText(ctx context.Context, text string, page, index int) ([]float64, error) {
	text = TruncateTokens(text, s.maxTokens)
	v, err := s.dispatch(ctx, func() ([]float64, error) { return s.backend.EmbedText(ctx, text) })
	return s.check(v, err, domain.KindText, page, index)
}

func (s *Shared) dispatch(ctx context.Context, call func() ([]float64, error)) ([]float64, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if s.serialize {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return call()
}

func (s *Shared) check(v []float64, err error, kind domain.Kind, page, index int) ([]float64, error) {
	if err != nil {
		return nil, &domain.EmbeddingError{Kind: kind, Page: page, Index: index, Err: err}
	}
	if len(v) != s.backend.Dimension() {
		return nil, &domain.EmbeddingError{Kind: kind, Page: page, Index: index,
			Err: fmt.Errorf("dimension %d, want %d", len(v), s.backend.Dimension())}
	}
	if !IsUnit(v) {
		if _, err := Normalize(v); err != nil {
			return nil, &domain.EmbeddingError{Kind: kind, Page: page, Index: index, Err: err}
		}
	}
	return v, nil
}
