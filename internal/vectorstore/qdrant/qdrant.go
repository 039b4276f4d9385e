package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"pdfrag/internal/domain"
	"pdfrag/internal/vectorstore"
)

const upsertBatch = 256

// Storage is a minimal REST client to Qdrant. Every Build creates its own
// collection, so sessions never share points; Close drops it.
type Storage struct {
	url    string
	apiKey string
	prefix string
	client *http.Client
}

type Config struct {
	URL              string
	APIKey           string
	CollectionPrefix string
	Timeout          time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	prefix := cfg.CollectionPrefix
	if prefix == "" {
		prefix = "pdfrag"
	}
	return &Storage{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		prefix: prefix,
		client: &http.Client{Timeout: timeout},
	}
}

// Build creates a cosine collection sized to the vectors and uploads every
// record with its insertion position as point ID.
func (s *Storage) Build(ctx context.Context, records []domain.ContentRecord, vectors [][]float64) (domain.Index, error) {
	dim, err := vectorstore.Validate(records, vectors)
	if err != nil {
		return nil, err
	}
	idx := &Index{storage: s, collection: s.prefix + "_" + uuid.NewString(), dimension: dim, size: len(records)}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": "Cosine",
		},
	}
	if err := s.do(ctx, http.MethodPut, idx.path(""), body, nil); err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	for start := 0; start < len(records); start += upsertBatch {
		end := min(start+upsertBatch, len(records))
		points := make([]map[string]any, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, map[string]any{
				"id":      i,
				"vector":  vectors[i],
				"payload": toPayload(records[i], i),
			})
		}
		if err := s.do(ctx, http.MethodPut, idx.path("/points?wait=true"), map[string]any{"points": points}, nil); err != nil {
			_ = idx.Close()
			return nil, fmt.Errorf("upsert points: %w", err)
		}
	}
	logrus.WithFields(logrus.Fields{"collection": idx.collection, "points": len(records)}).Debug("qdrant collection built")
	return idx, nil
}

// Index is one session's Qdrant collection.
type Index struct {
	storage    *Storage
	collection string
	dimension  int
	size       int
}

func (x *Index) Len() int { return x.size }

// Collection returns the backing collection name.
func (x *Index) Collection() string { return x.collection }

// Search asks Qdrant for the top k points and orders them by descending
// score, breaking ties by insertion position. Qdrant orders equal scores
// arbitrarily, so while the last returned hit still ties the k-th the limit
// is widened until every tied point is in hand.
func (x *Index) Search(ctx context.Context, vector []float64, k int) ([]domain.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", domain.ErrInvalidK, k)
	}
	if len(vector) != x.dimension {
		return nil, fmt.Errorf("query dimension %d, index dimension %d", len(vector), x.dimension)
	}
	limit := min(k+1, x.size)
	var hits []ranked
	for {
		var err error
		hits, err = x.search(ctx, vector, limit)
		if err != nil {
			return nil, err
		}
		if len(hits) <= k || len(hits) < limit || limit >= x.size ||
			hits[len(hits)-1].score() != hits[k-1].score() {
			break
		}
		limit = min(limit*2, x.size)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].result.Score != hits[j].result.Score {
			return hits[i].result.Score > hits[j].result.Score
		}
		return hits[i].position < hits[j].position
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	results := make([]domain.SearchResult, len(hits))
	for i, h := range hits {
		results[i] = h.result
	}
	return results, nil
}

type ranked struct {
	result   domain.SearchResult
	position int
}

func (r ranked) score() float64 { return r.result.Score }

// search returns up to limit hits in the order Qdrant sent them.
func (x *Index) search(ctx context.Context, vector []float64, limit int) ([]ranked, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	if err := x.storage.do(ctx, http.MethodPost, x.path("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	hits := make([]ranked, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, ranked{
			result:   domain.SearchResult{Record: r.Payload.record(), Score: r.Score},
			position: r.Payload.Position,
		})
	}
	return hits, nil
}

// Close drops the collection.
func (x *Index) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), x.storage.client.Timeout)
	defer cancel()
	return x.storage.do(ctx, http.MethodDelete, x.path(""), nil, nil)
}

func (x *Index) path(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", x.storage.url, x.collection, suffix)
}

type payload struct {
	Content  string `json:"content"`
	Kind     string `json:"kind"`
	Page     int    `json:"page"`
	ImageID  string `json:"image_id,omitempty"`
	Position int    `json:"position"`
}

func toPayload(r domain.ContentRecord, position int) payload {
	return payload{Content: r.Content, Kind: r.Kind.String(), Page: r.Page, ImageID: r.ImageID, Position: position}
}

func (p payload) record() domain.ContentRecord {
	kind := domain.KindText
	if p.Kind == domain.KindImage.String() {
		kind = domain.KindImage
	}
	return domain.ContentRecord{Content: p.Content, Kind: kind, Page: p.Page, ImageID: p.ImageID}
}

func (s *Storage) do(ctx context.Context, method, url string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
