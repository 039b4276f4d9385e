package qdrant

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/internal/domain"
)

type point struct {
	ID      int             `json:"id"`
	Vector  []float64       `json:"vector"`
	Payload json.RawMessage `json:"payload"`
}

// fakeQdrant implements the few collection endpoints the client uses. Ties
// are returned in reverse insertion order to exercise client-side ordering.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string][]point
	apiKeys     []string
	limits      []int
}

func newFakeQdrant() *fakeQdrant { return &fakeQdrant{collections: map[string][]point{}} }

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/collections/"), "/")
	name := parts[0]
	switch {
	case r.Method == http.MethodPut && len(parts) == 1:
		f.collections[name] = nil
		_, _ = w.Write([]byte(`{"result": true}`))
	case r.Method == http.MethodDelete && len(parts) == 1:
		delete(f.collections, name)
		_, _ = w.Write([]byte(`{"result": true}`))
	case r.Method == http.MethodPut && parts[1] == "points":
		var body struct {
			Points []point `json:"points"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.collections[name] = append(f.collections[name], body.Points...)
		_, _ = w.Write([]byte(`{"result": {"status": "completed"}}`))
	case r.Method == http.MethodPost && len(parts) == 3 && parts[2] == "search":
		pts, ok := f.collections[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req struct {
			Vector []float64 `json:"vector"`
			Limit  int       `json:"limit"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.limits = append(f.limits, req.Limit)
		type hit struct {
			Score   float64         `json:"score"`
			Payload json.RawMessage `json:"payload"`
			id      int
		}
		hits := make([]hit, 0, len(pts))
		for _, p := range pts {
			s := 0.0
			for i := range p.Vector {
				s += p.Vector[i] * req.Vector[i]
			}
			hits = append(hits, hit{Score: s, Payload: p.Payload, id: p.ID})
		}
		sort.Slice(hits, func(i, j int) bool {
			if hits[i].Score != hits[j].Score {
				return hits[i].Score > hits[j].Score
			}
			return hits[i].id > hits[j].id
		})
		if len(hits) > req.Limit {
			hits = hits[:req.Limit]
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": hits})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func fixture() ([]domain.ContentRecord, [][]float64) {
	return []domain.ContentRecord{
			{Content: "intro", Kind: domain.KindText, Page: 0},
			{Content: "chart text", Kind: domain.KindText, Page: 2},
			{Content: domain.ImageReference("page_2_img_0"), Kind: domain.KindImage, Page: 2, ImageID: "page_2_img_0"},
		}, [][]float64{
			{1, 0},
			{0, 1},
			{0, 1},
		}
}

func TestBuildSearchClose(t *testing.T) {
	fake := newFakeQdrant()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	st := NewStorage(Config{URL: srv.URL + "/", APIKey: "secret", CollectionPrefix: "test"})
	records, vectors := fixture()
	built, err := st.Build(context.Background(), records, vectors)
	require.NoError(t, err)
	idx := built.(*Index)
	assert.Equal(t, 3, idx.Len())
	assert.True(t, strings.HasPrefix(idx.Collection(), "test_"))

	res, err := idx.Search(context.Background(), []float64{0, 1}, 5)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, "chart text", res[0].Record.Content)
	assert.Equal(t, domain.KindImage, res[1].Record.Kind)
	assert.Equal(t, "page_2_img_0", res[1].Record.ImageID)
	assert.Equal(t, 2, res[1].Record.Page)
	assert.Equal(t, "intro", res[2].Record.Content)

	_, err = idx.Search(context.Background(), []float64{0, 1}, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidK)

	require.NoError(t, idx.Close())
	fake.mu.Lock()
	assert.Empty(t, fake.collections)
	for _, k := range fake.apiKeys {
		assert.Equal(t, "secret", k)
	}
	fake.mu.Unlock()
}

func TestSearchTiesAcrossTheCutoffFavourInsertionOrder(t *testing.T) {
	fake := newFakeQdrant()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	records := make([]domain.ContentRecord, 0, 6)
	vectors := make([][]float64, 0, 6)
	for i := 0; i < 5; i++ {
		records = append(records, domain.ContentRecord{Content: fmt.Sprintf("tied %d", i), Kind: domain.KindText, Page: i})
		vectors = append(vectors, []float64{0, 1})
	}
	records = append(records, domain.ContentRecord{Content: "other", Kind: domain.KindText, Page: 5})
	vectors = append(vectors, []float64{1, 0})

	st := NewStorage(Config{URL: srv.URL})
	built, err := st.Build(context.Background(), records, vectors)
	require.NoError(t, err)

	res, err := built.Search(context.Background(), []float64{0, 1}, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "tied 0", res[0].Record.Content)
	assert.Equal(t, "tied 1", res[1].Record.Content)

	fake.mu.Lock()
	assert.Equal(t, []int{3, 6}, fake.limits)
	fake.mu.Unlock()
}

func TestSearchWithoutTiesUsesOneRequest(t *testing.T) {
	fake := newFakeQdrant()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	st := NewStorage(Config{URL: srv.URL})
	built, err := st.Build(context.Background(),
		[]domain.ContentRecord{
			{Content: "a", Kind: domain.KindText},
			{Content: "b", Kind: domain.KindText, Page: 1},
			{Content: "c", Kind: domain.KindText, Page: 2},
		},
		[][]float64{{1, 0}, {0.6, 0.8}, {0, 1}},
	)
	require.NoError(t, err)

	res, err := built.Search(context.Background(), []float64{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "a", res[0].Record.Content)

	fake.mu.Lock()
	assert.Equal(t, []int{2}, fake.limits)
	fake.mu.Unlock()
}

func TestBuildSessionsGetSeparateCollections(t *testing.T) {
	fake := newFakeQdrant()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	st := NewStorage(Config{URL: srv.URL})
	records, vectors := fixture()
	a, err := st.Build(context.Background(), records, vectors)
	require.NoError(t, err)
	b, err := st.Build(context.Background(), records[:1], vectors[:1])
	require.NoError(t, err)
	assert.NotEqual(t, a.(*Index).Collection(), b.(*Index).Collection())

	res, err := b.Search(context.Background(), []float64{0, 1}, 5)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestBuildValidatesBeforeCallingServer(t *testing.T) {
	fake := newFakeQdrant()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	st := NewStorage(Config{URL: srv.URL})
	records, vectors := fixture()
	_, err := st.Build(context.Background(), records, vectors[:2])
	assert.ErrorIs(t, err, domain.ErrIndexBuild)
	_, err = st.Build(context.Background(), nil, nil)
	assert.ErrorIs(t, err, domain.ErrNothingToIndex)
	assert.Empty(t, fake.apiKeys)
}
