package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/internal/domain"
	"pdfrag/internal/service"
	"pdfrag/internal/session"
	"pdfrag/internal/vectorstore/memory"
)

type fakeBuilder struct{ err error }

func (b fakeBuilder) Index(context.Context, string) (*service.Built, error) {
	if b.err != nil {
		return nil, b.err
	}
	idx, err := memory.Build(
		[]domain.ContentRecord{
			{Content: "Revenue rose.", Kind: domain.KindText, Page: 0},
			{Content: "[Image: page_1_img_0]", Kind: domain.KindImage, Page: 1, ImageID: "page_1_img_0"},
		},
		[][]float64{{1, 0}, {0, 1}},
	)
	if err != nil {
		return nil, err
	}
	return &service.Built{Index: idx, Images: domain.NewImageStore(), Stats: service.Stats{Pages: 2, TextChunks: 1, Images: 1}, Overview: "Revenue rose."}, nil
}

type fakeAnswerer struct{ err error }

func (a fakeAnswerer) Answer(ctx context.Context, b *service.Built, q string, k int) (*service.Answer, error) {
	if a.err != nil {
		return nil, a.err
	}
	if strings.TrimSpace(q) == "" {
		return nil, domain.ErrEmptyQuestion
	}
	if k == 0 {
		k = 5
	}
	res, err := b.Index.Search(ctx, []float64{1, 0}, k)
	if err != nil {
		return nil, err
	}
	return &service.Answer{Question: q, Text: "It rose.", Sources: res}, nil
}

func setup(t *testing.T, b session.Builder, a Answerer) (*gin.Engine, *session.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	m, err := session.NewManager(b, session.Options{DataDir: t.TempDir(), TTL: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return NewRouter(NewAPI(m, a)), m
}

func uploadRequest(t *testing.T, name string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func upload(t *testing.T, r *gin.Engine) uploadResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, uploadRequest(t, "report.pdf", []byte("%PDF-1.4 fake")))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func query(r *gin.Engine, id, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+id+"/query", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(rec, req)
	return rec
}

func TestSessionLifecycle(t *testing.T) {
	r, m := setup(t, fakeBuilder{}, fakeAnswerer{})

	up := upload(t, r)
	assert.NotEmpty(t, up.SessionID)
	assert.Equal(t, "report.pdf", up.FileName)
	assert.Equal(t, 1, up.Stats.TextChunks)
	assert.Equal(t, "Revenue rose.", up.Overview)
	assert.True(t, up.ExpiresAt.After(time.Now()))

	rec := query(r, up.SessionID, `{"question":"how did revenue do?","top_k":1}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var qr queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &qr))
	assert.Equal(t, "It rose.", qr.Answer)
	require.Len(t, qr.Sources, 1)
	assert.Equal(t, "text", qr.Sources[0].Kind)
	assert.Equal(t, 0, qr.Sources[0].Page)

	s, err := m.Get(up.SessionID)
	require.NoError(t, err)
	assert.FileExists(t, s.Path)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+up.SessionID, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, err = os.Stat(s.Path)
	assert.True(t, os.IsNotExist(err))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/"+up.SessionID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, http.StatusNotFound, query(r, up.SessionID, `{"question":"q"}`).Code)
}

func TestUploadRejectsNonPDF(t *testing.T) {
	r, m := setup(t, fakeBuilder{}, fakeAnswerer{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, uploadRequest(t, "notes.pdf", []byte("hello world")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, m.Len())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadBuildFailure(t *testing.T) {
	buildErr := &domain.IndexBuildError{Reason: "no content"}
	r, _ := setup(t, fakeBuilder{err: buildErr}, fakeAnswerer{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, uploadRequest(t, "blank.pdf", []byte("%PDF-1.7")))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestQueryErrors(t *testing.T) {
	genErr := &domain.GenerationError{Provider: "gemini", Err: errors.New("quota exceeded")}
	r, _ := setup(t, fakeBuilder{}, fakeAnswerer{err: genErr})
	up := upload(t, r)

	assert.Equal(t, http.StatusBadGateway, query(r, up.SessionID, `{"question":"q"}`).Code)
	assert.Equal(t, http.StatusBadRequest, query(r, up.SessionID, `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, query(r, up.SessionID, `not json`).Code)
}

func TestQueryBlankQuestion(t *testing.T) {
	r, _ := setup(t, fakeBuilder{}, fakeAnswerer{})
	up := upload(t, r)
	assert.Equal(t, http.StatusBadRequest, query(r, up.SessionID, `{"question":"   "}`).Code)
}

func TestQueryWithoutSearchableTerms(t *testing.T) {
	unsearchable := fmt.Errorf("%w: %w", domain.ErrEmptyQuestion, &domain.EmbeddingError{Kind: domain.KindText, Page: -1, Err: domain.ErrZeroNorm})
	r, _ := setup(t, fakeBuilder{}, fakeAnswerer{err: unsearchable})
	up := upload(t, r)
	rec := query(r, up.SessionID, `{"question":"???"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "question is empty")
}

func TestQueryInvalidK(t *testing.T) {
	r, _ := setup(t, fakeBuilder{}, fakeAnswerer{})
	up := upload(t, r)
	assert.Equal(t, http.StatusBadRequest, query(r, up.SessionID, `{"question":"q","top_k":-2}`).Code)
}

func TestHealth(t *testing.T) {
	r, _ := setup(t, fakeBuilder{}, fakeAnswerer{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
