package gemini

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfrag/internal/domain"
)

func message() domain.Message {
	return domain.Message{Parts: []domain.Part{
		{Type: domain.PartText, Text: "Question: q\n\nContext:\n"},
		{Type: domain.PartImage, Data: "aGk=", MIMEType: "image/png"},
		{Type: domain.PartText, Text: "closing"},
	}}
}

func TestToParts(t *testing.T) {
	parts, err := toParts(message())
	require.NoError(t, err)
	require.Len(t, parts, 3)
	assert.Equal(t, "Question: q\n\nContext:\n", parts[0].Text)
	require.NotNil(t, parts[1].InlineData)
	assert.Equal(t, []byte("hi"), parts[1].InlineData.Data)
	assert.Equal(t, "image/png", parts[1].InlineData.MIMEType)

	_, err = toParts(domain.Message{Parts: []domain.Part{{Type: domain.PartImage, Data: "%%%"}}})
	assert.Error(t, err)
}

func TestGenerate(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/test-model:generateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"It shows revenue."}]}}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), Config{APIKey: "k", Model: "test-model", Temperature: 0.2, BaseURL: srv.URL})
	require.NoError(t, err)
	answer, err := c.Generate(context.Background(), message())
	require.NoError(t, err)
	assert.Equal(t, "It shows revenue.", answer)
	assert.Contains(t, body, "inlineData")
	assert.Contains(t, body, "Question: q")
}

func TestGenerateSurfacesProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"invalid payload","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(context.Background(), Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.Generate(context.Background(), message())
	require.ErrorIs(t, err, domain.ErrGeneration)
	var ge *domain.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "gemini", ge.Provider)
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(context.Background(), Config{})
	assert.Error(t, err)
}
