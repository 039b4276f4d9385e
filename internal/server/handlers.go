package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"pdfrag/internal/domain"
	"pdfrag/internal/service"
	"pdfrag/internal/session"
)

// sniffLen is how much of an upload is inspected to detect its type.
const sniffLen = 3072

// Sessions is the session store the API needs; *session.Manager implements it.
type Sessions interface {
	Upload(ctx context.Context, fileName string, r io.Reader) (*session.Session, error)
	Get(id string) (*session.Session, error)
	End(id string) error
	TTL() time.Duration
}

// Answerer answers a question against one built index.
type Answerer interface {
	Answer(ctx context.Context, b *service.Built, question string, k int) (*service.Answer, error)
}

// API provides handlers for the session endpoints.
type API struct {
	sessions Sessions
	answerer Answerer
}

func NewAPI(sessions Sessions, answerer Answerer) *API {
	return &API{sessions: sessions, answerer: answerer}
}

type uploadResponse struct {
	SessionID string        `json:"session_id"`
	FileName  string        `json:"file_name"`
	Stats     service.Stats `json:"stats"`
	Overview  string        `json:"overview"`
	ExpiresAt time.Time     `json:"expires_at"`
}

type queryRequest struct {
	Question string `json:"question" binding:"required"`
	TopK     int    `json:"top_k"`
}

type source struct {
	Kind    string  `json:"kind"`
	Page    int     `json:"page"`
	Content string  `json:"content"`
	ImageID string  `json:"image_id,omitempty"`
	Score   float64 `json:"score"`
}

type queryResponse struct {
	Answer  string   `json:"answer"`
	Sources []source `json:"sources"`
}

func (a *API) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// UploadHandler stores a PDF, indexes it and opens a session.
func (a *API) UploadHandler(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read upload"})
		return
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, sniffLen)
	head, _ := br.Peek(sniffLen)
	if !mimetype.Detect(head).Is("application/pdf") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is not a PDF"})
		return
	}

	s, err := a.sessions.Upload(c.Request.Context(), fh.Filename, br)
	if err != nil {
		logrus.WithField("file", fh.Filename).WithError(err).Warn("upload failed")
		if errors.Is(err, domain.ErrDocumentOpen) || errors.Is(err, domain.ErrIndexBuild) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to index document"})
		return
	}

	c.JSON(http.StatusCreated, uploadResponse{
		SessionID: s.ID,
		FileName:  s.FileName,
		Stats:     s.Built.Stats,
		Overview:  s.Built.Overview,
		ExpiresAt: s.ExpiresAt(a.sessions.TTL()),
	})
}

// QueryHandler answers a question against a session's document.
func (a *API) QueryHandler(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload"})
		return
	}
	s, err := a.sessions.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	ans, err := a.answerer.Answer(c.Request.Context(), s.Built, req.Question, req.TopK)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidK), errors.Is(err, domain.ErrEmptyQuestion):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, domain.ErrGeneration):
		logrus.WithField("session_id", s.ID).WithError(err).Error("generation failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	default:
		logrus.WithField("session_id", s.ID).WithError(err).Error("query failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := queryResponse{Answer: ans.Text, Sources: make([]source, 0, len(ans.Sources))}
	for _, r := range ans.Sources {
		resp.Sources = append(resp.Sources, source{
			Kind:    r.Record.Kind.String(),
			Page:    r.Record.Page,
			Content: r.Record.Content,
			ImageID: r.Record.ImageID,
			Score:   r.Score,
		})
	}
	c.JSON(http.StatusOK, resp)
}

// EndHandler closes a session and deletes its upload.
func (a *API) EndHandler(c *gin.Context) {
	if err := a.sessions.End(c.Param("id")); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
