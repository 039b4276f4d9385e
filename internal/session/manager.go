package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"pdfrag/internal/domain"
	"pdfrag/internal/service"
)

const DefaultTTL = time.Hour

// Builder indexes a document; *service.RAGService implements it.
type Builder interface {
	Index(ctx context.Context, path string) (*service.Built, error)
}

// Session binds one uploaded document to its index and image store.
type Session struct {
	ID        string
	FileName  string
	Path      string
	Built     *service.Built
	CreatedAt time.Time

	mu         sync.Mutex
	lastAccess time.Time
}

// LastAccess returns when the session was last used.
func (s *Session) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

// ExpiresAt returns when the session will be reclaimed if left idle.
func (s *Session) ExpiresAt(ttl time.Duration) time.Time {
	return s.LastAccess().Add(ttl)
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAccess = now
}

// Options configures a Manager.
type Options struct {
	DataDir      string
	TTL          time.Duration
	ReapInterval time.Duration
	Now          func() time.Time
}

// Manager owns every live session. Sessions are isolated: each has its own
// index and image store and is closed independently.
type Manager struct {
	builder  Builder
	dataDir  string
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(builder Builder, opts Options) (*Manager, error) {
	if opts.DataDir == "" {
		opts.DataDir = "data"
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.ReapInterval <= 0 {
		opts.ReapInterval = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Manager{
		builder:  builder,
		dataDir:  opts.DataDir,
		ttl:      opts.TTL,
		interval: opts.ReapInterval,
		now:      opts.Now,
		sessions: make(map[string]*Session),
	}, nil
}

// TTL returns the idle timeout.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Upload stores the document under a fresh session ID and builds its index.
// If the build fails the file is removed and no session exists.
func (m *Manager) Upload(ctx context.Context, fileName string, r io.Reader) (*Session, error) {
	id := uuid.NewString()
	name := filepath.Base(fileName)
	if name == "." || name == string(filepath.Separator) {
		name = "document.pdf"
	}
	path := filepath.Join(m.dataDir, id+"_"+name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("save upload: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("save upload: %w", err)
	}

	s, err := m.create(ctx, id, name, path, path)
	if err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return s, nil
}

// Open builds a session for a document already on disk. Ending it does not
// delete the file.
func (m *Manager) Open(ctx context.Context, path string) (*Session, error) {
	return m.create(ctx, uuid.NewString(), filepath.Base(path), path, "")
}

// create indexes path and registers the session. ownedPath, when set, is
// deleted when the session ends.
func (m *Manager) create(ctx context.Context, id, name, path, ownedPath string) (*Session, error) {
	built, err := m.builder.Index(ctx, path)
	if err != nil {
		return nil, err
	}
	now := m.now()
	s := &Session{ID: id, FileName: name, Path: ownedPath, Built: built, CreatedAt: now, lastAccess: now}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	logrus.WithFields(logrus.Fields{"session_id": id, "file": name}).Info("session created")
	return s, nil
}

// Get returns a live session and marks it used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	s.touch(m.now())
	return s, nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// End closes the session's index and deletes its uploaded file.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return m.release(s)
}

func (m *Manager) release(s *Session) error {
	log := logrus.WithField("session_id", s.ID)
	var firstErr error
	if err := s.Built.Close(); err != nil {
		log.WithError(err).Warn("cannot close index")
		firstErr = err
	}
	if s.Path != "" {
		if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
			log.WithError(err).Warn("cannot delete upload")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	log.Info("session ended")
	return firstErr
}

// Reap ends every session idle for longer than the TTL and returns their IDs.
func (m *Manager) Reap() []string {
	now := m.now()
	var expired []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastAccess()) > m.ttl {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	ids := make([]string, 0, len(expired))
	for _, s := range expired {
		_ = m.release(s)
		ids = append(ids, s.ID)
	}
	sort.Strings(ids)
	if len(ids) > 0 {
		logrus.WithField("sessions", strings.Join(ids, ",")).Info("expired sessions reclaimed")
	}
	return ids
}

// Run reaps expired sessions until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Reap()
		}
	}
}

// Close ends every session.
func (m *Manager) Close() error {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var firstErr error
	for _, s := range all {
		if err := m.release(s); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
