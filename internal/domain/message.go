package domain

import (
	"context"
	"encoding/base64"
	"sort"
	"sync"
)

// PartType distinguishes the parts of an assembled message.
type PartType int

const (
	PartText PartType = iota
	PartImage
)

// Part is one ordered element of a Message. Image parts carry base64 PNG data.
type Part struct {
	Type     PartType
	Text     string
	Data     string
	MIMEType string
}

// DataURL renders an image part as a data URL.
func (p Part) DataURL() string {
	return "data:" + p.MIMEType + ";base64," + p.Data
}

// Bytes decodes the base64 payload of an image part.
func (p Part) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(p.Data)
}

// Message is the structured payload handed to a Generator.
type Message struct {
	Parts []Part
}

// ImageParts counts inline images in the message.
func (m Message) ImageParts() int {
	n := 0
	for _, p := range m.Parts {
		if p.Type == PartImage {
			n++
		}
	}
	return n
}

// Generator produces an answer from an assembled message.
type Generator interface {
	Name() string
	Generate(ctx context.Context, msg Message) (string, error)
}

// ImageStore maps image IDs to base64 PNG payloads for one session.
type ImageStore struct {
	mu     sync.RWMutex
	images map[string]string
}

func NewImageStore() *ImageStore {
	return &ImageStore{images: make(map[string]string)}
}

func (s *ImageStore) Put(id, data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[id] = data
}

func (s *ImageStore) Get(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.images[id]
	return data, ok
}

func (s *ImageStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.images, id)
}

func (s *ImageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images)
}

// IDs returns the stored image IDs in sorted order.
func (s *ImageStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.images))
	for id := range s.images {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
