package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDocumentOpen    = errors.New("cannot open document")
	ErrImageDecode     = errors.New("cannot decode image")
	ErrEmbedding       = errors.New("embedding failed")
	ErrZeroNorm        = errors.New("zero-norm vector")
	ErrIndexBuild      = errors.New("index build failed")
	ErrNothingToIndex  = errors.New("nothing to index")
	ErrInvalidK        = errors.New("k must be positive")
	ErrGeneration      = errors.New("answer generation failed")
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyQuestion   = errors.New("question is empty")
)

// DocumentOpenError reports a missing, unreadable or malformed PDF.
type DocumentOpenError struct {
	Path string
	Err  error
}

func (e *DocumentOpenError) Error() string {
	return fmt.Sprintf("open document %q: %v", e.Path, e.Err)
}

func (e *DocumentOpenError) Unwrap() error { return e.Err }

func (e *DocumentOpenError) Is(target error) bool { return target == ErrDocumentOpen }

// ImageDecodeError reports one image that could not be decoded. It is
// recovered locally: the image is skipped and extraction continues.
type ImageDecodeError struct {
	Page  int
	Index int
	Err   error
}

func (e *ImageDecodeError) Error() string {
	return fmt.Sprintf("decode image %d on page %d: %v", e.Index, e.Page, e.Err)
}

func (e *ImageDecodeError) Unwrap() error { return e.Err }

func (e *ImageDecodeError) Is(target error) bool { return target == ErrImageDecode }

// EmbeddingError reports a backend failure for one input. Page is -1 for
// query embeddings.
type EmbeddingError struct {
	Kind  Kind
	Page  int
	Index int
	Err   error
}

func (e *EmbeddingError) Error() string {
	if e.Page < 0 {
		return fmt.Sprintf("embed %s query: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("embed %s %d on page %d: %v", e.Kind, e.Index, e.Page, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

func (e *EmbeddingError) Is(target error) bool { return target == ErrEmbedding }

// IndexBuildError reports an empty or misaligned build input.
type IndexBuildError struct {
	Records int
	Vectors int
	Reason  string
}

func (e *IndexBuildError) Error() string {
	return fmt.Sprintf("build index (%d records, %d vectors): %s", e.Records, e.Vectors, e.Reason)
}

func (e *IndexBuildError) Is(target error) bool {
	if target == ErrIndexBuild {
		return true
	}
	return target == ErrNothingToIndex && e.Records == 0
}

// GenerationError wraps a provider failure verbatim.
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation: %v", e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }
