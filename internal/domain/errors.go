package domain

import (
	"errors"
	"fmt"
)

var (
	ErrExtraction       = errors.New("extraction failed")
	ErrIndexBuild       = errors.New("index build failed")
	ErrGeneration       = errors.New("generation failed")
	ErrNotReady         = errors.New("no document is ready")
	ErrUploadInProgress = errors.New("an index build is already in progress")
	ErrEmptyQuery       = errors.New("query is empty")
)

// ExtractionError reports an unreadable PDF or one without a text layer.
type ExtractionError struct {
	Path string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func (e *ExtractionError) Is(target error) bool { return target == ErrExtraction }

// IndexBuildError reports a failure while embedding or indexing chunks.
type IndexBuildError struct {
	Err error
}

func (e *IndexBuildError) Error() string {
	return fmt.Sprintf("build index: %v", e.Err)
}

func (e *IndexBuildError) Unwrap() error { return e.Err }

func (e *IndexBuildError) Is(target error) bool { return target == ErrIndexBuild }

// GenerationError carries the provider's message for a failed answer.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return e.Err.Error()
}

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

// NotReadyError rejects a query issued without a usable index. Its message is
// shown to the user verbatim.
type NotReadyError struct {
	Message string
}

func (e *NotReadyError) Error() string { return e.Message }

func (e *NotReadyError) Is(target error) bool { return target == ErrNotReady }
