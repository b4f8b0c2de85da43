package pipeline

import (
	"errors"

	"github.com/yungbote/karibu-backend/internal/ingestion/extractor"
	"github.com/yungbote/karibu-backend/internal/platform/objstore"
)

type stage string

const (
	stageDownload stage = "download"
	stageExtract  stage = "extract"
	stageEmbed    stage = "embed"
	stageIndex    stage = "index"
	stageRecord   stage = "record"
)

type stageError struct {
	stage stage
	err   error
}

func (e *stageError) Error() string { return string(e.stage) + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// failureReason is the message stored on a failed document. Upstream error
// text stays in the logs.
func failureReason(err error) string {
	if errors.Is(err, ErrEmptyText) {
		return EmptyTextReason
	}
	if errors.Is(err, extractor.ErrUnsupportedFormat) {
		return "Unsupported file format"
	}
	var se *stageError
	if !errors.As(err, &se) {
		return "Document processing failed"
	}
	switch se.stage {
	case stageDownload:
		if errors.Is(se.err, objstore.ErrObjectNotFound) {
			return "Stored file not found"
		}
		return "Could not download the stored file"
	case stageExtract:
		return "Text extraction failed; the file may be corrupt"
	case stageEmbed:
		return "Embedding failed"
	case stageIndex:
		return "Indexing failed"
	default:
		return "Document processing failed"
	}
}
