package synthesis

import "errors"

var (
	ErrNotFound            = errors.New("subtopic not found")
	ErrNoRelevantContent   = errors.New("no relevant document content")
	ErrNoValuesExtracted   = errors.New("no values extracted")
	ErrSynthesisFailed     = errors.New("synthesis failed")
	ErrSynthesisInProgress = errors.New("synthesis already running")
)

// UserMessage is the client-facing text for a Synthesize error. Causes wrapped
// under ErrSynthesisFailed are not exposed.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "Subtopic not found."
	case errors.Is(err, ErrNoRelevantContent):
		return "No relevant document content found. Upload source documents first before synthesizing values."
	case errors.Is(err, ErrNoValuesExtracted):
		return "No relevant content found in the uploaded documents for this subtopic."
	case errors.Is(err, ErrSynthesisInProgress):
		return "Synthesis is already running for this subtopic."
	default:
		return "Synthesis failed. Please try again."
	}
}
