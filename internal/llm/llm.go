package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// LLMClient turns a prompt into a JSON document.
type LLMClient interface {
	Name() string
	GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error)
	Close() error
}

var ErrInvalidJSON = errors.New("llm: invalid JSON from model")

// PermanentError indicates an error that will not resolve with retries.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// Image is a reference picture sent with a request.
type Image struct {
	MIMEType string
	Data     []byte
}

// ImageCarrier is implemented by request inputs that carry reference images.
// Clients that support multimodal input attach them after the prompt text.
type ImageCarrier interface {
	Images() []Image
}
