package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	genai "google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiClient is a thin wrapper around the official genai client.
type GeminiClient struct {
	cli   *genai.Client
	model string
	log   logrus.FieldLogger
}

func NewGeminiClient(ctx context.Context, apiKey, model string, log logrus.FieldLogger) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, NewPermanentError(errors.New("llm: GEMINI_API_KEY is not set"))
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return &GeminiClient{cli: cli, model: model, log: log}, nil
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.model }
func (g *GeminiClient) Close() error { return nil }

// GenerateJSON sends the prompt (plus input, when given, and any images the
// input carries) and requests application/json. Client-side API failures are permanent.
func (g *GeminiClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	full := prompt
	if input != nil {
		in, err := json.MarshalIndent(input, "", "  ")
		if err != nil {
			return nil, NewPermanentError(fmt.Errorf("llm: marshal input: %w", err))
		}
		full += "\n\n[INPUT JSON]\n" + string(in)
	}
	parts := []*genai.Part{{Text: full}}
	if c, ok := input.(ImageCarrier); ok {
		for _, img := range c.Images() {
			parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
		}
	}
	g.log.WithFields(logrus.Fields{"model": g.model, "bytes": len(full), "images": len(parts) - 1}).Debug("LLM request")

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: genai.RoleUser, Parts: parts}},
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
			return nil, NewPermanentError(err)
		}
		return nil, err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, ErrInvalidJSON
	}
	txt := resp.Candidates[0].Content.Parts[0].Text
	if txt == "" {
		return nil, ErrInvalidJSON
	}
	return json.RawMessage(txt), nil
}
