package llm

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"unicode"
)

// FakeClient returns a deterministic app structure derived from the
// description in its input, for offline runs and tests.
type FakeClient struct{}

func NewFakeClient() *FakeClient { return &FakeClient{} }

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var in struct {
		Description string `json:"description"`
	}
	if b, err := json.Marshal(input); err == nil {
		_ = json.Unmarshal(b, &in)
	}
	desc := in.Description
	components := []any{
		map[string]any{"type": "Label", "name": "TitleLabel", "text": desc},
		map[string]any{"type": "Button", "name": "ActionButton", "text": "Go",
			"properties": map[string]any{"BackgroundColor": "#3F51B5"}},
	}
	if c, ok := input.(ImageCarrier); ok {
		for i, img := range c.Images() {
			components = append(components, map[string]any{
				"type": "Image", "name": "ReferenceImage" + strconv.Itoa(i+1),
				"properties": map[string]any{"AlternateText": img.MIMEType},
			})
		}
	}
	obj := map[string]any{
		"app_name":    fakeAppName(desc),
		"description": desc,
		"screens": []any{
			map[string]any{
				"name":       "Screen1",
				"title":      fakeAppName(desc),
				"components": components,
			},
		},
		"blocks": []any{
			map[string]any{"event": "ActionButton.Click", "action": "set TitleLabel.Text to 'Done'"},
			map[string]any{"event": "ActionButton.Click", "action": map[string]any{"kind": "raw_text", "content": desc}},
		},
		"assets":      []any{},
		"permissions": []any{},
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

// fakeAppName title-cases the first three words of desc.
func fakeAppName(desc string) string {
	var b strings.Builder
	words := 0
	for _, w := range strings.FieldsFunc(desc, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }) {
		if words == 3 {
			break
		}
		r := []rune(w)
		b.WriteRune(unicode.ToUpper(r[0]))
		b.WriteString(strings.ToLower(string(r[1:])))
		words++
	}
	if b.Len() == 0 {
		return "FakeApp"
	}
	return b.String()
}
