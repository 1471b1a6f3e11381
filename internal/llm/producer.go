package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"aiaforge/internal/types"
)

// appPrompt asks for an ApplicationSpec document. The description travels in
// the input JSON.
const appPrompt = `You are an expert MIT App Inventor developer. Design a complete app for the
description given in the input JSON under "description".

Respond with JSON only, shaped like:
{
  "app_name": "AppName",
  "description": "Brief description of the app",
  "screens": [
    {
      "name": "Screen1",
      "title": "Screen Title",
      "components": [
        {"type": "Button", "name": "Button1", "text": "Click Me",
         "properties": {"BackgroundColor": "#FF0000", "TextColor": "#FFFFFF", "Width": "-2", "Height": "-2"}},
        {"type": "Label", "name": "Label1", "text": "Hello World",
         "properties": {"FontSize": "18", "TextAlignment": "1"}}
      ]
    }
  ],
  "blocks": [
    {"event": "Button1.Click",
     "action": {"kind": "set_property", "component": "Label1", "property": "Text", "value": "Button clicked!"}},
    {"event": "Button1.LongClick", "action": {"kind": "raw_text", "content": "describe any other behaviour"}}
  ],
  "assets": [],
  "permissions": []
}

Rules:
1. Use only these component types: Button, Label, TextBox, Image, HorizontalArrangement, VerticalArrangement.
2. Give every component a unique, meaningful name.
3. Colors are "#RRGGBB"; sizes use "-1" (fill parent) or "-2" (automatic).
4. Use "set_property" actions for constant assignments, "raw_text" for everything else.
5. List Android permissions the app needs (camera, location, ...).`

// Producer turns a natural-language description into a normalized spec.
type Producer struct {
	client LLMClient
	log    logrus.FieldLogger
}

func NewProducer(client LLMClient, log logrus.FieldLogger) *Producer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Producer{client: client, log: log}
}

// imageHint follows the prompt when a reference image is attached.
const imageHint = `A reference image is attached. Incorporate its UI design elements, colors and
layout ideas into the app structure.`

// appRequest is the input document sent with appPrompt. The image travels
// as a separate part; its digest keeps cached replies per image.
type appRequest struct {
	Description string `json:"description"`
	ImageSHA256 string `json:"reference_image_sha256,omitempty"`

	image *Image
}

func (r appRequest) Images() []Image {
	if r.image == nil {
		return nil
	}
	return []Image{*r.image}
}

// Produce asks the model for an app structure and decodes it with every
// default applied. imagePath, when set, names a reference picture the model
// should take design cues from.
func (p *Producer) Produce(ctx context.Context, description, imagePath string) (*types.ApplicationSpec, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, NewPermanentError(errors.New("llm: empty app description"))
	}
	req := appRequest{Description: description}
	prompt := appPrompt
	if imagePath = strings.TrimSpace(imagePath); imagePath != "" {
		img, err := LoadImage(imagePath)
		if err != nil {
			return nil, err
		}
		sum := sha256.Sum256(img.Data)
		req.image = img
		req.ImageSHA256 = hex.EncodeToString(sum[:])
		prompt += "\n\n" + imageHint
		p.log.WithFields(logrus.Fields{"image": imagePath, "mime": img.MIMEType, "bytes": len(img.Data)}).Debug("reference image attached")
	}
	raw, err := p.client.GenerateJSON(ctx, prompt, req)
	if err != nil {
		return nil, fmt.Errorf("llm: %s: %w", p.client.Name(), err)
	}
	spec, err := types.Decode(raw)
	if err != nil {
		p.log.WithError(err).WithField("response", truncate(string(raw), 200)).Error("model returned no usable app structure")
		return nil, fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}
	p.log.WithFields(logrus.Fields{
		"app":     spec.AppName,
		"screens": len(spec.Screens),
		"blocks":  len(spec.Blocks),
	}).Info("app structure produced")
	return spec, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
