package llm

import (
	"errors"
	"fmt"
	"os"

	"github.com/gabriel-vasile/mimetype"
)

// MaxImageBytes bounds a reference image; larger files are rejected rather
// than resampled.
const MaxImageBytes = 4 << 20

var (
	ErrImageTooLarge    = errors.New("llm: reference image too large")
	ErrUnsupportedImage = errors.New("llm: unsupported reference image type")
)

// imageTypes are the inline image types Gemini accepts.
var imageTypes = []string{"image/jpeg", "image/png", "image/webp", "image/heic", "image/heif"}

// LoadImage reads a reference image, detects its type from content and
// checks it against MaxImageBytes. Failures are permanent.
func LoadImage(path string) (*Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, NewPermanentError(fmt.Errorf("llm: reference image: %w", err))
	}
	if info.IsDir() {
		return nil, NewPermanentError(fmt.Errorf("llm: reference image %s is a directory", path))
	}
	if info.Size() > MaxImageBytes {
		return nil, NewPermanentError(fmt.Errorf("%w: %s is %d bytes (max %d)", ErrImageTooLarge, path, info.Size(), MaxImageBytes))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewPermanentError(fmt.Errorf("llm: reference image: %w", err))
	}
	mime := mimetype.Detect(data)
	for _, t := range imageTypes {
		if mime.Is(t) {
			return &Image{MIMEType: t, Data: data}, nil
		}
	}
	return nil, NewPermanentError(fmt.Errorf("%w: %s is %s", ErrUnsupportedImage, path, mime.String()))
}
