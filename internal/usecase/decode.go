package usecase

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/Brownie44l1/lesion-api/internal/classifier"
)

// SupportedContentTypes lists the upload media types the decoders accept.
var SupportedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/bmp":  true,
}

// MaxPixels caps the declared width x height of an image before its pixels
// are decoded.
const MaxPixels = 40_000_000

// DecodeImage decodes JPEG, PNG, WebP or BMP bytes. Undecodable input and
// images larger than MaxPixels are reported as classifier.ErrInvalidInput.
func DecodeImage(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty image", classifier.ErrInvalidInput)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: decode image header: %w", classifier.ErrInvalidInput, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, "", fmt.Errorf("%w: image is %dx%d, limit is %d pixels",
			classifier.ErrInvalidInput, cfg.Width, cfg.Height, MaxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: decode image: %w", classifier.ErrInvalidInput, err)
	}
	return img, format, nil
}
