// internal/enhance/io.go
package enhance

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/webp"
)

// JPEGQuality is used for both the recognizer payload and saved artifacts.
const JPEGQuality = 95

// ImageDecodeError reports a meal image that could not be read or decoded.
// The image is skipped; the run continues.
type ImageDecodeError struct {
	Path string
	Err  error
}

func (e *ImageDecodeError) Error() string {
	return fmt.Sprintf("decode image %s: %v", e.Path, e.Err)
}

func (e *ImageDecodeError) Unwrap() error {
	return e.Err
}

// Load reads and decodes a JPEG, PNG or WebP image.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ImageDecodeError{Path: path, Err: err}
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, &ImageDecodeError{Path: path, Err: err}
	}
	return img, nil
}

// EncodeJPEG encodes img for transport to the vision model.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// ProcessedName derives the artifact file name from the original image's
// base name. A ".jpg" base is kept as is; any other extension stays in the
// name so "meal.png" and "meal.jpg" never share an artifact.
func ProcessedName(rawPath string) string {
	base := filepath.Base(rawPath)
	if ext := filepath.Ext(base); strings.EqualFold(ext, ".jpg") {
		return strings.TrimSuffix(base, ext) + ".jpg"
	}
	return base + ".jpg"
}

// Save writes already-encoded JPEG bytes to dir under ProcessedName and
// returns the written path.
func Save(dir, rawPath string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create processed dir: %w", err)
	}
	path := filepath.Join(dir, ProcessedName(rawPath))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write processed image: %w", err)
	}
	return path, nil
}
