package storage

import (
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
)

// ErrUnsupportedImage 内容不是允许的位图格式（SVG 不允许）
var ErrUnsupportedImage = errors.New("unsupported image type")

var allowedImages = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// DetectImage sniffs the content type from the file bytes and rewinds r.
// The client-declared Content-Type is never trusted.
func DetectImage(r io.ReadSeeker) (string, error) {
	mtype, err := mimetype.DetectReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to rewind image: %w", err)
	}
	for _, allowed := range allowedImages {
		if mtype.Is(allowed) {
			return allowed, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedImage, mtype.String())
}
