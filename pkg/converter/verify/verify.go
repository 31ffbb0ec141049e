// Package verify checks that a converter actually produced a usable image.
package verify

import (
	"errors"
	"fmt"
	"os"

	"github.com/disintegration/imaging"
)

// ErrInvalidOutput is returned when the rendered file is missing, empty or not a decodable image.
var ErrInvalidOutput = errors.New("invalid rendered output")

// ImageVerifier decodes the rendered file and checks its dimensions.
type ImageVerifier struct {
	MinWidth  int
	MinHeight int
}

// NewImageVerifier returns a verifier that accepts any image of at least 1x1 pixels.
func NewImageVerifier() *ImageVerifier {
	return &ImageVerifier{MinWidth: 1, MinHeight: 1}
}

// Verify reports an error wrapping ErrInvalidOutput if outputPath is not a decodable
// image of at least the configured size.
func (v *ImageVerifier) Verify(outputPath string) error {
	info, err := os.Stat(outputPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOutput, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", ErrInvalidOutput, outputPath)
	}

	img, err := imaging.Open(outputPath)
	if err != nil {
		return fmt.Errorf("%w: decode %s: %w", ErrInvalidOutput, outputPath, err)
	}
	b := img.Bounds()
	if b.Dx() < v.MinWidth || b.Dy() < v.MinHeight {
		return fmt.Errorf("%w: %s is %dx%d, want at least %dx%d", ErrInvalidOutput, outputPath, b.Dx(), b.Dy(), v.MinWidth, v.MinHeight)
	}
	return nil
}
