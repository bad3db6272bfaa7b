// Package imageio decodes image files into the RGBA buffer consumed by the
// particle field.
package imageio

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	field "github.com/esimov/pixel-particles/particle-field"
)

// ErrEmpty is returned for images without pixels.
var ErrEmpty = errors.New("image has no pixels")

// Load opens and decodes the image at path.
func Load(path string) (*field.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode reads an image in any registered format and returns its pixels along
// with the format name.
func Decode(r io.Reader) (*field.Image, string, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("decoding image: %w", err)
	}
	img, err := FromImage(src)
	if err != nil {
		return nil, format, err
	}
	return img, format, nil
}

// FromImage converts src to non-premultiplied RGBA, the layout a 2D canvas
// returns from getImageData.
func FromImage(src image.Image) (*field.Image, error) {
	b := src.Bounds()
	if b.Empty() {
		return nil, ErrEmpty
	}

	dst, ok := src.(*image.NRGBA)
	if !ok || dst.Rect.Min != (image.Point{}) || dst.Stride != 4*b.Dx() {
		dst = image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	}
	return field.NewImage(b.Dx(), b.Dy(), dst.Pix), nil
}
