package field

// Image is a decoded raster: Width*Height RGBA samples, one byte per channel,
// stored row-major.
type Image struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewImage wraps an RGBA byte slice. Pix must hold 4*width*height bytes.
func NewImage(width, height int, pix []uint8) *Image {
	return &Image{Width: width, Height: height, Pix: pix}
}

// At returns the channels of the pixel at {x, y}.
func (img *Image) At(x, y int) (r, g, b, a uint8) {
	i := img.offset(x, y)
	return img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3]
}

func (img *Image) offset(x, y int) int {
	return y*4*img.Width + x*4
}

// valid reports whether the buffer is large enough for the declared size.
func (img *Image) valid() bool {
	if img == nil || img.Width <= 0 || img.Height <= 0 {
		return false
	}
	return len(img.Pix) >= 4*img.Width*img.Height
}
