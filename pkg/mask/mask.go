package mask

import (
	"image"
	"image/color"
)

// DefaultThreshold is the alpha value a pixel must exceed to count as foreground
const DefaultThreshold = 128

// Mask is a per-pixel foreground flag with the same size as its source image.
// Coordinates are zero-based regardless of the source image's bounds.
type Mask struct {
	Width  int
	Height int
	bits   []bool
}

// New creates an all-background mask
func New(width, height int) *Mask {
	return &Mask{Width: width, Height: height, bits: make([]bool, width*height)}
}

// FromImage marks every pixel whose 8-bit alpha is strictly greater than threshold
func FromImage(img image.Image, threshold uint8) *Mask {
	b := img.Bounds()
	m := New(b.Dx(), b.Dy())

	if nrgba, ok := img.(*image.NRGBA); ok {
		for y := 0; y < m.Height; y++ {
			row := nrgba.Pix[y*nrgba.Stride:]
			for x := 0; x < m.Width; x++ {
				m.bits[y*m.Width+x] = row[x*4+3] > threshold
			}
		}
		return m
	}

	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			m.bits[y*m.Width+x] = NRGBAAt(img, b.Min.X+x, b.Min.Y+y).A > threshold
		}
	}
	return m
}

// At reports whether (x, y) is foreground. Out-of-range points are background.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.bits[y*m.Width+x]
}

// Set marks (x, y) as foreground or background
func (m *Mask) Set(x, y int, v bool) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	m.bits[y*m.Width+x] = v
}

// Count returns the number of foreground pixels
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.bits {
		if v {
			n++
		}
	}
	return n
}

// All reports whether every pixel is foreground
func (m *Mask) All() bool {
	for _, v := range m.bits {
		if !v {
			return false
		}
	}
	return true
}

// None reports whether no pixel is foreground
func (m *Mask) None() bool {
	for _, v := range m.bits {
		if v {
			return false
		}
	}
	return true
}

// HasAlphaChannel reports whether the decoded image carries transparency
// information. Non-premultiplied images count even when fully opaque, since
// that is what decoders return for sources stored with an alpha channel.
// Premultiplied RGBA is what the png, bmp and tiff decoders return for plain
// RGB data, so it only counts when some pixel is actually translucent.
func HasAlphaChannel(img image.Image) bool {
	switch src := img.(type) {
	case *image.NRGBA, *image.NRGBA64, *image.Alpha, *image.Alpha16:
		return true
	case *image.RGBA:
		return !src.Opaque()
	case *image.RGBA64:
		return !src.Opaque()
	case *image.Paletted:
		for _, c := range src.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return true
			}
		}
		return false
	case *image.Gray, *image.Gray16, *image.YCbCr, *image.CMYK:
		return false
	}

	switch img.ColorModel() {
	case color.NRGBAModel, color.NRGBA64Model, color.AlphaModel, color.Alpha16Model:
		return true
	}
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return false
}

// NRGBAAt returns the non-premultiplied colour of img at (x, y)
func NRGBAAt(img image.Image, x, y int) color.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok {
		return nrgba.NRGBAAt(x, y)
	}
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}
