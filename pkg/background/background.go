package background

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/kuailefengnan2024/Finetune/pkg/edt"
	"github.com/kuailefengnan2024/Finetune/pkg/mask"
	"github.com/kuailefengnan2024/Finetune/pkg/types"
)

// Synthesizer builds the canvas the scaled image is composited onto
type Synthesizer struct {
	options Options
}

// Options holds the solid colours used by the synthesizer
type Options struct {
	// IrregularFill covers the whole canvas for irregular boundaries
	IrregularFill color.RGBA
	// FallbackFill is used where no source pixel can be extrapolated
	FallbackFill color.RGBA
}

// DefaultOptions returns black for irregular boundaries and white as fallback
func DefaultOptions() Options {
	return Options{
		IrregularFill: color.RGBA{0, 0, 0, 255},
		FallbackFill:  color.RGBA{255, 255, 255, 255},
	}
}

// New creates a Synthesizer with default options
func New() *Synthesizer {
	return &Synthesizer{options: DefaultOptions()}
}

// NewWithOptions creates a Synthesizer with custom fill colours
func NewWithOptions(options Options) *Synthesizer {
	options.IrregularFill.A = 255
	options.FallbackFill.A = 255
	return &Synthesizer{options: options}
}

// Synthesize returns an opaque canvas of the given size. Irregular verdicts
// get a solid fill. Straight verdicts get every pixel outside the foreground
// painted with the colour of its nearest foreground pixel.
func (s *Synthesizer) Synthesize(v types.Verdict, scaled image.Image, m *mask.Mask, p types.Placement, size types.Size) *image.RGBA {
	if v == types.Irregular {
		return Solid(size, s.options.IrregularFill)
	}
	return s.extend(scaled, m, p, size)
}

// Solid returns a canvas filled with c
func Solid(size types.Size, c color.RGBA) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return canvas
}

func (s *Synthesizer) extend(scaled image.Image, m *mask.Mask, p types.Placement, size types.Size) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, size.Width, size.Height))
	region := p.Rect(m.Width, m.Height).Intersect(canvas.Bounds())
	sb := scaled.Bounds()

	// Foreground cells of the canvas, with their source colour copied in.
	grid := make([]bool, size.Width*size.Height)
	marked := 0
	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			if !m.At(x-p.X, y-p.Y) {
				continue
			}
			grid[y*size.Width+x] = true
			marked++
			c := mask.NRGBAAt(scaled, sb.Min.X+x-p.X, sb.Min.Y+y-p.Y)
			i := canvas.PixOffset(x, y)
			canvas.Pix[i+0] = c.R
			canvas.Pix[i+1] = c.G
			canvas.Pix[i+2] = c.B
		}
	}

	if marked == 0 {
		return Solid(size, s.options.FallbackFill)
	}

	nearest := edt.Transform(grid, size.Width, size.Height)
	fb := s.options.FallbackFill

	for y := 0; y < size.Height; y++ {
		for x := 0; x < size.Width; x++ {
			i := canvas.PixOffset(x, y)
			canvas.Pix[i+3] = 255
			if grid[y*size.Width+x] {
				continue
			}

			nx, ny, ok := nearest.At(x, y)
			if ok && image.Pt(nx, ny).In(region) && m.At(nx-p.X, ny-p.Y) {
				j := canvas.PixOffset(nx, ny)
				canvas.Pix[i+0] = canvas.Pix[j+0]
				canvas.Pix[i+1] = canvas.Pix[j+1]
				canvas.Pix[i+2] = canvas.Pix[j+2]
				continue
			}
			canvas.Pix[i+0] = fb.R
			canvas.Pix[i+1] = fb.G
			canvas.Pix[i+2] = fb.B
		}
	}

	return canvas
}

