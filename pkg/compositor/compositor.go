package compositor

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/kuailefengnan2024/Finetune/pkg/background"
	"github.com/kuailefengnan2024/Finetune/pkg/mask"
	"github.com/kuailefengnan2024/Finetune/pkg/types"
)

// Composite overwrites canvas pixels with scaled's colour wherever m is
// foreground. There is no partial blending: the alpha threshold applied when
// building m already decided which pixels belong to the image.
// The canvas is modified in place and returned.
func Composite(canvas *image.RGBA, scaled image.Image, m *mask.Mask, p types.Placement) *image.RGBA {
	sb := scaled.Bounds()
	cb := canvas.Bounds()

	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			if !m.At(x, y) {
				continue
			}
			pt := image.Pt(p.X+x, p.Y+y)
			if !pt.In(cb) {
				continue
			}
			c := mask.NRGBAAt(scaled, sb.Min.X+x, sb.Min.Y+y)
			i := canvas.PixOffset(pt.X, pt.Y)
			canvas.Pix[i+0] = c.R
			canvas.Pix[i+1] = c.G
			canvas.Pix[i+2] = c.B
			canvas.Pix[i+3] = 255
		}
	}
	return canvas
}

// PasteOpaque centers an image without transparency on a solid canvas
func PasteOpaque(scaled image.Image, p types.Placement, size types.Size, fill color.RGBA) *image.RGBA {
	fill.A = 255
	canvas := background.Solid(size, fill)
	sb := scaled.Bounds()
	draw.Draw(canvas, p.Rect(sb.Dx(), sb.Dy()), scaled, sb.Min, draw.Src)
	return canvas
}
