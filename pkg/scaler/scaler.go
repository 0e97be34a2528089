package scaler

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/kuailefengnan2024/Finetune/pkg/types"
)

// Fit scales img uniformly so it fits entirely inside size and returns the
// scaled image together with the offset that centers it on the canvas.
// Sources smaller than the box are scaled up.
func Fit(img image.Image, size types.Size) (*image.NRGBA, types.Placement, error) {
	if err := size.Validate(); err != nil {
		return nil, types.Placement{}, err
	}
	if img == nil {
		return nil, types.Placement{}, fmt.Errorf("%w: nil image", types.ErrDecode)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, types.Placement{}, fmt.Errorf("%w: empty image %v", types.ErrDecode, bounds)
	}

	w, h := Dimensions(bounds.Dx(), bounds.Dy(), size)
	scaled := imaging.Resize(img, w, h, imaging.Lanczos)

	return scaled, Center(w, h, size), nil
}

// Dimensions returns the largest w x h with the source aspect ratio that fits
// inside size. The limiting dimension matches the box exactly.
func Dimensions(srcW, srcH int, size types.Size) (int, int) {
	// Compare W/srcW with H/srcH without floating point.
	if size.Width*srcH <= size.Height*srcW {
		h := (srcH*size.Width + srcW/2) / srcW
		return size.Width, clampInt(h, 1, size.Height)
	}
	w := (srcW*size.Height + srcH/2) / srcH
	return clampInt(w, 1, size.Width), size.Height
}

// Center returns the offset that centers a w x h image on the canvas
func Center(w, h int, size types.Size) types.Placement {
	return types.Placement{
		X: (size.Width - w) / 2,
		Y: (size.Height - h) / 2,
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
