// Package finetune prepares images for fine-tuning datasets by fitting them
// onto fixed-size canvases.
//
// Basic usage:
//
//	package main
//
//	import (
//		"log"
//		"os"
//
//		"github.com/kuailefengnan2024/Finetune"
//	)
//
//	func main() {
//		src, err := os.ReadFile("cutout.png")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		out, err := finetune.New().ResizeToCanvas(src, 512, 512, "png")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		if err := os.WriteFile("cutout_512.png", out, 0o644); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// Each image goes through four stages:
//
// 1. Scaler (pkg/scaler): uniform Lanczos resize into the canvas box, centered
// 2. Classifier (pkg/classifier): straight or irregular alpha boundary
// 3. Background (pkg/background): edge extrapolation or a solid fill
// 4. Compositor (pkg/compositor): pastes the opaque pixels over the background
//
// Images without an alpha channel skip stages 2 and 3 and are pasted onto a
// white canvas. Straight boundaries are extended outward using an exact
// Euclidean distance transform (pkg/edt), so every padding pixel takes the
// colour of the nearest opaque source pixel.
//
// A Fitter holds no per-image state and can be shared between goroutines.
package finetune

import (
	"fmt"
	"image"
	"image/color"

	"github.com/kuailefengnan2024/Finetune/pkg/background"
	"github.com/kuailefengnan2024/Finetune/pkg/classifier"
	"github.com/kuailefengnan2024/Finetune/pkg/compositor"
	"github.com/kuailefengnan2024/Finetune/pkg/mask"
	"github.com/kuailefengnan2024/Finetune/pkg/processing"
	"github.com/kuailefengnan2024/Finetune/pkg/scaler"
	"github.com/kuailefengnan2024/Finetune/pkg/types"
)

// Version of the finetune library
const Version = "1.0.0"

// Config holds the tunables of the canvas pipeline
type Config struct {
	// AlphaThreshold is the alpha value a pixel must exceed to be foreground
	AlphaThreshold uint8
	// ComplexityThreshold separates straight from irregular boundaries
	ComplexityThreshold float64
	// IrregularFill is the background for irregular boundaries
	IrregularFill color.RGBA
	// FallbackFill is used where extrapolation has no source pixel
	FallbackFill color.RGBA
	// OpaqueFill is the background for images without an alpha channel
	OpaqueFill color.RGBA
}

// DefaultConfig returns the reference thresholds and fill colours
func DefaultConfig() Config {
	bg := background.DefaultOptions()
	return Config{
		AlphaThreshold:      mask.DefaultThreshold,
		ComplexityThreshold: classifier.DefaultComplexityThreshold,
		IrregularFill:       bg.IrregularFill,
		FallbackFill:        bg.FallbackFill,
		OpaqueFill:          color.RGBA{255, 255, 255, 255},
	}
}

// Fitter fits images onto canvases
type Fitter struct {
	config     Config
	classifier *classifier.Classifier
	background *background.Synthesizer
	processor  *processing.Processor
}

// New creates a Fitter with the default configuration
func New() *Fitter {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a Fitter with a custom configuration
func NewWithConfig(config Config) *Fitter {
	return &Fitter{
		config:     config,
		classifier: classifier.NewWithConfig(classifier.Config{ComplexityThreshold: config.ComplexityThreshold}),
		background: background.NewWithOptions(background.Options{
			IrregularFill: config.IrregularFill,
			FallbackFill:  config.FallbackFill,
		}),
		processor: processing.NewProcessor(),
	}
}

// Result is a finished canvas with a description of how it was built
type Result struct {
	Canvas *image.RGBA `json:"-"`
	Report Report      `json:"report"`
}

// Report describes the decisions taken for one image
type Report struct {
	Source     types.Size        `json:"source"`
	Canvas     types.Size        `json:"canvas"`
	Scaled     types.Size        `json:"scaled"`
	Placement  types.Placement   `json:"placement"`
	HasAlpha   bool              `json:"has_alpha"`
	Boundary   classifier.Report `json:"boundary"`
	Foreground int               `json:"foreground_pixels"`
}

// Verdict returns the boundary verdict, Straight for images without alpha
func (r Report) Verdict() types.Verdict {
	return r.Boundary.Verdict
}

// PlacedRect returns the canvas rectangle covered by the scaled image
func (r Report) PlacedRect() image.Rectangle {
	return r.Placement.Rect(r.Scaled.Width, r.Scaled.Height)
}

// Fit scales img into a width x height canvas and fills the padding.
// The returned canvas is fully opaque.
func (f *Fitter) Fit(img image.Image, width, height int) (Result, error) {
	size := types.Size{Width: width, Height: height}

	scaled, placement, err := scaler.Fit(img, size)
	if err != nil {
		return Result{}, err
	}

	src := img.Bounds()
	report := Report{
		Source:    types.Size{Width: src.Dx(), Height: src.Dy()},
		Canvas:    size,
		Scaled:    types.Size{Width: scaled.Bounds().Dx(), Height: scaled.Bounds().Dy()},
		Placement: placement,
		HasAlpha:  mask.HasAlphaChannel(img),
	}

	if !report.HasAlpha {
		report.Boundary = classifier.Report{Verdict: types.Straight}
		report.Foreground = report.Scaled.Width * report.Scaled.Height
		canvas := compositor.PasteOpaque(scaled, placement, size, f.config.OpaqueFill)
		return Result{Canvas: canvas, Report: report}, nil
	}

	m := mask.FromImage(scaled, f.config.AlphaThreshold)
	report.Foreground = m.Count()
	report.Boundary = f.classifier.Analyze(m)

	canvas := f.background.Synthesize(report.Boundary.Verdict, scaled, m, placement, size)
	compositor.Composite(canvas, scaled, m, placement)

	return Result{Canvas: canvas, Report: report}, nil
}

// ResizeToCanvas decodes src, fits it onto a width x height canvas and encodes
// the result in format (jpg, png, gif, bmp, tiff or webp).
func (f *Fitter) ResizeToCanvas(src []byte, width, height int, format string) ([]byte, error) {
	if err := (types.Size{Width: width, Height: height}).Validate(); err != nil {
		return nil, err
	}

	img, err := f.processor.DecodeBytes(src)
	if err != nil {
		return nil, err
	}

	result, err := f.Fit(img, width, height)
	if err != nil {
		return nil, err
	}

	out, err := f.processor.EncodeBytes(result.Canvas, types.OutputOptions{Format: format})
	if err != nil {
		return nil, fmt.Errorf("failed to encode canvas: %w", err)
	}
	return out, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
