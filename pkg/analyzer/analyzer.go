package analyzer

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/kuailefengnan2024/Finetune"
	"github.com/kuailefengnan2024/Finetune/internal/utils"
	"github.com/kuailefengnan2024/Finetune/pkg/mask"
	"github.com/kuailefengnan2024/Finetune/pkg/processing"
	"github.com/kuailefengnan2024/Finetune/pkg/types"
)

// Analyzer inspects source images and previews how they would be fitted,
// without writing anything
type Analyzer struct {
	config    Config
	fitter    *finetune.Fitter
	processor *processing.Processor
}

// Config holds configuration for the analyzer
type Config struct {
	// MinImageSize flags sources whose shorter side is below this many pixels
	MinImageSize int
	// Canvas is the target size used for the fit preview
	Canvas types.Size
}

// New creates an Analyzer with default configuration
func New() *Analyzer {
	return NewWithConfig(Config{
		MinImageSize: 256,
		Canvas:       types.Size{Width: 512, Height: 512},
	}, finetune.New())
}

// NewWithConfig creates an Analyzer with custom configuration
func NewWithConfig(config Config, fitter *finetune.Fitter) *Analyzer {
	return &Analyzer{
		config:    config,
		fitter:    fitter,
		processor: processing.NewProcessor(),
	}
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Path        string  `json:"path,omitempty"`
	Format      string  `json:"format"`
	FileBytes   int64   `json:"file_bytes,omitempty"`
	FileSize    string  `json:"file_size,omitempty"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	AspectRatio float64 `json:"aspect_ratio"`
	Area        int     `json:"area"`
	HasAlpha    bool    `json:"has_alpha"`
}

// Analysis is the metadata of a source plus the fit it would receive
type Analysis struct {
	Info     ImageInfo        `json:"info"`
	Plan     *finetune.Report `json:"plan,omitempty"`
	Upscaled bool             `json:"upscaled"`
	Warnings []string         `json:"warnings,omitempty"`
}

// AnalyzeFile decodes path and previews its fit onto the configured canvas
func (a *Analyzer) AnalyzeFile(path string) (*Analysis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	analysis, err := a.AnalyzeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	analysis.Info.Path = path
	return analysis, nil
}

// AnalyzeSource is AnalyzeFile for a file path or an http(s) URL
func (a *Analyzer) AnalyzeSource(source string) (*Analysis, error) {
	if !processing.IsURL(source) {
		return a.AnalyzeFile(source)
	}
	data, err := a.processor.ReadSource(source)
	if err != nil {
		return nil, err
	}
	analysis, err := a.AnalyzeBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	analysis.Info.Path = source
	return analysis, nil
}

// AnalyzeBytes is AnalyzeFile for encoded image data
func (a *Analyzer) AnalyzeBytes(data []byte) (*Analysis, error) {
	img, err := a.processor.DecodeBytes(data)
	if err != nil {
		return nil, err
	}

	info := a.GetImageInfo(img)
	info.Format = DetectFormat(data)
	info.FileBytes = int64(len(data))
	info.FileSize = utils.FormatFileSize(info.FileBytes)

	result, err := a.fitter.Fit(img, a.config.Canvas.Width, a.config.Canvas.Height)
	if err != nil {
		return nil, err
	}
	report := result.Report

	analysis := &Analysis{
		Info:     info,
		Plan:     &report,
		Upscaled: report.Scaled.Width > info.Width || report.Scaled.Height > info.Height,
	}
	if err := a.ValidateImage(img); err != nil {
		analysis.Warnings = append(analysis.Warnings, err.Error())
	}
	if report.HasAlpha && report.Foreground == 0 {
		analysis.Warnings = append(analysis.Warnings, "image is fully transparent")
	}
	return analysis, nil
}

// GetImageInfo returns basic information about an image
func (a *Analyzer) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	info := ImageInfo{
		Width:    width,
		Height:   height,
		Area:     width * height,
		HasAlpha: mask.HasAlphaChannel(img),
	}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

// ValidateImage checks if an image meets minimum requirements
func (a *Analyzer) ValidateImage(img image.Image) error {
	bounds := img.Bounds()
	if bounds.Dx() < a.config.MinImageSize || bounds.Dy() < a.config.MinImageSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)",
			bounds.Dx(), bounds.Dy(), a.config.MinImageSize)
	}
	return nil
}

// DetectFormat names the container format of data, or "unknown"
func DetectFormat(data []byte) string {
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return strings.ToLower(format)
	}
	return "unknown"
}
