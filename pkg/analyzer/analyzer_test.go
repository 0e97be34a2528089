package analyzer

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kuailefengnan2024/Finetune"
	"github.com/kuailefengnan2024/Finetune/internal/utils"
	"github.com/kuailefengnan2024/Finetune/pkg/types"
)

// createTestImage creates a simple test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	// Fill with a gradient pattern
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := uint8((x * 255) / width)
			g := uint8((y * 255) / height)
			b := uint8(128)
			img.Set(x, y, color.RGBA{r, g, b, 255})
		}
	}

	return img
}

// createCutout creates an opaque square in the middle of a transparent image
func createCutout(width, height int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := height / 4; y < 3*height/4; y++ {
		for x := width / 4; x < 3*width/4; x++ {
			img.SetNRGBA(x, y, color.NRGBA{200, 50, 50, 255})
		}
	}
	return img
}

func encode(t *testing.T, img image.Image, format string) []byte {
	t.Helper()
	var buf bytes.Buffer
	var err error
	if format == "jpeg" {
		err = jpeg.Encode(&buf, img, nil)
	} else {
		err = png.Encode(&buf, img)
	}
	if err != nil {
		t.Fatalf("encode %s: %v", format, err)
	}
	return buf.Bytes()
}

func TestNew(t *testing.T) {
	analyzer := New()
	if analyzer == nil {
		t.Fatal("New() returned nil")
	}

	if analyzer.config.MinImageSize != 256 {
		t.Errorf("Expected min size 256, got %d", analyzer.config.MinImageSize)
	}

	if analyzer.config.Canvas != (types.Size{Width: 512, Height: 512}) {
		t.Errorf("Expected 512x512 canvas, got %s", analyzer.config.Canvas)
	}
}

func TestGetImageInfo(t *testing.T) {
	analyzer := New()
	img := createTestImage(400, 300)

	info := analyzer.GetImageInfo(img)

	if info.Width != 400 {
		t.Errorf("Expected width 400, got %d", info.Width)
	}

	if info.Height != 300 {
		t.Errorf("Expected height 300, got %d", info.Height)
	}

	expectedRatio := float64(400) / float64(300)
	if info.AspectRatio != expectedRatio {
		t.Errorf("Expected aspect ratio %f, got %f", expectedRatio, info.AspectRatio)
	}

	if info.Area != 120000 {
		t.Errorf("Expected area 120000, got %d", info.Area)
	}

	if info.HasAlpha {
		t.Error("Opaque RGBA image should not report alpha")
	}

	if !analyzer.GetImageInfo(createCutout(10, 10)).HasAlpha {
		t.Error("NRGBA cutout should report alpha")
	}
}

func TestValidateImage(t *testing.T) {
	analyzer := New()

	// Valid image
	validImg := createTestImage(256, 300)
	if err := analyzer.ValidateImage(validImg); err != nil {
		t.Errorf("Valid image should pass validation: %v", err)
	}

	// Invalid image (too small)
	invalidImg := createTestImage(50, 500)
	if err := analyzer.ValidateImage(invalidImg); err == nil {
		t.Error("Small image should fail validation")
	}
}

func TestDetectFormat(t *testing.T) {
	img := createTestImage(8, 8)

	if got := DetectFormat(encode(t, img, "png")); got != "png" {
		t.Errorf("Expected png, got %s", got)
	}
	if got := DetectFormat(encode(t, img, "jpeg")); got != "jpeg" {
		t.Errorf("Expected jpeg, got %s", got)
	}
	if got := DetectFormat([]byte("hello")); got != "unknown" {
		t.Errorf("Expected unknown, got %s", got)
	}
}

func TestAnalyzeBytesOpaque(t *testing.T) {
	analyzer := New()

	analysis, err := analyzer.AnalyzeBytes(encode(t, createTestImage(100, 200), "png"))
	if err != nil {
		t.Fatalf("AnalyzeBytes failed: %v", err)
	}

	if analysis.Info.Format != "png" {
		t.Errorf("Expected png, got %s", analysis.Info.Format)
	}
	if analysis.Plan == nil {
		t.Fatal("Expected a fit plan")
	}
	if analysis.Plan.HasAlpha {
		t.Error("Opaque PNG should take the no-alpha path")
	}
	if analysis.Plan.Scaled != (types.Size{Width: 256, Height: 512}) {
		t.Errorf("Expected 256x512, got %s", analysis.Plan.Scaled)
	}
	if analysis.Plan.Placement != (types.Placement{X: 128, Y: 0}) {
		t.Errorf("Expected placement (128,0), got %+v", analysis.Plan.Placement)
	}
	if !analysis.Upscaled {
		t.Error("100x200 onto 512x512 should be reported as upscaled")
	}
	if len(analysis.Warnings) != 1 || !strings.Contains(analysis.Warnings[0], "too small") {
		t.Errorf("Expected a size warning, got %v", analysis.Warnings)
	}
}

func TestAnalyzeFileCutout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cutout.png")
	if err := os.WriteFile(path, encode(t, createCutout(600, 600), "png"), 0o644); err != nil {
		t.Fatal(err)
	}

	analysis, err := New().AnalyzeFile(path)
	if err != nil {
		t.Fatalf("AnalyzeFile failed: %v", err)
	}

	if analysis.Info.Path != path {
		t.Errorf("Expected path %s, got %s", path, analysis.Info.Path)
	}
	if !analysis.Plan.HasAlpha {
		t.Error("Cutout should keep its alpha channel")
	}
	if analysis.Upscaled {
		t.Error("600x600 onto 512x512 is a downscale")
	}
	if analysis.Plan.Foreground == 0 {
		t.Error("Expected foreground pixels")
	}
	if len(analysis.Warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", analysis.Warnings)
	}
}

func TestAnalyzeSourceURL(t *testing.T) {
	data := encode(t, createCutout(300, 300), "png")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cutout.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(data)
		case "/broken.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("garbage"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	analyzer := New()
	source := srv.URL + "/cutout.png"

	analysis, err := analyzer.AnalyzeSource(source)
	if err != nil {
		t.Fatalf("AnalyzeSource failed: %v", err)
	}

	if analysis.Info.Path != source {
		t.Errorf("Expected path %s, got %s", source, analysis.Info.Path)
	}
	if analysis.Info.Format != "png" {
		t.Errorf("Expected png, got %s", analysis.Info.Format)
	}
	if analysis.Info.FileBytes != int64(len(data)) {
		t.Errorf("Expected %d bytes, got %d", len(data), analysis.Info.FileBytes)
	}
	if !analysis.Plan.HasAlpha {
		t.Error("Cutout should keep its alpha channel")
	}

	if _, err := analyzer.AnalyzeSource(srv.URL + "/broken.png"); err == nil {
		t.Error("Expected decode error for broken download")
	}
	if _, err := analyzer.AnalyzeSource(srv.URL + "/missing.png"); err == nil {
		t.Error("Expected error for HTTP 404")
	}
}

func TestAnalyzeSourceFile(t *testing.T) {
	data := encode(t, createTestImage(300, 280), "png")
	path := filepath.Join(t.TempDir(), "photo.png")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	analysis, err := New().AnalyzeSource(path)
	if err != nil {
		t.Fatalf("AnalyzeSource failed: %v", err)
	}

	if analysis.Info.Path != path {
		t.Errorf("Expected path %s, got %s", path, analysis.Info.Path)
	}
	want := utils.FormatFileSize(int64(len(data)))
	if analysis.Info.FileSize != want {
		t.Errorf("Expected file size %q, got %q", want, analysis.Info.FileSize)
	}
	if analysis.Info.FileSize == "" {
		t.Error("Expected a human-readable file size")
	}
}

func TestAnalyzeTransparentImage(t *testing.T) {
	analyzer := NewWithConfig(Config{Canvas: types.Size{Width: 32, Height: 32}}, finetune.New())

	analysis, err := analyzer.AnalyzeBytes(encode(t, image.NewNRGBA(image.Rect(0, 0, 16, 16)), "png"))
	if err != nil {
		t.Fatalf("AnalyzeBytes failed: %v", err)
	}
	if len(analysis.Warnings) != 1 || analysis.Warnings[0] != "image is fully transparent" {
		t.Errorf("Expected a transparency warning, got %v", analysis.Warnings)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	if _, err := New().AnalyzeBytes([]byte("garbage")); err == nil {
		t.Error("Expected decode error")
	}

	analyzer := NewWithConfig(Config{Canvas: types.Size{Width: 0, Height: 10}}, finetune.New())
	if _, err := analyzer.AnalyzeBytes(encode(t, createTestImage(4, 4), "png")); err == nil {
		t.Error("Expected invalid size error")
	}

	if _, err := New().AnalyzeFile(filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("Expected missing file error")
	}
}

func BenchmarkGetImageInfo(b *testing.B) {
	analyzer := New()
	img := createTestImage(1920, 1080)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		analyzer.GetImageInfo(img)
	}
}
