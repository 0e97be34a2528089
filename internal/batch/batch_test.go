package batch

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuailefengnan2024/Finetune"
	"github.com/kuailefengnan2024/Finetune/internal/utils"
	"github.com/kuailefengnan2024/Finetune/pkg/caption"
	"github.com/kuailefengnan2024/Finetune/pkg/types"
)

func writePNG(t *testing.T, path string, w, h int, c color.NRGBA) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	// One translucent pixel keeps the alpha channel in the encoded file
	// without making it background.
	img.SetNRGBA(0, 0, color.NRGBA{c.R, c.G, c.B, 200})

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func readPNG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	return img
}

func TestResizerRun(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "tall.png"), 20, 40, color.NRGBA{255, 0, 0, 255})
	writePNG(t, filepath.Join(dir, "wide.png"), 40, 10, color.NRGBA{0, 0, 255, 255})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.png"), []byte("nope"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644))

	r := NewResizer(finetune.New(), ResizeOptions{
		Size:    types.Size{Width: 32, Height: 32},
		Workers: 2,
		Debug:   true,
	})

	summary, err := r.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	require.Equal(t, 1, summary.Failed())
	assert.Equal(t, filepath.Join(dir, "broken.png"), summary.Failures[0].File)
	assert.ErrorIs(t, summary.Failures[0].Err, types.ErrDecode)

	for _, name := range []string{"tall.png", "wide.png"} {
		img := readPNG(t, filepath.Join(dir, "Modified", name))
		assert.Equal(t, image.Rect(0, 0, 32, 32), img.Bounds(), name)
		assert.True(t, utils.FileExists(filepath.Join(dir, "Modified", "debug", name)), name)
	}

	// Straight edges are extended, so the padding takes the source colour.
	r8, g8, b8, _ := readPNG(t, filepath.Join(dir, "Modified", "tall.png")).At(31, 16).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0, 0}, [3]uint32{r8, g8, b8})

	assert.False(t, utils.FileExists(filepath.Join(dir, "Modified", "broken.png")))
	assert.False(t, utils.FileExists(filepath.Join(dir, "Modified", "notes.txt")))
}

func TestResizerOutputFormat(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 10, 10, color.NRGBA{0, 255, 0, 255})

	r := NewResizer(finetune.New(), ResizeOptions{
		Size:         types.Size{Width: 16, Height: 8},
		OutputSubdir: "out",
		Output:       types.OutputOptions{Format: "webp", Lossless: true},
	})

	summary, err := r.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.True(t, utils.FileExists(filepath.Join(dir, "out", "a.webp")))
}

func TestResizerInvalidSizeTouchesNothing(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 10, 10, color.NRGBA{0, 255, 0, 255})

	r := NewResizer(finetune.New(), ResizeOptions{Size: types.Size{Width: 0, Height: 512}})

	_, err := r.Run(context.Background(), dir)
	assert.ErrorIs(t, err, types.ErrInvalidSize)
	assert.False(t, utils.DirExists(filepath.Join(dir, "Modified")))
}

func TestResizerMissingDirectory(t *testing.T) {
	r := NewResizer(finetune.New(), ResizeOptions{Size: types.Size{Width: 8, Height: 8}})

	_, err := r.Run(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestResizerEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	r := NewResizer(finetune.New(), ResizeOptions{Size: types.Size{Width: 8, Height: 8}})

	summary, err := r.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
	assert.False(t, utils.DirExists(filepath.Join(dir, "Modified")))
}

func TestDescribe(t *testing.T) {
	report := finetune.Report{}
	assert.Contains(t, describe(report), "no alpha")

	report.HasAlpha = true
	report.Boundary.Degenerate = true
	assert.Contains(t, describe(report), "uniform alpha")

	report.Boundary.Degenerate = false
	report.Boundary.Complexity = 0.02
	assert.Contains(t, describe(report), "straight")

	report.Boundary.Verdict = types.Irregular
	report.Boundary.Complexity = 0.4
	assert.Contains(t, describe(report), "irregular")
}

func TestRenamerRun(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.jpg", "c.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}

	summary, err := NewRenamer("img_", nil).Run(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)

	data, err := os.ReadFile(filepath.Join(dir, "img_001.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "a.jpg", string(data))

	data, err = os.ReadFile(filepath.Join(dir, "img_002.png"))
	require.NoError(t, err)
	assert.Equal(t, "b.png", string(data))

	assert.True(t, utils.FileExists(filepath.Join(dir, "c.txt")))
}

func TestRenamerSkipsTakenNames(t *testing.T) {
	dir := t.TempDir()
	// a.png sorts first and wants image_001.png, which is already taken.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image_001.png"), []byte("b"), 0o644))

	summary, err := NewRenamer("image_", nil).Run(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Succeeded)

	data, err := os.ReadFile(filepath.Join(dir, "image_002.png"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
	assert.True(t, utils.FileExists(filepath.Join(dir, "a.png")))
}

type fakeVision struct {
	calls int
	err   error
}

func (f *fakeVision) Describe(ctx context.Context, model, prompt, imgB64 string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "Caption: a small square", nil
}

func TestCaptionerRun(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 8, 8, color.NRGBA{1, 2, 3, 255})
	writePNG(t, filepath.Join(dir, "b.png"), 8, 8, color.NRGBA{1, 2, 3, 255})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("keep"), 0o644))

	fake := &fakeVision{}
	c := NewCaptioner(caption.NewGenerator(fake, caption.DefaultConfig()), nil, false)

	summary, err := c.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, fake.calls)

	data, err := os.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a small square", string(data))

	data, err = os.ReadFile(filepath.Join(dir, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "keep", string(data))

	summary, err = NewCaptioner(caption.NewGenerator(fake, caption.DefaultConfig()), nil, true).Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)
}

func TestCaptionerRecordsFailures(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 8, 8, color.NRGBA{1, 2, 3, 255})

	boom := errors.New("model offline")
	c := NewCaptioner(caption.NewGenerator(&fakeVision{err: boom}, caption.DefaultConfig()), nil, false)

	summary, err := c.Run(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Failed())
	assert.ErrorIs(t, summary.Failures[0].Err, boom)
	assert.False(t, utils.FileExists(filepath.Join(dir, "a.txt")))
}

func TestCaptionerStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 8, 8, color.NRGBA{1, 2, 3, 255})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fake := &fakeVision{}
	_, err := NewCaptioner(caption.NewGenerator(fake, caption.DefaultConfig()), nil, false).Run(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fake.calls)
}
