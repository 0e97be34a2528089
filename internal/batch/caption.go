package batch

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/kuailefengnan2024/Finetune/internal/utils"
	"github.com/kuailefengnan2024/Finetune/pkg/caption"
	"github.com/kuailefengnan2024/Finetune/pkg/processing"
)

// Captioner writes a caption sidecar (<name>.txt) next to every image
type Captioner struct {
	generator  *caption.Generator
	processor  *processing.Processor
	extensions []string
	overwrite  bool
}

// NewCaptioner creates a Captioner. Existing sidecars are kept unless
// overwrite is set.
func NewCaptioner(generator *caption.Generator, exts []string, overwrite bool) *Captioner {
	if len(exts) == 0 {
		exts = utils.DefaultImageExtensions
	}
	return &Captioner{
		generator:  generator,
		processor:  processing.NewProcessor(),
		extensions: exts,
		overwrite:  overwrite,
	}
}

// Run captions the images directly inside dir one at a time, since a local
// model server handles a single request efficiently at best.
func (c *Captioner) Run(ctx context.Context, dir string) (*Summary, error) {
	if !utils.DirExists(dir) {
		return nil, fmt.Errorf("directory %q does not exist", dir)
	}

	files, err := utils.ListImageFiles(dir, c.extensions)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	summary := &Summary{Total: len(files)}
	if len(files) == 0 {
		log.Printf("no image files found in %s", dir)
		return summary, nil
	}

	log.Printf("captioning %d images in %s", len(files), dir)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		txtPath := utils.ReplaceExt(file, "txt")
		if !c.overwrite && utils.FileExists(txtPath) {
			summary.skip()
			continue
		}

		text, err := c.CaptionFile(ctx, file)
		if err != nil {
			log.Printf("failed %s: %v", filepath.Base(file), err)
			summary.fail(file, err)
			continue
		}
		if err := os.WriteFile(txtPath, []byte(text), 0644); err != nil {
			log.Printf("failed %s: %v", filepath.Base(txtPath), err)
			summary.fail(file, err)
			continue
		}
		log.Printf("captioned %s: %s", filepath.Base(file), text)
		summary.succeed()
	}

	log.Printf("done: %s", summary)
	return summary, nil
}

// CaptionFile returns the caption for a single image file or http(s) URL
func (c *Captioner) CaptionFile(ctx context.Context, path string) (string, error) {
	img, err := c.processor.LoadImageSmart(path)
	if err != nil {
		return "", err
	}
	return c.generator.Caption(ctx, img)
}
