package batch

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/kuailefengnan2024/Finetune"
	"github.com/kuailefengnan2024/Finetune/internal/utils"
	"github.com/kuailefengnan2024/Finetune/pkg/processing"
	"github.com/kuailefengnan2024/Finetune/pkg/types"
)

// ResizeOptions configures a Resizer
type ResizeOptions struct {
	Size         types.Size
	OutputSubdir string
	Extensions   []string
	Workers      int
	Output       types.OutputOptions
	Debug        bool
}

// Resizer fits every image of a directory onto a canvas and writes the
// results into a sibling output directory.
type Resizer struct {
	fitter    *finetune.Fitter
	processor *processing.Processor
	options   ResizeOptions
}

// NewResizer creates a Resizer
func NewResizer(fitter *finetune.Fitter, options ResizeOptions) *Resizer {
	if options.Workers < 1 {
		options.Workers = 1
	}
	if options.OutputSubdir == "" {
		options.OutputSubdir = "Modified"
	}
	if len(options.Extensions) == 0 {
		options.Extensions = utils.DefaultImageExtensions
	}
	return &Resizer{
		fitter:    fitter,
		processor: processing.NewProcessor(),
		options:   options,
	}
}

// Run processes the images directly inside dir. An invalid canvas size fails
// before any file is touched; per-file errors are logged, recorded in the
// summary and do not stop the batch.
func (r *Resizer) Run(ctx context.Context, dir string) (*Summary, error) {
	if err := r.options.Size.Validate(); err != nil {
		return nil, err
	}
	if !utils.DirExists(dir) {
		return nil, fmt.Errorf("directory %q does not exist", dir)
	}

	files, err := utils.ListImageFiles(dir, r.options.Extensions)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	summary := &Summary{Total: len(files)}
	if len(files) == 0 {
		log.Printf("no image files found in %s", dir)
		return summary, nil
	}

	outDir := filepath.Join(dir, r.options.OutputSubdir)
	if err := utils.EnsureDir(outDir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.options.Workers)

	for _, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			outPath, report, err := r.ProcessFile(file, outDir)
			if err != nil {
				log.Printf("failed %s: %v", filepath.Base(file), err)
				summary.fail(file, err)
				return nil
			}
			log.Printf("resized %s -> %s (%s, scaled %s at %d,%d)",
				filepath.Base(file), outPath, describe(report),
				report.Scaled, report.Placement.X, report.Placement.Y)
			summary.succeed()
			return nil
		})
	}

	err = g.Wait()
	sort.Slice(summary.Failures, func(i, j int) bool {
		return summary.Failures[i].File < summary.Failures[j].File
	})
	log.Printf("done: %s, output in %s", summary, outDir)
	return summary, err
}

// ProcessFile fits one file and writes it into outDir under the same name
// (with the extension swapped when a fixed output format is configured).
func (r *Resizer) ProcessFile(path, outDir string) (string, finetune.Report, error) {
	img, err := r.processor.LoadImageSmart(path)
	if err != nil {
		return "", finetune.Report{}, err
	}

	result, err := r.fitter.Fit(img, r.options.Size.Width, r.options.Size.Height)
	if err != nil {
		return "", finetune.Report{}, err
	}

	outPath := utils.MirrorPath(path, outDir)
	if r.options.Output.Format != "" {
		outPath = utils.ReplaceExt(outPath, r.options.Output.Format)
	}

	opts := r.options.Output
	opts.Format = processing.FormatFromPath(outPath)
	if err := r.processor.SaveImage(result.Canvas, outPath, opts); err != nil {
		return "", finetune.Report{}, fmt.Errorf("failed to save %s: %w", outPath, err)
	}

	if r.options.Debug {
		r.saveDebugOverlay(result, outPath, outDir)
	}

	return outPath, result.Report, nil
}

func (r *Resizer) saveDebugOverlay(result finetune.Result, outPath, outDir string) {
	dbgDir := filepath.Join(outDir, "debug")
	if err := utils.EnsureDir(dbgDir); err != nil {
		log.Printf("debug overlay dir failed: %v", err)
		return
	}

	report := result.Report
	dbg := r.processor.CreateDebugOverlay(result.Canvas, report.PlacedRect(), report.Verdict(), report.HasAlpha)
	dbgPath := utils.ReplaceExt(utils.MirrorPath(outPath, dbgDir), "png")
	if err := r.processor.SaveImage(dbg, dbgPath, types.OutputOptions{Format: "png"}); err != nil {
		log.Printf("debug overlay save %s failed: %v", dbgPath, err)
	}
}

func describe(report finetune.Report) string {
	if !report.HasAlpha {
		return "no alpha, white background"
	}
	b := report.Boundary
	switch {
	case b.Degenerate:
		return "uniform alpha, edge extension"
	case b.Verdict == types.Straight:
		return fmt.Sprintf("straight edges (%.3f), edge extension", b.Complexity)
	default:
		return fmt.Sprintf("irregular edges (%.3f), solid background", b.Complexity)
	}
}
