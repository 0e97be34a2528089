package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/kuailefengnan2024/Finetune"
	"github.com/kuailefengnan2024/Finetune/internal/batch"
	"github.com/kuailefengnan2024/Finetune/internal/config"
	"github.com/kuailefengnan2024/Finetune/internal/logging"
	"github.com/kuailefengnan2024/Finetune/internal/utils"
	"github.com/kuailefengnan2024/Finetune/pkg/analyzer"
	"github.com/kuailefengnan2024/Finetune/pkg/caption"
	"github.com/kuailefengnan2024/Finetune/pkg/client"
	"github.com/kuailefengnan2024/Finetune/pkg/llamacpp"
	"github.com/kuailefengnan2024/Finetune/pkg/ollama"
	"github.com/kuailefengnan2024/Finetune/pkg/processing"
	"github.com/kuailefengnan2024/Finetune/pkg/types"
)

const usage = `usage: %[1]s <command> [flags] [directory]

commands:
  resize    fit every image onto a fixed-size canvas (output in <dir>/Modified)
  rename    rename images to image_001.ext, image_002.ext, ...
  caption   write a <name>.txt caption next to every image
  inspect   print how files, directories or URLs would be fitted, without writing anything
  config    print the effective configuration as JSON

run "%[1]s <command> -h" for the flags of a command
`

func main() {
	prog := filepath.Base(os.Args[0])
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, usage, prog)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "resize":
		err = runResize(ctx, args)
	case "rename":
		err = runRename(args)
	case "caption":
		err = runCaption(ctx, args)
	case "inspect":
		err = runInspect(args)
	case "config":
		err = runConfig(args)
	case "-h", "-help", "--help", "help":
		fmt.Fprintf(os.Stdout, usage, prog)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		fmt.Fprintf(os.Stderr, usage, prog)
		os.Exit(2)
	}

	if err != nil {
		if errors.Is(err, types.ErrInvalidSize) {
			log.Printf("configuration error: %v", err)
			os.Exit(2)
		}
		log.Fatal(err)
	}
}

// common registers the flags shared by every command and returns a loader
// that resolves defaults, config file, environment and flags in that order.
func common(fs *flag.FlagSet) func() (*config.Config, string, error) {
	cfgPath := fs.String("config", "", "JSON config file (default: none)")
	logFile := fs.String("log", "", "also write the log to this file (rotated)")
	exts := fs.String("ext", "", "comma-separated extension allowlist, e.g. .png,.jpg")

	return func() (*config.Config, string, error) {
		cfg, err := config.Load(*cfgPath)
		if err != nil {
			return nil, "", err
		}
		if *logFile != "" {
			cfg.Log.File = *logFile
		}
		if *exts != "" {
			cfg.Batch.Extensions = splitExtensions(*exts)
		}

		dir := "."
		if fs.NArg() > 0 {
			dir = fs.Arg(0)
		}
		return cfg, dir, nil
	}
}

func runResize(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("resize", flag.ExitOnError)
	load := common(fs)
	width := fs.Int("width", 0, "canvas width (default 512)")
	height := fs.Int("height", 0, "canvas height (default 512)")
	out := fs.String("out", "", "output subdirectory name (default Modified)")
	workers := fs.Int("workers", 0, "parallel workers (default: number of CPUs)")
	format := fs.String("format", "", "output format jpg|png|webp|bmp|tiff|gif (default: keep input format)")
	quality := fs.Int("quality", 0, "JPEG/WebP quality 1-100 (default 95)")
	lossless := fs.Bool("lossless", false, "WebP lossless mode")
	debug := fs.Bool("debug", false, "write placement overlays into <out>/debug")
	fs.Parse(args)

	cfg, dir, err := load()
	if err != nil {
		return err
	}
	setInt(&cfg.Canvas.Width, *width, fs, "width")
	setInt(&cfg.Canvas.Height, *height, fs, "height")
	setInt(&cfg.Batch.Workers, *workers, fs, "workers")
	setInt(&cfg.Output.Quality, *quality, fs, "quality")
	if *out != "" {
		cfg.Batch.OutputSubdir = *out
	}
	if *format != "" {
		cfg.Output.Format = strings.ToLower(*format)
	}
	cfg.Output.Lossless = cfg.Output.Lossless || *lossless
	cfg.Batch.Debug = cfg.Batch.Debug || *debug

	size := types.Size{Width: cfg.Canvas.Width, Height: cfg.Canvas.Height}
	if err := size.Validate(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	closer, err := logging.Setup(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	resizer := batch.NewResizer(newFitter(cfg), batch.ResizeOptions{
		Size:         size,
		OutputSubdir: cfg.Batch.OutputSubdir,
		Extensions:   cfg.Batch.Extensions,
		Workers:      cfg.Batch.Workers,
		Output: types.OutputOptions{
			Format:   cfg.Output.Format,
			Quality:  cfg.Output.Quality,
			Lossless: cfg.Output.Lossless,
		},
		Debug: cfg.Batch.Debug,
	})

	log.Printf("resizing images in %s to %s with %d workers", dir, size, cfg.Batch.Workers)
	_, err = resizer.Run(ctx, dir)
	return err
}

func runRename(args []string) error {
	fs := flag.NewFlagSet("rename", flag.ExitOnError)
	load := common(fs)
	prefix := fs.String("prefix", "", "name prefix (default image_)")
	fs.Parse(args)

	cfg, dir, err := load()
	if err != nil {
		return err
	}
	if *prefix != "" {
		cfg.Batch.RenamePrefix = *prefix
	}

	closer, err := logging.Setup(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	_, err = batch.NewRenamer(cfg.Batch.RenamePrefix, cfg.Batch.Extensions).Run(dir)
	return err
}

func runCaption(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("caption", flag.ExitOnError)
	load := common(fs)
	backend := fs.String("backend", "", "vision backend: ollama or llamacpp (default ollama)")
	url := fs.String("url", "", "server URL (defaults: ollama=http://localhost:11434, llamacpp=http://localhost:8080)")
	model := fs.String("model", "", "model name (default llava)")
	sendSize := fs.Int("sendsize", 0, "max long side sent to the model (px), 0=config value")
	overwrite := fs.Bool("overwrite", false, "replace existing .txt captions")
	fs.Parse(args)

	cfg, dir, err := load()
	if err != nil {
		return err
	}
	if *backend != "" {
		cfg.Caption.Backend = *backend
	}
	if *url != "" {
		cfg.Caption.URL = *url
	}
	if *model != "" {
		cfg.Caption.Model = *model
	}
	setInt(&cfg.Caption.SendSize, *sendSize, fs, "sendsize")
	if err := cfg.Validate(); err != nil {
		return err
	}

	closer, err := logging.Setup(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	var visionClient client.VisionClient
	switch cfg.Caption.Backend {
	case "llamacpp":
		visionClient, err = llamacpp.NewClient(cfg.Caption.URL)
	default:
		visionClient, err = ollama.NewClient(cfg.Caption.URL)
	}
	if err != nil {
		return fmt.Errorf("failed to create %s client: %w", cfg.Caption.Backend, err)
	}

	generator := caption.NewGenerator(visionClient, caption.Config{
		Model:    cfg.Caption.Model,
		Prompt:   cfg.Caption.Prompt,
		SendSize: cfg.Caption.SendSize,
		SendQ:    cfg.Caption.SendQ,
	})

	_, err = batch.NewCaptioner(generator, cfg.Batch.Extensions, *overwrite).Run(ctx, dir)
	return err
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	load := common(fs)
	width := fs.Int("width", 0, "canvas width (default 512)")
	height := fs.Int("height", 0, "canvas height (default 512)")
	minSize := fs.Int("minsize", 256, "warn when the shorter side is below this")
	fs.Parse(args)

	cfg, _, err := load()
	if err != nil {
		return err
	}
	setInt(&cfg.Canvas.Width, *width, fs, "width")
	setInt(&cfg.Canvas.Height, *height, fs, "height")
	size := types.Size{Width: cfg.Canvas.Width, Height: cfg.Canvas.Height}
	if err := size.Validate(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	files, err := inspectTargets(fs.Args(), cfg.Batch.Extensions)
	if err != nil {
		return err
	}

	a := analyzer.NewWithConfig(analyzer.Config{MinImageSize: *minSize, Canvas: size}, newFitter(cfg))
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, file := range files {
		analysis, err := a.AnalyzeSource(file)
		if err != nil {
			log.Printf("failed %s: %v", file, err)
			continue
		}
		if err := enc.Encode(analysis); err != nil {
			return err
		}
	}
	return nil
}

// inspectTargets expands directories into their image files. URLs and plain
// files are kept as given; no arguments means the current directory.
func inspectTargets(targets, exts []string) ([]string, error) {
	if len(targets) == 0 {
		targets = []string{"."}
	}
	var sources []string
	for _, target := range targets {
		if processing.IsURL(target) || !utils.DirExists(target) {
			sources = append(sources, target)
			continue
		}
		found, err := utils.ListImageFiles(target, exts)
		if err != nil {
			return nil, err
		}
		sources = append(sources, found...)
	}
	return sources, nil
}

func runConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	load := common(fs)
	save := fs.Bool("save", false, "write the configuration to "+config.GetConfigPath())
	fs.Parse(args)

	cfg, _, err := load()
	if err != nil {
		return err
	}
	if *save {
		if err := cfg.SaveToFile(config.GetConfigPath()); err != nil {
			return err
		}
		log.Printf("wrote %s", config.GetConfigPath())
		return nil
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(data, '\n'))
	return err
}

func newFitter(cfg *config.Config) *finetune.Fitter {
	fitCfg := finetune.DefaultConfig()
	fitCfg.AlphaThreshold = uint8(cfg.Canvas.AlphaThreshold)
	fitCfg.ComplexityThreshold = cfg.Canvas.ComplexityThreshold
	return finetune.NewWithConfig(fitCfg)
}

// setInt applies a flag value only when the flag was given explicitly
func setInt(dst *int, v int, fs *flag.FlagSet, name string) {
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			*dst = v
		}
	})
}

func splitExtensions(s string) []string {
	var exts []string
	for _, e := range strings.Split(s, ",") {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	return exts
}
