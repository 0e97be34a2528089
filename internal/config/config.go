package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. FINETUNE_CANVAS_WIDTH
const EnvPrefix = "FINETUNE"

// Config holds the application configuration
type Config struct {
	Canvas  CanvasConfig  `json:"canvas"`
	Batch   BatchConfig   `json:"batch"`
	Output  OutputConfig  `json:"output"`
	Caption CaptionConfig `json:"caption"`
	Log     LogConfig     `json:"log"`
}

// CanvasConfig holds the target size and the pipeline thresholds
type CanvasConfig struct {
	Width               int     `json:"width" envconfig:"WIDTH"`
	Height              int     `json:"height" envconfig:"HEIGHT"`
	AlphaThreshold      int     `json:"alpha_threshold" envconfig:"ALPHA_THRESHOLD"`
	ComplexityThreshold float64 `json:"complexity_threshold" envconfig:"COMPLEXITY_THRESHOLD"`
}

// BatchConfig holds configuration for directory processing
type BatchConfig struct {
	OutputSubdir string   `json:"output_subdir" envconfig:"OUTPUT_SUBDIR"`
	Extensions   []string `json:"extensions" envconfig:"EXTENSIONS"`
	Workers      int      `json:"workers" envconfig:"WORKERS"`
	Debug        bool     `json:"debug" envconfig:"DEBUG"`
	RenamePrefix string   `json:"rename_prefix" envconfig:"RENAME_PREFIX"`
}

// OutputConfig holds configuration for canvas encoding
type OutputConfig struct {
	// Format forces an output format; empty keeps each input's extension
	Format   string `json:"format" envconfig:"FORMAT"`
	Quality  int    `json:"quality" envconfig:"QUALITY"`
	Lossless bool   `json:"lossless" envconfig:"LOSSLESS"`
}

// CaptionConfig holds configuration for caption generation
type CaptionConfig struct {
	Backend  string `json:"backend" envconfig:"BACKEND"`
	URL      string `json:"url" envconfig:"URL"`
	Model    string `json:"model" envconfig:"MODEL"`
	Prompt   string `json:"prompt,omitempty" envconfig:"PROMPT"`
	SendSize int    `json:"send_size" envconfig:"SEND_SIZE"`
	SendQ    int    `json:"send_quality" envconfig:"SEND_QUALITY"`
}

// LogConfig holds configuration for the optional rotating log file
type LogConfig struct {
	File       string `json:"file" envconfig:"FILE"`
	MaxSizeMB  int    `json:"max_size_mb" envconfig:"MAX_SIZE_MB"`
	MaxBackups int    `json:"max_backups" envconfig:"MAX_BACKUPS"`
	MaxAgeDays int    `json:"max_age_days" envconfig:"MAX_AGE_DAYS"`
	Compress   bool   `json:"compress" envconfig:"COMPRESS"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Canvas: CanvasConfig{
			Width:               512,
			Height:              512,
			AlphaThreshold:      128,
			ComplexityThreshold: 0.1,
		},
		Batch: BatchConfig{
			OutputSubdir: "Modified",
			Extensions:   []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tiff"},
			Workers:      runtime.NumCPU(),
			RenamePrefix: "image_",
		},
		Output: OutputConfig{
			Quality: 95,
		},
		Caption: CaptionConfig{
			Backend:  "ollama",
			Model:    "llava",
			SendSize: 768,
			SendQ:    85,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 2,
			MaxAgeDays: 28,
			Compress:   true,
		},
	}
}

// Load returns the defaults, overlaid with filename (if not empty) and then
// with FINETUNE_* environment variables.
func Load(filename string) (*Config, error) {
	cfg := Default()
	if filename != "" {
		fileCfg, err := LoadFromFile(filename)
		if err != nil {
			return nil, err
		}
		cfg = fileCfg
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a JSON file. Missing keys keep
// their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides fields that have a matching environment variable set
func (c *Config) ApplyEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}
	return nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Canvas.Width <= 0 || c.Canvas.Height <= 0 {
		return fmt.Errorf("canvas.width and canvas.height must be positive")
	}

	if c.Canvas.AlphaThreshold < 0 || c.Canvas.AlphaThreshold > 255 {
		return fmt.Errorf("canvas.alpha_threshold must be between 0 and 255")
	}

	if c.Canvas.ComplexityThreshold < 0 || c.Canvas.ComplexityThreshold > 1 {
		return fmt.Errorf("canvas.complexity_threshold must be between 0 and 1")
	}

	if len(c.Batch.Extensions) == 0 {
		return fmt.Errorf("batch.extensions cannot be empty")
	}

	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch.workers must be positive")
	}

	if c.Batch.OutputSubdir == "" || strings.ContainsAny(c.Batch.OutputSubdir, `/\`) {
		return fmt.Errorf("batch.output_subdir must be a plain directory name")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	switch strings.ToLower(c.Output.Format) {
	case "", "jpg", "jpeg", "png", "gif", "bmp", "tiff", "webp":
	default:
		return fmt.Errorf("output.format %q is not supported", c.Output.Format)
	}

	switch c.Caption.Backend {
	case "ollama", "llamacpp":
	default:
		return fmt.Errorf("caption.backend must be ollama or llamacpp")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "finetune", "config.json")
}
