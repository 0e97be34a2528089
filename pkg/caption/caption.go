package caption

import (
	"context"
	"fmt"
	"image"
	"regexp"
	"strings"

	"github.com/kuailefengnan2024/Finetune/pkg/client"
	"github.com/kuailefengnan2024/Finetune/pkg/processing"
)

// DefaultPrompt asks for a single caption line suitable for a training sidecar
const DefaultPrompt = `Write one caption for this image.

RULES
- One plain sentence, at most 40 words.
- Describe the main subject, its appearance, pose and the background.
- No markdown, no quotes, no preamble such as "The image shows".
- Do not guess real identities.`

// Config holds options for caption generation
type Config struct {
	Model    string
	Prompt   string
	SendSize int // max long side sent to the model, 0 = original
	SendQ    int // JPEG quality of the image sent to the model
}

// DefaultConfig returns the caption defaults
func DefaultConfig() Config {
	return Config{
		Model:    "llava",
		Prompt:   DefaultPrompt,
		SendSize: 768,
		SendQ:    85,
	}
}

// Generator produces captions for images using a vision client
type Generator struct {
	client    client.VisionClient
	processor *processing.Processor
	config    Config
}

// NewGenerator creates a caption generator
func NewGenerator(c client.VisionClient, config Config) *Generator {
	if config.Prompt == "" {
		config.Prompt = DefaultPrompt
	}
	if config.SendQ <= 0 {
		config.SendQ = 85
	}
	return &Generator{
		client:    c,
		processor: processing.NewProcessor(),
		config:    config,
	}
}

// Caption returns a single-line caption for img
func (g *Generator) Caption(ctx context.Context, img image.Image) (string, error) {
	imgB64, err := g.processor.PrepareImageForModel(img, "jpg", g.config.SendSize, g.config.SendQ)
	if err != nil {
		return "", fmt.Errorf("failed to prepare image: %w", err)
	}

	raw, err := g.client.Describe(ctx, g.config.Model, g.config.Prompt, imgB64)
	if err != nil {
		return "", err
	}

	text := Normalize(raw)
	if text == "" {
		return "", fmt.Errorf("model returned an empty caption")
	}
	return text, nil
}

var (
	reWhitespace = regexp.MustCompile(`\s+`)
	rePreamble   = regexp.MustCompile(`(?i)^(caption|description)\s*:\s*`)
)

// Normalize strips code fences, quotes and labels from a model answer and
// collapses it onto one line.
func Normalize(raw string) string {
	text := strings.TrimSpace(raw)

	if strings.HasPrefix(text, "```") {
		if i := strings.Index(text, "\n"); i >= 0 {
			text = text[i+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
		if j := strings.LastIndex(text, "```"); j >= 0 {
			text = text[:j]
		}
	}

	text = reWhitespace.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	text = rePreamble.ReplaceAllString(text, "")
	text = strings.Trim(text, "\"'`“”")
	return strings.TrimSpace(text)
}
