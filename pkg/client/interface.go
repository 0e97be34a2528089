package client

import "context"

// VisionClient sends an image with a prompt to a vision model and returns the
// model's text answer.
type VisionClient interface {
	Describe(ctx context.Context, model, prompt, imgB64 string) (string, error)
}
