package types

import (
	"errors"
	"fmt"
	"image"
)

var (
	// ErrDecode is returned when source bytes cannot be read as a pixel grid
	ErrDecode = errors.New("image decode failed")

	// ErrInvalidSize is returned when a target dimension is not positive
	ErrInvalidSize = errors.New("invalid target size")
)

// Size is a canvas size in pixels
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Validate returns ErrInvalidSize unless both dimensions are positive
func (s Size) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, s.Width, s.Height)
	}
	return nil
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Placement is the top-left corner of the scaled image inside the canvas
type Placement struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Rect returns the canvas rectangle covered by an image of the given size
func (p Placement) Rect(w, h int) image.Rectangle {
	return image.Rect(p.X, p.Y, p.X+w, p.Y+h)
}

// Verdict is the boundary classifier's output
type Verdict int

const (
	// Straight boundaries get an edge-extrapolated background
	Straight Verdict = iota
	// Irregular boundaries get a solid background
	Irregular
)

func (v Verdict) String() string {
	switch v {
	case Straight:
		return "straight"
	case Irregular:
		return "irregular"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// MarshalText lets verdicts appear by name in JSON reports
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// OutputOptions controls how canvases are encoded
type OutputOptions struct {
	Format   string
	Quality  int
	Lossless bool
}
