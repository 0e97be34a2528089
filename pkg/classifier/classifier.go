// Package classifier decides whether the boundary between the opaque and
// transparent parts of an image is made of straight runs or is irregular.
//
// The boundary walk is an approximation: edge pixels are visited in row-major
// order instead of being traced as connected contours. Images with several
// disjoint blobs can therefore be misclassified. The ordering, the
// 8-direction discretisation and the threshold are kept exactly as they are so
// that results stay reproducible across datasets.
package classifier

import (
	"image"

	"github.com/kuailefengnan2024/Finetune/pkg/mask"
	"github.com/kuailefengnan2024/Finetune/pkg/types"
)

// DefaultComplexityThreshold separates straight from irregular boundaries
const DefaultComplexityThreshold = 0.1

// Classifier scores the complexity of a mask boundary
type Classifier struct {
	config Config
}

// Config holds configuration for boundary classification
type Config struct {
	// ComplexityThreshold is the direction-change ratio at and above which a
	// boundary is irregular.
	ComplexityThreshold float64
}

// Report describes how a verdict was reached
type Report struct {
	EdgePixels       int           `json:"edge_pixels"`
	DirectionChanges int           `json:"direction_changes"`
	Complexity       float64       `json:"complexity"`
	Degenerate       bool          `json:"degenerate"`
	Verdict          types.Verdict `json:"verdict"`
}

// New creates a Classifier with the default threshold
func New() *Classifier {
	return &Classifier{config: Config{ComplexityThreshold: DefaultComplexityThreshold}}
}

// NewWithConfig creates a Classifier with a custom threshold
func NewWithConfig(config Config) *Classifier {
	return &Classifier{config: config}
}

// Classify returns the verdict for m
func (c *Classifier) Classify(m *mask.Mask) types.Verdict {
	return c.Analyze(m).Verdict
}

// Analyze classifies m and returns the intermediate measurements
func (c *Classifier) Analyze(m *mask.Mask) Report {
	// Uniform masks have no boundary and extrapolate trivially.
	if m.All() || m.None() {
		return Report{Degenerate: true, Verdict: types.Straight}
	}

	edges := EdgePixels(m)
	if len(edges) == 0 {
		return Report{Verdict: types.Straight}
	}

	changes := DirectionChanges(edges)
	complexity := float64(changes) / float64(len(edges))

	verdict := types.Irregular
	if complexity < c.config.ComplexityThreshold {
		verdict = types.Straight
	}

	return Report{
		EdgePixels:       len(edges),
		DirectionChanges: changes,
		Complexity:       complexity,
		Verdict:          verdict,
	}
}

// EdgePixels returns, in row-major order, every foreground pixel with at least
// one background 4-neighbour. Pixels in the outermost rows and columns are
// skipped because part of their neighbourhood lies outside the grid.
func EdgePixels(m *mask.Mask) []image.Point {
	var edges []image.Point
	for y := 1; y < m.Height-1; y++ {
		for x := 1; x < m.Width-1; x++ {
			if !m.At(x, y) {
				continue
			}
			if !m.At(x, y-1) || !m.At(x, y+1) || !m.At(x-1, y) || !m.At(x+1, y) {
				edges = append(edges, image.Point{X: x, Y: y})
			}
		}
	}
	return edges
}

// DirectionChanges walks consecutive points and counts how often the
// compass direction (sign of the row delta, sign of the column delta) differs
// from the previous step.
func DirectionChanges(points []image.Point) int {
	changes := 0
	var prev image.Point
	for i := 1; i < len(points); i++ {
		dir := image.Point{
			X: sign(points[i].X - points[i-1].X),
			Y: sign(points[i].Y - points[i-1].Y),
		}
		if i > 1 && dir != prev {
			changes++
		}
		prev = dir
	}
	return changes
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
