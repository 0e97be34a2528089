// Package edt computes exact Euclidean distance transforms with nearest-point
// indices over boolean grids.
//
// The transform is separable: a column pass finds the nearest marked cell in
// each column, then a row pass takes the lower envelope of the parabolas
// (x-q)^2 + g(q) as described by Felzenszwalb and Huttenlocher, "Distance
// Transforms of Sampled Functions". Both passes are linear in the number of
// cells and independent across columns (resp. rows), so they are split over
// GOMAXPROCS goroutines.
package edt

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Unreachable is the squared distance reported when the grid has no marked cell
const Unreachable = math.MaxInt64

// Result holds, per cell, the squared distance to the nearest marked cell and
// that cell's flat index (y*Width + x). Marked cells are their own nearest.
type Result struct {
	Width   int
	Height  int
	SqDist  []int64
	Nearest []int
}

// Transform runs the distance transform over grid, a row-major width x height
// slice where true marks a target cell.
func Transform(grid []bool, width, height int) *Result {
	n := width * height
	res := &Result{
		Width:   width,
		Height:  height,
		SqDist:  make([]int64, n),
		Nearest: make([]int, n),
	}

	// Column pass: vertical squared distance and the row it was measured to.
	colDist := make([]int64, n)
	colRow := make([]int, n)
	parallel(width, func(lo, hi int) {
		for x := lo; x < hi; x++ {
			columnPass(grid, width, height, x, colDist, colRow)
		}
	})

	parallel(height, func(lo, hi int) {
		v := make([]int, width)
		z := make([]float64, width+1)
		for y := lo; y < hi; y++ {
			rowPass(res, y, colDist, colRow, v, z)
		}
	})

	return res
}

// At returns the coordinates of the marked cell nearest to (x, y). ok is false
// when the grid had no marked cells.
func (r *Result) At(x, y int) (nx, ny int, ok bool) {
	idx := r.Nearest[y*r.Width+x]
	if idx < 0 {
		return 0, 0, false
	}
	return idx % r.Width, idx / r.Width, true
}

// Distance returns the Euclidean distance from (x, y) to its nearest marked cell
func (r *Result) Distance(x, y int) float64 {
	d := r.SqDist[y*r.Width+x]
	if d == Unreachable {
		return math.Inf(1)
	}
	return math.Sqrt(float64(d))
}

func columnPass(grid []bool, width, height, x int, dist []int64, rows []int) {
	last := -1
	for y := 0; y < height; y++ {
		i := y*width + x
		if grid[i] {
			last = y
		}
		if last < 0 {
			dist[i] = Unreachable
			rows[i] = -1
			continue
		}
		d := int64(y - last)
		dist[i] = d * d
		rows[i] = last
	}

	next := -1
	for y := height - 1; y >= 0; y-- {
		i := y*width + x
		if grid[i] {
			next = y
		}
		if next < 0 {
			continue
		}
		d := int64(next - y)
		// Ties keep the cell above.
		if d*d < dist[i] {
			dist[i] = d * d
			rows[i] = next
		}
	}
}

// rowPass computes the lower envelope of the parabolas rooted at every column
// of row y that saw a marked cell, then samples it. v and z are scratch
// buffers of length width and width+1.
func rowPass(res *Result, y int, colDist []int64, colRow []int, v []int, z []float64) {
	width := res.Width
	base := y * width
	f := colDist[base : base+width]

	k := -1
	for q := 0; q < width; q++ {
		if f[q] == Unreachable {
			continue
		}
		if k < 0 {
			k = 0
			v[0] = q
			z[0] = math.Inf(-1)
			z[1] = math.Inf(1)
			continue
		}
		s := intersect(f, q, v[k])
		for s <= z[k] {
			k--
			s = intersect(f, q, v[k])
		}
		k++
		v[k] = q
		z[k] = s
		z[k+1] = math.Inf(1)
	}

	if k < 0 {
		for x := 0; x < width; x++ {
			res.SqDist[base+x] = Unreachable
			res.Nearest[base+x] = -1
		}
		return
	}

	j := 0
	for x := 0; x < width; x++ {
		for z[j+1] < float64(x) {
			j++
		}
		q := v[j]
		dx := int64(x - q)
		res.SqDist[base+x] = dx*dx + f[q]
		res.Nearest[base+x] = colRow[base+q]*width + q
	}
}

// intersect returns the abscissa where the parabola rooted at q overtakes the
// one rooted at p (p < q).
func intersect(f []int64, q, p int) float64 {
	num := float64(f[q]+int64(q)*int64(q)) - float64(f[p]+int64(p)*int64(p))
	return num / float64(2*(q-p))
}

func parallel(n int, fn func(lo, hi int)) {
	if n == 0 {
		return
	}
	workers := min(runtime.GOMAXPROCS(0), n)
	chunk := (n + workers - 1) / workers

	var g errgroup.Group
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		g.Go(func() error {
			fn(lo, hi)
			return nil
		})
	}
	_ = g.Wait()
}
