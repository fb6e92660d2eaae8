// Package stitch aligns consecutive scroll captures. Given the tail of the
// composite and the next frame it finds how many leading rows of the frame
// repeat the tail, tolerating anti-aliasing and compression noise.
package stitch

import (
	"bytes"
	"image"
	"math"

	"github.com/sourcegraph/conc/iter"
)

// Options tunes the overlap search. The zero value is not useful; start
// from DefaultOptions.
type Options struct {
	// Threshold is the minimum similarity in [0,1] for an overlap to count as
	// a match. Similarity is 1 - mean absolute channel difference / 255.
	Threshold float64
	// MaxSearchRows caps the overlap considered. 0 means the frame height.
	MaxSearchRows int
	// MinOverlapRows is the smallest overlap tried. Very small overlaps match
	// uniform backgrounds too easily.
	MinOverlapRows int
	// Stride samples every Stride-th column.
	Stride int
}

// DefaultOptions returns the standard overlap search settings.
func DefaultOptions() Options {
	return Options{
		Threshold:      0.98,
		MaxSearchRows:  0,
		MinOverlapRows: 4,
		Stride:         2,
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.Threshold <= 0 || o.Threshold > 1 {
		o.Threshold = d.Threshold
	}
	if o.MaxSearchRows < 0 {
		o.MaxSearchRows = 0
	}
	if o.MinOverlapRows < 1 {
		o.MinOverlapRows = 1
	}
	if o.Stride < 1 {
		o.Stride = 1
	}
	return o
}

// Result describes how a frame lines up with the composite tail.
type Result struct {
	// Offset is the number of leading rows of the frame that duplicate the
	// end of the tail. 0 means the whole frame is new content.
	Offset int
	// Confidence is the similarity of the selected overlap. When nothing
	// matched it is the exact similarity of the candidate whose row profile
	// came closest.
	Confidence float64
	// Duplicate is set when every row of the frame overlaps the tail, i.e.
	// the frame adds nothing.
	Duplicate bool
}

// NewRows returns how many rows of a frame of height h are new content.
func (r Result) NewRows(h int) int {
	if r.Duplicate || r.Offset >= h {
		return 0
	}
	return h - r.Offset
}

// DetectOverlap finds the overlap k in [MinOverlapRows, max] whose last k
// tail rows best match the first k rows of next, among candidates scoring at
// least Threshold. Ties go to the larger overlap, so a frame is never credited
// with more new rows than it has. Smooth content such as gradients scores
// above the threshold at neighbouring offsets too, which is why the first
// passing candidate is not enough. Frames of different widths never overlap.
func DetectOverlap(tail, next *image.RGBA, opts Options) Result {
	opts = opts.normalized()
	if tail == nil || next == nil {
		return Result{}
	}
	tb, nb := tail.Bounds(), next.Bounds()
	w := tb.Dx()
	th, nh := tb.Dy(), nb.Dy()
	if w == 0 || w != nb.Dx() || th == 0 || nh == 0 {
		return Result{}
	}

	maxK := min(th, nh)
	if opts.MaxSearchRows > 0 && opts.MaxSearchRows < maxK {
		maxK = opts.MaxSearchRows
	}
	minK := min(opts.MinOverlapRows, maxK)

	tp := rowProfile(tail, opts.Stride)
	np := rowProfile(next, opts.Stride)

	var (
		match     Result
		matched   bool
		closestK  = -1
		closestPS = -1.0
	)
	for k := maxK; k >= minK; k-- {
		// The profile score bounds the pixel score from above, so pruning on
		// it never discards a better match.
		ps := profileSimilarity(tp[th-k:], np[:k])
		if ps > closestPS {
			closestK, closestPS = k, ps
		}
		floor := opts.Threshold
		if matched {
			if ps <= match.Confidence {
				continue
			}
			floor = match.Confidence
		} else if ps < floor {
			continue
		}
		score, ok := pixelSimilarity(tail, th-k, next, k, opts.Stride, floor)
		if !ok || (matched && score <= match.Confidence) {
			continue
		}
		match, matched = Result{Offset: k, Confidence: score, Duplicate: k == nh}, true
		if score == 1 {
			break
		}
	}
	if matched {
		return match
	}
	if closestK < 0 {
		return Result{}
	}
	score, _ := pixelSimilarity(tail, th-closestK, next, closestK, opts.Stride, 0)
	return Result{Confidence: score}
}

// rowProfile returns the mean channel value of every row over the sampled
// columns. Rows are independent and computed in parallel.
func rowProfile(img *image.RGBA, stride int) []float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	samples := float64(((w + stride - 1) / stride) * 3)
	prof := make([]float64, h)
	iter.ForEachIdx(prof, func(y int, v *float64) {
		row := img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):][:w*4]
		var sum int
		for x := 0; x < w; x += stride {
			p := row[x*4:]
			sum += int(p[0]) + int(p[1]) + int(p[2])
		}
		*v = float64(sum) / samples
	})
	return prof
}

func profileSimilarity(a, b []float64) float64 {
	if len(a) == 0 {
		return 0
	}
	var diff float64
	for i := range a {
		diff += math.Abs(a[i] - b[i])
	}
	return 1 - diff/float64(len(a))/255
}

// pixelSimilarity compares rows [tailStart, tailStart+k) of tail with rows
// [0, k) of next over the sampled columns. It stops once the accumulated
// difference pushes the score below floor and then reports false with an
// upper bound of the true score. A floor of 0 always yields the exact score.
func pixelSimilarity(tail *image.RGBA, tailStart int, next *image.RGBA, k, stride int, floor float64) (float64, bool) {
	tb, nb := tail.Bounds(), next.Bounds()
	w := tb.Dx()
	n := float64(k * ((w + stride - 1) / stride) * 3)
	budget := (1 - floor) * 255 * n
	var acc float64
	for y := 0; y < k; y++ {
		a := tail.Pix[tail.PixOffset(tb.Min.X, tb.Min.Y+tailStart+y):][:w*4]
		b := next.Pix[next.PixOffset(nb.Min.X, nb.Min.Y+y):][:w*4]
		var rowDiff int
		for x := 0; x < w; x += stride {
			i := x * 4
			rowDiff += absDiff(a[i], b[i]) + absDiff(a[i+1], b[i+1]) + absDiff(a[i+2], b[i+2])
		}
		acc += float64(rowDiff)
		if acc > budget {
			return 1 - acc/(255*n), false
		}
	}
	return 1 - acc/(255*n), true
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

// Equal reports whether a and b have the same size and identical pixels.
func Equal(a, b *image.RGBA) bool {
	if a == nil || b == nil {
		return a == b
	}
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		return false
	}
	w := ab.Dx() * 4
	for y := 0; y < ab.Dy(); y++ {
		ra := a.Pix[a.PixOffset(ab.Min.X, ab.Min.Y+y):][:w]
		rb := b.Pix[b.PixOffset(bb.Min.X, bb.Min.Y+y):][:w]
		if !bytes.Equal(ra, rb) {
			return false
		}
	}
	return true
}
