package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

const (
	blurSize      = 21
	diffThreshold = 25
)

// MotionGate decides whether a frame changed enough since the previous one
// that landmarks must be detected again. A still frame may reuse the last
// detection, but at most maxStill times in a row.
type MotionGate struct {
	threshold float64
	maxStill  int
	still     int
	prevGray  gocv.Mat
	hasPrev   bool
	mu        sync.Mutex
}

// NewMotionGate creates a gate. threshold is the percentage of pixels that
// must change; zero or less makes every frame count as changed.
func NewMotionGate(threshold float64, maxStill int) *MotionGate {
	return &MotionGate{
		threshold: threshold,
		maxStill:  maxStill,
		prevGray:  gocv.NewMat(),
	}
}

// Changed reports whether frame must be detected again, along with the
// percentage of pixels that changed.
func (g *MotionGate) Changed(frame *gocv.Mat) (bool, float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.threshold <= 0 || frame == nil || frame.Empty() {
		return true, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: blurSize, Y: blurSize}, 0, 0, gocv.BorderDefault)

	if !g.hasPrev {
		blurred.CopyTo(&g.prevGray)
		g.hasPrev = true
		g.still = 0
		return true, 100
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, g.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, diffThreshold, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(thresh)) / float64(thresh.Rows()*thresh.Cols()) * 100.0
	blurred.CopyTo(&g.prevGray)

	if changed > g.threshold || g.still >= g.maxStill {
		g.still = 0
		return true, changed
	}
	g.still++
	return false, changed
}

// Reset forgets the previous frame so the next one is always detected.
func (g *MotionGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.release()
}

// Close releases the stored frame.
func (g *MotionGate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.release()
}

func (g *MotionGate) release() {
	if !g.prevGray.Empty() {
		g.prevGray.Close()
		g.prevGray = gocv.NewMat()
	}
	g.hasPrev = false
	g.still = 0
}
