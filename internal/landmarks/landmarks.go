// Package landmarks defines the hand landmark geometry shared by the detector,
// the classifier and the session pipeline.
package landmarks

import (
	"math"
	"sort"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Handedness labels reported by the detector.
const (
	Left  = "Left"
	Right = "Right"
)

// Point3D represents a 3D point in space with x, y, z coordinates.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Hand is one detected hand: 21 landmarks plus handedness and detection score.
type Hand struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness"`
	Score      float64               `json:"score"`
}

// Distance returns the Euclidean distance between two points.
func Distance(a, b Point3D) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Normalize returns a copy of the hand translated so the wrist is at the origin
// and scaled so the wrist to middle-MCP distance is 1.0. A degenerate hand
// (zero scale) is only translated.
func (h *Hand) Normalize() *Hand {
	if h == nil {
		return nil
	}

	normalized := &Hand{
		Handedness: h.Handedness,
		Score:      h.Score,
	}

	wrist := h.Points[Wrist]
	for i := 0; i < NumLandmarks; i++ {
		normalized.Points[i] = Point3D{
			X: h.Points[i].X - wrist.X,
			Y: h.Points[i].Y - wrist.Y,
			Z: h.Points[i].Z - wrist.Z,
		}
	}

	scale := Distance(Point3D{}, normalized.Points[MiddleMCP])
	if scale < 1e-10 {
		return normalized
	}

	for i := 0; i < NumLandmarks; i++ {
		normalized.Points[i].X /= scale
		normalized.Points[i].Y /= scale
		normalized.Points[i].Z /= scale
	}

	return normalized
}

// Mirror flips the hand horizontally in normalized image space (x -> 1-x) and
// swaps its handedness.
func (h Hand) Mirror() Hand {
	m := h
	for i := range m.Points {
		m.Points[i].X = 1 - m.Points[i].X
	}
	switch h.Handedness {
	case Left:
		m.Handedness = Right
	case Right:
		m.Handedness = Left
	}
	return m
}

// Features flattens hands into one normalized point vector. Hands are ordered
// Left before Right (then by wrist x) so the layout does not depend on the
// order the detector reported them in.
func Features(hands []Hand) []Point3D {
	ordered := make([]Hand, len(hands))
	copy(ordered, hands)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Handedness != ordered[j].Handedness {
			return ordered[i].Handedness == Left
		}
		return ordered[i].Points[Wrist].X < ordered[j].Points[Wrist].X
	})

	points := make([]Point3D, 0, len(ordered)*NumLandmarks)
	for i := range ordered {
		n := ordered[i].Normalize()
		points = append(points, n.Points[:]...)
	}
	return points
}
