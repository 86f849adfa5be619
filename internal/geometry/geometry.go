// Package geometry holds the pure math used to turn landmark coordinates into
// posture and eye measurements. Nothing in here keeps state.
package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Point is a 2D coordinate in pixels.
type Point struct {
	X float64
	Y float64
}

// Landmark is a single detector output point. X and Y are normalized to
// [0,1] of the frame; Visibility is the detector confidence (0 when the
// detector does not report one).
type Landmark struct {
	X          float64 `msgpack:"x" json:"x"`
	Y          float64 `msgpack:"y" json:"y"`
	Visibility float64 `msgpack:"v" json:"v"`
}

// Scale converts a normalized landmark to pixel coordinates.
func (l Landmark) Scale(width, height float64) Point {
	return Point{X: l.X * width, Y: l.Y * height}
}

// Angle returns the angle ABC in degrees, with B as the vertex.
// A zero-length arm yields 0.
func Angle(a, b, c Point) float64 {
	baX, baY := a.X-b.X, a.Y-b.Y
	bcX, bcY := c.X-b.X, c.Y-b.Y

	magBA := math.Hypot(baX, baY)
	magBC := math.Hypot(bcX, bcY)
	if magBA == 0 || magBC == 0 {
		return 0
	}

	cosine := Clamp((baX*bcX+baY*bcY)/(magBA*magBC), -1, 1)
	return math.Acos(cosine) * 180 / math.Pi
}

// EAR computes the eye aspect ratio from six ordered eye-contour points:
// (|p1-p5| + |p2-p4|) / (2|p0-p3|). Anything other than six points, or a
// degenerate horizontal span, yields 0.
func EAR(points []Point) float64 {
	if len(points) != 6 {
		return 0
	}
	horizontal := Distance(points[0], points[3])
	if horizontal == 0 {
		return 0
	}
	return (Distance(points[1], points[5]) + Distance(points[2], points[4])) / (2 * horizontal)
}

// Distance is the Euclidean distance between two points.
func Distance(p1, p2 Point) float64 {
	return math.Hypot(p1.X-p2.X, p1.Y-p2.Y)
}

// Midpoint returns the point halfway between a and b.
func Midpoint(a, b Point) Point {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

// DegreesFromSlope returns atan2(dy, dx) in degrees.
func DegreesFromSlope(dy, dx float64) float64 {
	return math.Atan2(dy, dx) * 180 / math.Pi
}

// Round1 rounds to one decimal place, the precision used for display metrics.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// Finite reports whether every value is neither NaN nor infinite.
func Finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// FormatDuration renders whole seconds as mm:ss. Minutes are not wrapped at 60.
func FormatDuration(totalSeconds float64) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	minutes := int(totalSeconds) / 60
	seconds := int(totalSeconds) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
