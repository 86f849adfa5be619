package detector

import (
	"time"

	"github.com/sweeney/posture-coach/internal/camera"
	"github.com/sweeney/posture-coach/internal/geometry"
)

func testTime(sec int) time.Time {
	return time.Date(2026, 3, 2, 9, 0, sec, 0, time.UTC)
}

func testFrame() camera.Frame {
	return camera.Frame{Seq: 1, Width: 640, Height: 480, Data: []byte{1, 2, 3}}
}

func testPose(y float64) []geometry.Landmark {
	return []geometry.Landmark{
		{X: 0.4, Y: y, Visibility: 0.9},
		{X: 0.6, Y: y, Visibility: 0.8},
	}
}
