package geometry

// Pose landmark indices of the 33-point MediaPipe pose model.
const (
	PoseNose          = 0
	PoseLeftEyeInner  = 1
	PoseLeftEye       = 2
	PoseLeftEyeOuter  = 3
	PoseRightEyeInner = 4
	PoseRightEye      = 5
	PoseRightEyeOuter = 6
	PoseLeftEar       = 7
	PoseRightEar      = 8
	PoseMouthLeft     = 9
	PoseMouthRight    = 10
	PoseLeftShoulder  = 11
	PoseRightShoulder = 12
	PoseLeftElbow     = 13
	PoseRightElbow    = 14
	PoseLeftWrist     = 15
	PoseRightWrist    = 16
	PoseLeftHip       = 23
	PoseRightHip      = 24

	PoseLandmarkCount = 33
)

// FaceLandmarkCount is the size of a MediaPipe face mesh (with irises).
const FaceLandmarkCount = 478

// Eye contour indices into the face mesh, ordered p0..p5 for EAR.
var (
	LeftEyeIndices  = [6]int{33, 160, 158, 133, 153, 144}
	RightEyeIndices = [6]int{362, 385, 387, 263, 373, 380}
)

// EyePoints picks the six contour points for one eye out of a face mesh and
// scales them to pixels. It returns nil when the mesh is too short.
func EyePoints(face []Landmark, indices [6]int, width, height float64) []Point {
	points := make([]Point, 0, len(indices))
	for _, idx := range indices {
		if idx >= len(face) {
			return nil
		}
		points = append(points, face[idx].Scale(width, height))
	}
	return points
}
