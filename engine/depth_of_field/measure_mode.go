package depth_of_field

import (
	"fmt"

	"github.com/chewxy/math32"
)

// MeasureMode selects how the focal distance is measured. The values are the uniform encoding the
// focus shader reads.
type MeasureMode float32

const (
	// AutoCenterDistance focuses on the linear depth at the screen center.
	AutoCenterDistance MeasureMode = 0
	// AutoBoneDistance focuses on the target point, which follows the tracked bone.
	AutoBoneDistance MeasureMode = 0.25
	// FixedDistance focuses at the focal distance parameter.
	FixedDistance MeasureMode = 0.5
	// CameraToBoneDistance focuses on the tracked bone, measured every frame.
	CameraToBoneDistance MeasureMode = 1
)

// MeasureModes lists every mode in encoding order.
var MeasureModes = []MeasureMode{AutoCenterDistance, AutoBoneDistance, FixedDistance, CameraToBoneDistance}

// String returns the display label of the mode.
func (m MeasureMode) String() string {
	switch m {
	case AutoCenterDistance:
		return "Auto center distance"
	case AutoBoneDistance:
		return "Auto bone distance"
	case FixedDistance:
		return "Fix distance"
	case CameraToBoneDistance:
		return "Camera-to-Bone distance"
	default:
		return fmt.Sprintf("MeasureMode(%g)", float32(m))
	}
}

// ParseMeasureMode resolves a display label to its mode.
//
// Parameters:
//   - label: a label as returned by String
//
// Returns:
//   - MeasureMode: the mode
//   - error: an error if the label is unknown
func ParseMeasureMode(label string) (MeasureMode, error) {
	for _, m := range MeasureModes {
		if m.String() == label {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown measure mode %q", label)
}

// NearestMeasureMode snaps an encoded value to the closest mode.
func NearestMeasureMode(v float32) MeasureMode {
	best := AutoCenterDistance
	for _, m := range MeasureModes[1:] {
		if math32.Abs(v-float32(m)) < math32.Abs(v-float32(best)) {
			best = m
		}
	}
	return best
}

// tracksBone reports whether the mode measures towards the tracked bone.
func (m MeasureMode) tracksBone() bool {
	return m == AutoBoneDistance || m == CameraToBoneDistance
}
