package scene

import "github.com/Carmen-Shannon/oxy-fx/engine/camera"

// SyntheticSceneBuilderOption is a functional option for configuring a SyntheticScene.
type SyntheticSceneBuilderOption func(s *syntheticScene)

// WithCamera replaces the default scene camera.
//
// Parameters:
//   - cam: the camera
//
// Returns:
//   - SyntheticSceneBuilderOption: option function to apply
func WithCamera(cam camera.Camera) SyntheticSceneBuilderOption {
	return func(s *syntheticScene) {
		s.cam = cam
	}
}

// WithSelected sets whether the selected sphere is written to the mask. Defaults to true.
func WithSelected(selected bool) SyntheticSceneBuilderOption {
	return func(s *syntheticScene) {
		s.masked = selected
	}
}

// WithWorkers sets the number of worker goroutines tracing rows. Defaults to runtime.NumCPU()-1.
//
// Parameters:
//   - n: the number of workers (minimum 1)
//
// Returns:
//   - SyntheticSceneBuilderOption: option function to apply
func WithWorkers(n int) SyntheticSceneBuilderOption {
	return func(s *syntheticScene) {
		s.workers = max(n, 1)
	}
}

// WithNormalMapSize sets the edge length of the generated normal maps. Defaults to 128.
func WithNormalMapSize(n int) SyntheticSceneBuilderOption {
	return func(s *syntheticScene) {
		s.normalMapSize = max(n, 1)
	}
}
