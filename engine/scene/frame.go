package scene

import (
	"github.com/Carmen-Shannon/oxy-fx/engine/camera"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer"
)

// Frame is the scene data handed to the effect chain each frame.
type Frame struct {
	// Camera is the camera the scene was rendered with.
	Camera camera.Camera

	// Bone is the world position of the tracked skeletal joint, or nil when no joint is tracked.
	Bone *[3]float32

	// Color is the rendered scene color.
	Color renderer.Texture

	// Depth holds the non-linear [0,1] depth buffer value in its red channel.
	Depth renderer.Texture

	// Mask holds the selection mask in its red channel, or nil when nothing is selected.
	Mask renderer.Texture
}

// Complete reports whether the frame carries the camera and both scene buffers.
func (f Frame) Complete() bool {
	return f.Camera != nil && f.Color != nil && f.Depth != nil
}
