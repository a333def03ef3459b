package camera

import (
	"sync"

	"github.com/chewxy/math32"
)

// CameraController supplies the camera position and target each frame.
type CameraController interface {
	// Position returns the controller's world-space camera position.
	Position() [3]float32

	// Target returns the world-space point the camera orbits around.
	Target() [3]float32

	// SetTarget moves the orbit center, keeping radius and angles.
	//
	// Parameters:
	//   - p: the new orbit center
	SetTarget(p [3]float32)

	// Zoom moves the camera toward (positive delta) or away from the target.
	// The radius stays within the configured bounds.
	//
	// Parameters:
	//   - delta: scroll amount, scaled by the zoom speed
	Zoom(delta float32)

	// OrbitLeft rotates the camera around the target by one orbit step.
	OrbitLeft()

	// OrbitRight rotates the camera around the target by one orbit step.
	OrbitRight()

	// Radius returns the current distance between the camera and its target.
	Radius() float32
}

// orbitController is the spherical-coordinate CameraController used by the viewers.
type orbitController struct {
	mu *sync.Mutex

	position [3]float32
	target   [3]float32

	radius    float32
	azimuth   float32
	elevation float32

	minRadius float32
	maxRadius float32

	orbitSpeed float32
	zoomSpeed  float32
}

var _ CameraController = &orbitController{}

// NewOrbitController creates an orbit controller looking at the origin.
//
// Parameters:
//   - options: functional options to configure the controller
//
// Returns:
//   - CameraController: the newly created controller
func NewOrbitController(options ...OrbitControllerOption) CameraController {
	oc := &orbitController{
		mu:         &sync.Mutex{},
		radius:     12.0,
		elevation:  math32.Pi / 12,
		minRadius:  1.0,
		maxRadius:  80.0,
		orbitSpeed: 0.03,
		zoomSpeed:  0.5,
	}
	for _, option := range options {
		option(oc)
	}
	oc.updatePosition()
	return oc
}

// updatePosition recomputes the camera position from spherical coordinates.
// Caller must hold the mutex.
func (oc *orbitController) updatePosition() {
	cosElev, sinElev := math32.Cos(oc.elevation), math32.Sin(oc.elevation)
	cosAzim, sinAzim := math32.Cos(oc.azimuth), math32.Sin(oc.azimuth)

	oc.position[0] = oc.target[0] + oc.radius*cosElev*sinAzim
	oc.position[1] = oc.target[1] + oc.radius*sinElev
	oc.position[2] = oc.target[2] + oc.radius*cosElev*cosAzim
}

func (oc *orbitController) Position() [3]float32 {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	return oc.position
}

func (oc *orbitController) Target() [3]float32 {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	return oc.target
}

func (oc *orbitController) SetTarget(p [3]float32) {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	oc.target = p
	oc.updatePosition()
}

func (oc *orbitController) Zoom(delta float32) {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	oc.radius -= delta * oc.zoomSpeed
	if oc.radius < oc.minRadius {
		oc.radius = oc.minRadius
	}
	if oc.radius > oc.maxRadius {
		oc.radius = oc.maxRadius
	}
	oc.updatePosition()
}

func (oc *orbitController) OrbitLeft() {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	oc.azimuth -= oc.orbitSpeed
	oc.updatePosition()
}

func (oc *orbitController) OrbitRight() {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	oc.azimuth += oc.orbitSpeed
	oc.updatePosition()
}

func (oc *orbitController) Radius() float32 {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	return oc.radius
}

// OrbitControllerOption is a functional option for configuring an orbit controller.
type OrbitControllerOption func(*orbitController)

// WithRadius sets the initial orbit radius (distance from target).
//
// Parameters:
//   - radius: distance from the orbit target
//
// Returns:
//   - OrbitControllerOption: functional option to set the radius
func WithRadius(radius float32) OrbitControllerOption {
	return func(oc *orbitController) {
		oc.radius = radius
	}
}

// WithAzimuth sets the initial horizontal angle around the Y axis.
//
// Parameters:
//   - azimuth: horizontal angle in radians (0 = +Z axis)
//
// Returns:
//   - OrbitControllerOption: functional option to set the azimuth
func WithAzimuth(azimuth float32) OrbitControllerOption {
	return func(oc *orbitController) {
		oc.azimuth = azimuth
	}
}

// WithElevation sets the initial vertical angle from the horizontal plane.
func WithElevation(elevation float32) OrbitControllerOption {
	return func(oc *orbitController) {
		oc.elevation = elevation
	}
}

// WithOrbitTarget sets the initial orbit center.
func WithOrbitTarget(p [3]float32) OrbitControllerOption {
	return func(oc *orbitController) {
		oc.target = p
	}
}
