package renderer

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithSurface sets the display surface the wgpu backend presents into. Without a surface the wgpu
// backend runs headless. The surface size becomes the initial size.
//
// Parameters:
//   - s: the surface, typically a window.Window
//
// Returns:
//   - RendererBuilderOption: a function that applies the surface option to a renderer
func WithSurface(s Surface) RendererBuilderOption {
	return func(r *renderer) {
		r.surface = s
	}
}

// WithSize sets the initial surface size for renderers without a window.
//
// Parameters:
//   - width, height: the size in pixels
//
// Returns:
//   - RendererBuilderOption: a function that applies the size option to a renderer
func WithSize(width, height int) RendererBuilderOption {
	return func(r *renderer) {
		r.width, r.height = width, height
	}
}

// WithCapabilityMask restricts the capabilities reported by the backend. Masking a wgpu renderer
// with CapNone makes it behave like a raster-only backend.
//
// Parameters:
//   - mask: the capabilities to keep
//
// Returns:
//   - RendererBuilderOption: a function that applies the mask to a renderer
func WithCapabilityMask(mask Capabilities) RendererBuilderOption {
	return func(r *renderer) {
		r.capabilityMask = mask
	}
}

// WithWorkers sets the number of worker goroutines of the software backend.
// Defaults to the number of CPUs.
//
// Parameters:
//   - n: the worker count
//
// Returns:
//   - RendererBuilderOption: a function that applies the worker option to a renderer
func WithWorkers(n int) RendererBuilderOption {
	return func(r *renderer) {
		r.workers = n
	}
}

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode option to a renderer
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(r *renderer) {
		r.presentMode = mode
	}
}

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe).
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - RendererBuilderOption: a function that applies the force software renderer option to a renderer
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallbackAdapter = force
	}
}
