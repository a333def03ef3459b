package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer"
	"github.com/Carmen-Shannon/oxy-fx/engine/scene"
	"github.com/Carmen-Shannon/oxy-fx/engine/window"
)

// EngineBuilderOption is a functional option for configuring an Engine.
// Use the With* functions to create options that are applied directly to the engine instance.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables frame statistics output.
//
// Parameters:
//   - enabled: if true, enables profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithBackend sets the backend Init acquires. Defaults to the software renderer.
//
// Parameters:
//   - backend: the backend type
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithBackend(backend renderer.RendererBackendType) EngineBuilderOption {
	return func(e *engine) {
		e.backend = backend
	}
}

// WithRendererOptions adds options applied to every renderer the engine creates.
//
// Parameters:
//   - options: renderer builder options
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRendererOptions(options ...renderer.RendererBuilderOption) EngineBuilderOption {
	return func(e *engine) {
		e.rendererOpts = append(e.rendererOpts, options...)
	}
}

// WithViewport sets the viewport size of a headless engine. A window overrides it.
//
// Parameters:
//   - width, height: the viewport size in pixels
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithViewport(width, height int) EngineBuilderOption {
	return func(e *engine) {
		e.width, e.height = max(width, 1), max(height, 1)
	}
}

// WithWindow sets the window the wgpu backend presents into and Run drives.
//
// Parameters:
//   - w: a pre-configured Window instance
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithScene replaces the default synthetic scene.
//
// Parameters:
//   - s: the scene
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithScene(s scene.SyntheticScene) EngineBuilderOption {
	return func(e *engine) {
		e.scene = s
	}
}

// WithRenderFrameLimit sets an optional render frame rate cap in frames per second.
// Pass 0 to uncap the render loop (default).
//
// Parameters:
//   - fps: maximum render frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			e.renderFrameLimit = 0
			return
		}
		e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
	}
}

// WithTextures registers image files or embedded images that texture parameters can name, such as
// normal maps. They are decoded once and uploaded to every backend the engine installs.
//
// Parameters:
//   - textures: the images, each addressed by its Name
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTextures(textures ...*common.ImportedTexture) EngineBuilderOption {
	return func(e *engine) {
		e.imported = append(e.imported, textures...)
	}
}
