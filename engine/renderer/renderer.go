package renderer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

var (
	// ErrUnsupportedShader is returned when a draw names a shader that is not registered or that
	// needs capabilities the backend lacks.
	ErrUnsupportedShader = errors.New("renderer: unsupported shader")

	// ErrReleasedTexture is returned when a draw, upload or present references a released texture.
	ErrReleasedTexture = errors.New("renderer: texture has been released")

	// ErrReadbackUnsupported is returned by ReadPixels on backends without CPU readback.
	ErrReadbackUnsupported = errors.New("renderer: pixel readback unsupported")
)

// Surface is the display surface a GPU backend presents into. window.Window satisfies it.
type Surface interface {
	SurfaceDescriptor() *wgpu.SurfaceDescriptor
	Width() int
	Height() int
}

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex

	shaderCache map[string]shader.Shader

	backendType RendererBackendType
	backend     RendererBackend

	capabilityMask Capabilities
	inFrame        bool
	presented      Texture

	// Pre-creation config collected from builder options
	surface              Surface
	width, height        int
	workers              int
	forceFallbackAdapter bool
	presentMode          PresentMode
}

// Renderer defines the interface for the rendering system used by the post-processing chain.
//
// The Renderer hides the differences between the GPU APIs behind a small, validated vocabulary:
// textures, registered shaders and fullscreen draws. Every draw is checked here before it reaches
// the backend, so the backends only ever see well-formed commands.
type Renderer interface {
	// BackendType returns the backend this renderer runs on.
	BackendType() RendererBackendType

	// Capabilities returns the backend capabilities, restricted by WithCapabilityMask.
	// The value is fixed for the lifetime of the renderer.
	//
	// Returns:
	//   - Capabilities: the effective capability set
	Capabilities() Capabilities

	// CreateTexture allocates a texture. Float formats require CapFloatTargets.
	//
	// Parameters:
	//   - label: debug label
	//   - width, height: dimensions in pixels, both > 0
	//   - format: the pixel format
	//
	// Returns:
	//   - Texture: the created texture
	//   - error: an error if the format is unsupported or allocation fails
	CreateTexture(label string, width, height int, format common.TextureFormat) (Texture, error)

	// UploadTexture replaces the contents of a texture with CPU data of the same size.
	//
	// Parameters:
	//   - t: the destination texture
	//   - data: the staged pixels, any format; converted to the texture format
	//
	// Returns:
	//   - error: an error if the data does not match the texture or the texture is released
	UploadTexture(t Texture, data common.TextureStagingData) error

	// RegisterShaders registers shaders by key. Shaders needing capabilities the backend lacks are
	// skipped; drawing them later fails with ErrUnsupportedShader. Already registered keys are skipped.
	//
	// Parameters:
	//   - shaders: the shaders to register
	//
	// Returns:
	//   - error: an error if the backend fails to prepare a supported shader
	RegisterShaders(shaders ...shader.Shader) error

	// Shader returns a registered shader, or nil.
	Shader(key string) shader.Shader

	// Supports reports whether a shader can run on this renderer.
	Supports(s shader.Shader) bool

	// BeginFrame starts a frame. Must be paired with EndFrame.
	//
	// Returns:
	//   - error: an error if a frame is already open or the backend fails
	BeginFrame() error

	// Draw validates and records one fullscreen draw or compute dispatch within the current frame.
	//
	// Parameters:
	//   - cmd: the draw command
	//
	// Returns:
	//   - error: ErrUnsupportedShader, ErrReleasedTexture, or a validation error
	Draw(cmd DrawCommand) error

	// EndFrame submits the frame.
	EndFrame() error

	// Present shows a texture on the display surface and records it as the presented texture.
	// Must be called outside of a frame.
	//
	// Parameters:
	//   - t: the texture to show
	//
	// Returns:
	//   - error: an error if t is nil or released
	Present(t Texture) error

	// Presented returns the texture passed to the last successful Present, or nil.
	Presented() Texture

	// ReadPixels returns the RGBA float contents of a texture.
	//
	// Returns:
	//   - []float32: 4 values per pixel, row-major
	//   - error: ErrReadbackUnsupported on backends without readback
	ReadPixels(t Texture) ([]float32, error)

	// Resize configures the underlying backend to handle a new surface size.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	Resize(width, height int)

	// Release frees every backend resource. Textures created by the renderer must not be used afterwards.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a new Renderer with the specified backend type. GPU device acquisition happens
// here, so callers that must not block should run it off the frame loop.
//
// Parameters:
//   - backendType: the type of rendering backend to use
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: a new instance of Renderer configured with the specified backend and options
//   - error: an error if the backend could not be created
func NewRenderer(backendType RendererBackendType, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		mu:             &sync.Mutex{},
		shaderCache:    make(map[string]shader.Shader),
		backendType:    backendType,
		capabilityMask: CapAll,
		width:          1280,
		height:         720,
		presentMode:    PresentModeVSync,
	}

	// Apply options first so config flags (e.g. forceFallbackAdapter) are
	// available before the backend requests a GPU adapter.
	for _, opt := range options {
		opt(r)
	}
	if r.surface != nil {
		r.width, r.height = r.surface.Width(), r.surface.Height()
	}

	var err error
	switch backendType {
	case BackendTypeWGPU:
		var desc *wgpu.SurfaceDescriptor
		if r.surface != nil {
			desc = r.surface.SurfaceDescriptor()
		}
		r.backend, err = newWGPURendererBackend(desc, r.forceFallbackAdapter, r.presentMode)
	case BackendTypeEbiten:
		r.backend = newEbitenRendererBackend()
	case BackendTypeSoftware:
		r.backend = newSoftwareRendererBackend(r.workers)
	default:
		return nil, fmt.Errorf("unknown renderer backend %d", int(backendType))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s renderer backend: %w", backendType, err)
	}

	r.backend.ConfigureSurface(r.width, r.height)
	common.Logger().Info("renderer created",
		"backend", backendType.String(),
		"capabilities", r.Capabilities().String(),
	)
	return r, nil
}

func (r *renderer) BackendType() RendererBackendType {
	return r.backendType
}

func (r *renderer) Capabilities() Capabilities {
	return r.backend.Capabilities() & r.capabilityMask
}

func (r *renderer) CreateTexture(label string, width, height int, format common.TextureFormat) (Texture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("texture %q has invalid size %dx%d", label, width, height)
	}
	if format.Float() && !r.Capabilities().Has(CapFloatTargets) {
		return nil, fmt.Errorf("texture %q: format %s needs float target support", label, format)
	}
	return r.backend.CreateTexture(label, width, height, format)
}

func (r *renderer) UploadTexture(t Texture, data common.TextureStagingData) error {
	if t == nil {
		return errors.New("upload to nil texture")
	}
	if t.Released() {
		return fmt.Errorf("upload to %q: %w", t.Label(), ErrReleasedTexture)
	}
	if err := checkStaging(t, data); err != nil {
		return err
	}
	return r.backend.UploadTexture(t, data)
}

func (r *renderer) RegisterShaders(shaders ...shader.Shader) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range shaders {
		key := s.Key()
		if _, exists := r.shaderCache[key]; exists {
			continue
		}
		if !r.Capabilities().Has(ShaderRequirements(s)) {
			common.Logger().Debug("shader skipped", "shader", key, "requires", ShaderRequirements(s).String())
			continue
		}
		if err := r.backend.RegisterShader(s); err != nil {
			return fmt.Errorf("failed to register shader %q: %w", key, err)
		}
		r.shaderCache[key] = s
	}
	return nil
}

func (r *renderer) Shader(key string) shader.Shader {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shaderCache[key]
}

func (r *renderer) Supports(s shader.Shader) bool {
	return r.Capabilities().Has(ShaderRequirements(s))
}

func (r *renderer) BeginFrame() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFrame {
		return errors.New("frame already in progress")
	}
	if err := r.backend.BeginFrame(); err != nil {
		return err
	}
	r.inFrame = true
	return nil
}

func (r *renderer) Draw(cmd DrawCommand) error {
	r.mu.Lock()
	s, exists := r.shaderCache[cmd.Shader]
	inFrame := r.inFrame
	r.mu.Unlock()

	if !inFrame {
		return fmt.Errorf("draw %q outside of a frame", cmd.Shader)
	}
	if !exists {
		return fmt.Errorf("shader %q: %w", cmd.Shader, ErrUnsupportedShader)
	}
	if len(cmd.Outputs) != s.Outputs() {
		return fmt.Errorf("shader %q writes %d outputs, got %d", cmd.Shader, s.Outputs(), len(cmd.Outputs))
	}
	if len(cmd.Inputs) > len(s.Inputs()) {
		return fmt.Errorf("shader %q takes %d inputs, got %d", cmd.Shader, len(s.Inputs()), len(cmd.Inputs))
	}
	for i, out := range cmd.Outputs {
		if out == nil {
			return fmt.Errorf("shader %q output %d is nil", cmd.Shader, i)
		}
		if out.Released() {
			return fmt.Errorf("shader %q output %q: %w", cmd.Shader, out.Label(), ErrReleasedTexture)
		}
		if out.Width() != cmd.Outputs[0].Width() || out.Height() != cmd.Outputs[0].Height() {
			return fmt.Errorf("shader %q outputs differ in size", cmd.Shader)
		}
		for _, in := range cmd.Inputs {
			if in == out {
				return fmt.Errorf("shader %q reads and writes %q", cmd.Shader, out.Label())
			}
		}
	}
	if s.ShaderType() == shader.ShaderTypeCompute && cmd.Outputs[0].Format() != s.StorageFormat() {
		return fmt.Errorf("shader %q writes %s storage, output %q is %s", cmd.Shader, s.StorageFormat(), cmd.Outputs[0].Label(), cmd.Outputs[0].Format())
	}
	for _, in := range cmd.Inputs {
		if in != nil && in.Released() {
			return fmt.Errorf("shader %q input %q: %w", cmd.Shader, in.Label(), ErrReleasedTexture)
		}
	}

	inputs := make([]Texture, len(s.Inputs()))
	copy(inputs, cmd.Inputs)
	cmd.Inputs = inputs
	return r.backend.Draw(s, cmd)
}

func (r *renderer) EndFrame() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.inFrame {
		return errors.New("no frame in progress")
	}
	r.inFrame = false
	return r.backend.EndFrame()
}

func (r *renderer) Present(t Texture) error {
	if t == nil {
		return errors.New("present nil texture")
	}
	if t.Released() {
		return fmt.Errorf("present %q: %w", t.Label(), ErrReleasedTexture)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFrame {
		return errors.New("present inside a frame")
	}
	if err := r.backend.Present(t); err != nil {
		return err
	}
	r.presented = t
	return nil
}

func (r *renderer) Presented() Texture {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presented
}

func (r *renderer) ReadPixels(t Texture) ([]float32, error) {
	if t == nil || t.Released() {
		return nil, ErrReleasedTexture
	}
	return r.backend.ReadPixels(t)
}

func (r *renderer) Resize(width, height int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.width, r.height = width, height
	r.backend.ConfigureSurface(width, height)
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shaderCache = make(map[string]shader.Shader)
	r.presented = nil
	r.backend.Release()
}
