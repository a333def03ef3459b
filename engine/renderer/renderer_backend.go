package renderer

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/shader"
)

// RendererBackendType identifies the GPU backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based rendering backend. It supports compute shaders,
	// multiple render targets and floating point targets.
	BackendTypeWGPU RendererBackendType = iota

	// BackendTypeEbiten selects the raster-only backend built on Ebitengine and Kage shaders.
	// It renders single 8-bit targets and has no compute support.
	BackendTypeEbiten

	// BackendTypeSoftware selects the CPU backend. Shaders run as Go kernels on a worker pool.
	// It needs no GPU and is used headless and in tests.
	BackendTypeSoftware
)

// String returns the backend name.
func (t RendererBackendType) String() string {
	switch t {
	case BackendTypeWGPU:
		return "wgpu"
	case BackendTypeEbiten:
		return "ebiten"
	case BackendTypeSoftware:
		return "software"
	default:
		return fmt.Sprintf("RendererBackendType(%d)", int(t))
	}
}

// ParseBackendType resolves a backend name as printed by String.
//
// Parameters:
//   - name: the backend name
//
// Returns:
//   - RendererBackendType: the backend type
//   - error: an error if the name is unknown
func ParseBackendType(name string) (RendererBackendType, error) {
	for _, t := range []RendererBackendType{BackendTypeWGPU, BackendTypeEbiten, BackendTypeSoftware} {
		if strings.EqualFold(name, t.String()) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown renderer backend %q", name)
}

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// Capabilities is the set of pipeline features a backend can execute.
type Capabilities uint32

const (
	// CapCompute indicates support for compute shaders writing storage textures.
	CapCompute Capabilities = 1 << iota

	// CapMultipleRenderTargets indicates support for fragment shaders writing more than one attachment.
	CapMultipleRenderTargets

	// CapFloatTargets indicates support for rendering into floating point textures.
	CapFloatTargets

	// CapNone is the empty capability set of a raster-only 8-bit backend.
	CapNone Capabilities = 0

	// CapAll is every capability.
	CapAll = CapCompute | CapMultipleRenderTargets | CapFloatTargets
)

// Has reports whether every capability in o is present.
func (c Capabilities) Has(o Capabilities) bool {
	return c&o == o
}

// String lists the capabilities, e.g. "compute|mrt|float", or "none".
func (c Capabilities) String() string {
	if c == CapNone {
		return "none"
	}
	var parts []string
	if c.Has(CapCompute) {
		parts = append(parts, "compute")
	}
	if c.Has(CapMultipleRenderTargets) {
		parts = append(parts, "mrt")
	}
	if c.Has(CapFloatTargets) {
		parts = append(parts, "float")
	}
	return strings.Join(parts, "|")
}

// ShaderRequirements returns the capabilities needed to run a shader.
//
// Parameters:
//   - s: the shader
//
// Returns:
//   - Capabilities: the required capabilities
func ShaderRequirements(s shader.Shader) Capabilities {
	var c Capabilities
	if s.ShaderType() == shader.ShaderTypeCompute {
		c |= CapCompute
	}
	if s.Outputs() > 1 {
		c |= CapMultipleRenderTargets
	}
	return c
}

// Texture is a backend owned image used as a render target or shader input.
type Texture interface {
	// Label returns the debug label of the texture.
	Label() string

	// Width returns the width in pixels.
	Width() int

	// Height returns the height in pixels.
	Height() int

	// Format returns the pixel format.
	Format() common.TextureFormat

	// Released reports whether Release has been called.
	Released() bool

	// Release frees the backend resources. Calling Release more than once is a no-op.
	Release()
}

// DrawCommand describes one fullscreen draw or compute dispatch.
type DrawCommand struct {
	// Shader is the key of a registered shader.
	Shader string

	// Inputs are bound in the shader's input order. A nil entry binds a 1x1 black texture;
	// missing trailing entries are treated as nil.
	Inputs []Texture

	// Outputs receive the shader's color outputs. All outputs must share one size.
	Outputs []Texture

	// Uniforms are the uniform values keyed by name.
	Uniforms map[string][]float32
}

// RendererBackend is the interface each GPU API implements for the Renderer. The Renderer validates
// every call before it reaches the backend.
type RendererBackend interface {
	// Capabilities returns the native capabilities of the backend.
	Capabilities() Capabilities

	// CreateTexture allocates a texture usable as a render target and shader input.
	//
	// Parameters:
	//   - label: debug label
	//   - width, height: dimensions in pixels, both > 0
	//   - format: the pixel format, supported by the backend
	//
	// Returns:
	//   - Texture: the created texture
	//   - error: an error if allocation fails
	CreateTexture(label string, width, height int, format common.TextureFormat) (Texture, error)

	// UploadTexture replaces the contents of a texture with CPU data of the same size.
	UploadTexture(t Texture, data common.TextureStagingData) error

	// RegisterShader prepares a shader for drawing.
	RegisterShader(s shader.Shader) error

	// BeginFrame starts recording a frame.
	BeginFrame() error

	// Draw records or executes a validated draw command.
	Draw(s shader.Shader, cmd DrawCommand) error

	// EndFrame submits the recorded frame.
	EndFrame() error

	// Present shows a texture on the backend's display surface, if it has one.
	Present(t Texture) error

	// ReadPixels returns the RGBA float contents of a texture, 4 values per pixel row-major.
	ReadPixels(t Texture) ([]float32, error)

	// ConfigureSurface is called when the display surface size changes.
	ConfigureSurface(width, height int)

	// Release frees every backend resource.
	Release()
}

// textureInfo carries the backend independent state shared by every backend texture type.
type textureInfo struct {
	label         string
	width, height int
	format        common.TextureFormat
	released      atomic.Bool
}

func (t *textureInfo) Label() string {
	return t.label
}

func (t *textureInfo) Width() int {
	return t.width
}

func (t *textureInfo) Height() int {
	return t.height
}

func (t *textureInfo) Format() common.TextureFormat {
	return t.format
}

func (t *textureInfo) Released() bool {
	return t.released.Load()
}

// markReleased flips the released flag and reports whether this call did it.
func (t *textureInfo) markReleased() bool {
	return t.released.CompareAndSwap(false, true)
}

func (t *textureInfo) String() string {
	return fmt.Sprintf("%s(%dx%d %s)", t.label, t.width, t.height, t.format)
}
