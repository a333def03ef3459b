package shader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// ShaderType identifies whether a shader is a fullscreen fragment shader or a compute shader.
type ShaderType int

const (
	// ShaderTypeCompute indicates a shader containing a @compute entry point that writes a storage texture.
	ShaderTypeCompute ShaderType = iota

	// ShaderTypeFragment indicates a fullscreen fragment shader drawn over a single triangle.
	ShaderTypeFragment
)

// String returns a readable name for the shader type.
func (t ShaderType) String() string {
	switch t {
	case ShaderTypeCompute:
		return "compute"
	case ShaderTypeFragment:
		return "fragment"
	default:
		return fmt.Sprintf("ShaderType(%d)", int(t))
	}
}

// Uniform declares one named uniform slot of a shader.
// Every uniform occupies a full vec4 slot in the packed uniform block.
type Uniform struct {
	// Name is the uniform name, used as the WGSL struct field and the Kage uniform key.
	Name string

	// Size is the number of meaningful float components (1 to 4).
	Size int
}

// shader is the implementation of the Shader interface.
// It holds everything a backend needs to run one post-processing program.
type shader struct {
	key           string
	shaderType    ShaderType
	rawSource     string
	source        string
	kageSource    []byte
	inputs        []string
	outputs       int
	uniforms      []Uniform
	entryPoint    string
	workGroupSize [3]uint32
	storageFormat common.TextureFormat
	kernel        KernelFunc
	module        *wgpu.ShaderModuleDescriptor
}

// Shader defines the interface for a post-processing program. A shader declares its named texture
// inputs, its number of color outputs and its uniform slots once; each backend derives what it needs
// from that declaration: the wgpu backend the pre-processed WGSL module and bind group layout, the
// ebiten backend the Kage source, and the software backend the CPU kernel.
type Shader interface {
	// Key retrieves the unique identifier for this shader, used for caching and lookups.
	//
	// Returns:
	//   - string: the shader's unique key
	Key() string

	// ShaderType returns whether the shader is a fragment or compute shader.
	//
	// Returns:
	//   - ShaderType: ShaderTypeFragment or ShaderTypeCompute
	ShaderType() ShaderType

	// Inputs returns the names of the sampled textures in binding order.
	//
	// Returns:
	//   - []string: the input names
	Inputs() []string

	// Outputs returns the number of color attachments the shader writes.
	Outputs() int

	// Uniforms returns the declared uniform slots in packing order.
	Uniforms() []Uniform

	// UniformSize returns the size in bytes of the packed uniform block. It is never zero.
	UniformSize() uint64

	// PackUniforms flattens named uniform values into the vec4-slot layout of the uniform block.
	// Missing values are packed as zeros and extra components are ignored.
	//
	// Parameters:
	//   - values: uniform values keyed by uniform name
	//
	// Returns:
	//   - []float32: the packed block, len = UniformSize()/4
	PackUniforms(values map[string][]float32) []float32

	// Source returns the pre-processed WGSL source, or an empty string when the shader has none.
	Source() string

	// KageSource returns the Kage source for the raster-only backend, or nil when the shader has none.
	KageSource() []byte

	// EntryPoint returns the entry point name of the fragment or compute stage.
	//
	// Returns:
	//   - string: the entry point name (e.g. "fs_main")
	EntryPoint() string

	// WorkgroupSize returns the workgroup size for compute shaders and [0, 0, 0] for fragment shaders.
	WorkgroupSize() [3]uint32

	// StorageFormat returns the format of the storage texture written by a compute shader.
	StorageFormat() common.TextureFormat

	// Kernel returns the CPU evaluation of the shader, or nil when the shader has none.
	Kernel() KernelFunc

	// Module returns the wgpu.ShaderModuleDescriptor built from Source, or nil without WGSL source.
	//
	// Returns:
	//   - *wgpu.ShaderModuleDescriptor: the shader module descriptor containing the WGSL code and label
	Module() *wgpu.ShaderModuleDescriptor

	// BindGroupLayoutDescriptor derives the bind group layout for group 0 from the declaration.
	//
	// Returns:
	//   - wgpu.BindGroupLayoutDescriptor: the layout descriptor
	BindGroupLayoutDescriptor() wgpu.BindGroupLayoutDescriptor
}

var _ Shader = &shader{}

// NewShader creates a new Shader with all specified options applied. WGSL source is pre-processed once
// here; a source that fails to pre-process is a programming error and panics.
//
// Parameters:
//   - key: a unique identifier for the shader, used for caching and lookups
//   - shaderType: the type of shader (fragment or compute)
//   - options: functional options declaring sources, inputs, outputs, uniforms and the CPU kernel
//
// Returns:
//   - Shader: a new Shader instance with the provided configuration
func NewShader(key string, shaderType ShaderType, options ...ShaderBuilderOption) Shader {
	s := &shader{
		key:           key,
		shaderType:    shaderType,
		outputs:       1,
		storageFormat: common.TextureFormatRGBA16F,
	}
	for _, option := range options {
		option(s)
	}
	switch shaderType {
	case ShaderTypeCompute:
		s.outputs = 1
		s.entryPoint = common.Coalesce(s.entryPoint, "cs_main")
		if s.workGroupSize == [3]uint32{} {
			s.workGroupSize = [3]uint32{8, 8, 1}
		}
		if s.storageFormat == common.TextureFormatR16F {
			panic(fmt.Sprintf("shader: %s cannot write storage format %s", key, s.storageFormat))
		}
	case ShaderTypeFragment:
		s.entryPoint = common.Coalesce(s.entryPoint, "fs_main")
		s.workGroupSize = [3]uint32{}
	}
	for _, u := range s.uniforms {
		if u.Size < 1 || u.Size > 4 {
			panic(fmt.Sprintf("shader: %s uniform %q has invalid size %d", key, u.Name, u.Size))
		}
	}

	if s.rawSource != "" {
		src, err := NewPreProcessor().Process(s.rawSource, s)
		if err != nil {
			panic(fmt.Sprintf("shader: failed to pre-process shader source %q: %v", key, err))
		}
		s.source = src
		s.module = &wgpu.ShaderModuleDescriptor{
			Label: key,
			WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
				Code: s.source,
			},
		}
	}
	return s
}

func (s *shader) Key() string {
	return s.key
}

func (s *shader) ShaderType() ShaderType {
	return s.shaderType
}

func (s *shader) Inputs() []string {
	return s.inputs
}

func (s *shader) Outputs() int {
	return s.outputs
}

func (s *shader) Uniforms() []Uniform {
	return s.uniforms
}

func (s *shader) UniformSize() uint64 {
	slots := max(len(s.uniforms), 1)
	return uint64(slots * 16)
}

func (s *shader) PackUniforms(values map[string][]float32) []float32 {
	out := make([]float32, s.UniformSize()/4)
	for i, u := range s.uniforms {
		v := values[u.Name]
		copy(out[i*4:i*4+u.Size], v)
	}
	return out
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) KageSource() []byte {
	return s.kageSource
}

func (s *shader) EntryPoint() string {
	return s.entryPoint
}

func (s *shader) WorkgroupSize() [3]uint32 {
	return s.workGroupSize
}

func (s *shader) StorageFormat() common.TextureFormat {
	return s.storageFormat
}

func (s *shader) Kernel() KernelFunc {
	return s.kernel
}

func (s *shader) Module() *wgpu.ShaderModuleDescriptor {
	return s.module
}
