package shader

import "github.com/Carmen-Shannon/oxy-fx/common"

// ShaderBuilderOption is a functional option for declaring a shader.
type ShaderBuilderOption func(*shader)

// WithSource sets the raw WGSL source. The source may contain @oxy: annotations which are
// expanded by the pre-processor when the shader is created.
//
// Parameters:
//   - src: the WGSL source text
//
// Returns:
//   - ShaderBuilderOption: a function that sets the WGSL source
func WithSource(src string) ShaderBuilderOption {
	return func(s *shader) {
		s.rawSource = src
	}
}

// WithKageSource sets the Kage source used by the raster-only backend.
//
// Parameters:
//   - src: the Kage source text
//
// Returns:
//   - ShaderBuilderOption: a function that sets the Kage source
func WithKageSource(src []byte) ShaderBuilderOption {
	return func(s *shader) {
		s.kageSource = src
	}
}

// WithInputs declares the sampled texture inputs in binding order.
//
// Parameters:
//   - names: the input names, exposed to WGSL as t_<name>
//
// Returns:
//   - ShaderBuilderOption: a function that sets the inputs
func WithInputs(names ...string) ShaderBuilderOption {
	return func(s *shader) {
		s.inputs = append(s.inputs, names...)
	}
}

// WithOutputs sets the number of color attachments a fragment shader writes.
func WithOutputs(n int) ShaderBuilderOption {
	return func(s *shader) {
		s.outputs = max(n, 1)
	}
}

// WithUniform appends a uniform slot.
//
// Parameters:
//   - name: the uniform name
//   - size: number of float components, 1 to 4
//
// Returns:
//   - ShaderBuilderOption: a function that appends the uniform
func WithUniform(name string, size int) ShaderBuilderOption {
	return func(s *shader) {
		s.uniforms = append(s.uniforms, Uniform{Name: name, Size: size})
	}
}

// WithEntryPoint overrides the default entry point ("fs_main" or "cs_main").
func WithEntryPoint(name string) ShaderBuilderOption {
	return func(s *shader) {
		s.entryPoint = name
	}
}

// WithWorkGroupSize sets the compute workgroup size. Defaults to 8x8x1.
func WithWorkGroupSize(x, y, z uint32) ShaderBuilderOption {
	return func(s *shader) {
		s.workGroupSize = [3]uint32{x, y, z}
	}
}

// WithStorageFormat sets the storage texture format written by a compute shader.
func WithStorageFormat(format common.TextureFormat) ShaderBuilderOption {
	return func(s *shader) {
		s.storageFormat = format
	}
}

// WithKernel sets the CPU evaluation of the shader used by the software backend.
//
// Parameters:
//   - k: the kernel function
//
// Returns:
//   - ShaderBuilderOption: a function that sets the kernel
func WithKernel(k KernelFunc) ShaderBuilderOption {
	return func(s *shader) {
		s.kernel = k
	}
}
