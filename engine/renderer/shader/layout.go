package shader

import (
	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// BindGroupLayoutDescriptor derives the group 0 layout matching the declarations generated by
// @oxy:bindings: binding 0 is the uniform block, binding 1 the filtering sampler, bindings 2+i the
// sampled inputs and, for compute shaders, the write-only storage texture after them.
func (s *shader) BindGroupLayoutDescriptor() wgpu.BindGroupLayoutDescriptor {
	visibility := wgpu.ShaderStageFragment
	if s.shaderType == ShaderTypeCompute {
		visibility = wgpu.ShaderStageCompute
	}

	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(s.inputs)+3)

	uniform := wgpu.BindGroupLayoutEntry{Binding: 0, Visibility: visibility}
	uniform.Buffer.Type = wgpu.BufferBindingTypeUniform
	uniform.Buffer.MinBindingSize = s.UniformSize()
	entries = append(entries, uniform)

	sampler := wgpu.BindGroupLayoutEntry{Binding: 1, Visibility: visibility}
	sampler.Sampler.Type = wgpu.SamplerBindingTypeFiltering
	entries = append(entries, sampler)

	for i := range s.inputs {
		tex := wgpu.BindGroupLayoutEntry{Binding: uint32(i + 2), Visibility: visibility}
		tex.Texture.SampleType = wgpu.TextureSampleTypeFloat
		tex.Texture.ViewDimension = wgpu.TextureViewDimension2D
		entries = append(entries, tex)
	}

	if s.shaderType == ShaderTypeCompute {
		storage := wgpu.BindGroupLayoutEntry{Binding: uint32(len(s.inputs) + 2), Visibility: visibility}
		storage.StorageTexture.Access = wgpu.StorageTextureAccessWriteOnly
		storage.StorageTexture.Format = TextureFormat(s.storageFormat)
		storage.StorageTexture.ViewDimension = wgpu.TextureViewDimension2D
		entries = append(entries, storage)
	}

	return wgpu.BindGroupLayoutDescriptor{
		Label:   s.key,
		Entries: entries,
	}
}

// TextureFormat maps a backend independent format onto its wgpu texture format.
//
// Parameters:
//   - f: the engine texture format
//
// Returns:
//   - wgpu.TextureFormat: the matching wgpu format
func TextureFormat(f common.TextureFormat) wgpu.TextureFormat {
	switch f {
	case common.TextureFormatRGBA16F:
		return wgpu.TextureFormatRGBA16Float
	case common.TextureFormatR16F:
		return wgpu.TextureFormatR16Float
	default:
		return wgpu.TextureFormatRGBA8Unorm
	}
}
