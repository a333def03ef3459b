package shader

import (
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFragment = `//@oxy:include fullscreen
//@oxy:include color
//@oxy:bindings

@fragment
fn fs_main(in: VertexOutput) -> @location(0) vec4<f32> {
    let c = textureSample(t_color, samp, in.uv);
    return c * params.strength.x;
}
`

func TestNewShaderDefaults(t *testing.T) {
	s := NewShader("fx", ShaderTypeFragment, WithSource(testFragment), WithInputs("color"), WithUniform("strength", 1))

	assert.Equal(t, "fs_main", s.EntryPoint())
	assert.Equal(t, [3]uint32{}, s.WorkgroupSize())
	assert.Equal(t, 1, s.Outputs())
	require.NotNil(t, s.Module())
	assert.Equal(t, "fx", s.Module().Label)

	c := NewShader("focus", ShaderTypeCompute, WithInputs("depth"))
	assert.Equal(t, "cs_main", c.EntryPoint())
	assert.Equal(t, [3]uint32{8, 8, 1}, c.WorkgroupSize())
	assert.Nil(t, c.Module())
}

func TestPreProcessorExpandsAnnotations(t *testing.T) {
	s := NewShader("fx", ShaderTypeFragment, WithSource(testFragment), WithInputs("color", "mask"), WithUniform("strength", 1))
	src := s.Source()

	assert.NotContains(t, src, "@oxy:")
	assert.Contains(t, src, "fn vs_main")
	assert.Contains(t, src, "fn luminance")
	assert.Contains(t, src, "strength: vec4<f32>,")
	assert.Contains(t, src, "@group(0) @binding(0) var<uniform> params: Params;")
	assert.Contains(t, src, "@group(0) @binding(2) var t_color: texture_2d<f32>;")
	assert.Contains(t, src, "@group(0) @binding(3) var t_mask: texture_2d<f32>;")
}

func TestPreProcessorIncludesOnce(t *testing.T) {
	s := NewShader("fx", ShaderTypeFragment)
	src, err := NewPreProcessor().Process("//@oxy:include color\n//@oxy:include color\n", s)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(src, "fn luminance"))
}

func TestPreProcessorErrors(t *testing.T) {
	s := NewShader("fx", ShaderTypeFragment)
	pp := NewPreProcessor()

	_, err := pp.Process("//@oxy:include nothing", s)
	assert.ErrorContains(t, err, "unknown @oxy:include")

	_, err = pp.Process("//@oxy:group 0 0", s)
	assert.ErrorContains(t, err, "unknown annotation")

	_, err = pp.Process("//@oxy:", s)
	assert.ErrorContains(t, err, "empty annotation")

	assert.Panics(t, func() {
		NewShader("bad", ShaderTypeFragment, WithSource("//@oxy:include nothing"))
	})
}

func TestComputeBindings(t *testing.T) {
	s := NewShader("focus", ShaderTypeCompute, WithInputs("depth"), WithUniform("mode", 1))
	b := Bindings(s)
	assert.Contains(t, b, "@group(0) @binding(3) var out_tex: texture_storage_2d<rgba16float, write>;")

	assert.Panics(t, func() {
		NewShader("bad", ShaderTypeCompute, WithStorageFormat(common.TextureFormatR16F))
	})
}

func TestPackUniforms(t *testing.T) {
	s := NewShader("fx", ShaderTypeFragment,
		WithUniform("edgeColor", 4),
		WithUniform("thickness", 1),
		WithUniform("light", 3),
	)
	assert.Equal(t, uint64(48), s.UniformSize())

	packed := s.PackUniforms(map[string][]float32{
		"edgeColor": {1, 0.5, 0.25, 1},
		"thickness": {3, 99},
		"unused":    {7},
	})
	assert.Equal(t, []float32{1, 0.5, 0.25, 1, 3, 0, 0, 0, 0, 0, 0, 0}, packed)

	empty := NewShader("blit", ShaderTypeFragment)
	assert.Equal(t, uint64(16), empty.UniformSize())
	assert.Len(t, empty.PackUniforms(nil), 4)
}

func TestBindGroupLayoutDescriptor(t *testing.T) {
	frag := NewShader("fx", ShaderTypeFragment, WithInputs("color", "depth"), WithUniform("a", 1))
	desc := frag.BindGroupLayoutDescriptor()
	require.Len(t, desc.Entries, 4)
	assert.Equal(t, wgpu.BufferBindingTypeUniform, desc.Entries[0].Buffer.Type)
	assert.Equal(t, uint64(16), desc.Entries[0].Buffer.MinBindingSize)
	assert.Equal(t, wgpu.SamplerBindingTypeFiltering, desc.Entries[1].Sampler.Type)
	assert.Equal(t, uint32(3), desc.Entries[3].Binding)
	assert.Equal(t, wgpu.TextureSampleTypeFloat, desc.Entries[3].Texture.SampleType)
	assert.Equal(t, wgpu.ShaderStageFragment, desc.Entries[3].Visibility)

	comp := NewShader("focus", ShaderTypeCompute, WithInputs("depth"))
	desc = comp.BindGroupLayoutDescriptor()
	require.Len(t, desc.Entries, 4)
	assert.Equal(t, wgpu.StorageTextureAccessWriteOnly, desc.Entries[3].StorageTexture.Access)
	assert.Equal(t, wgpu.TextureFormatRGBA16Float, desc.Entries[3].StorageTexture.Format)
	assert.Equal(t, wgpu.ShaderStageCompute, desc.Entries[0].Visibility)
}

func TestFloatSampler(t *testing.T) {
	s := NewFloatSampler(2, 1, []float32{
		0, 0, 0, 1,
		1, 2, 4, 1,
	})

	assert.Equal(t, [4]float32{0, 0, 0, 1}, s.Sample(0.25, 0.5))
	assert.Equal(t, [4]float32{1, 2, 4, 1}, s.Sample(0.75, 0.5))
	mid := s.Sample(0.5, 0.5)
	assert.InDelta(t, 0.5, mid[0], 1e-6)
	assert.InDelta(t, 2, mid[2], 1e-6)

	assert.Equal(t, [4]float32{1, 2, 4, 1}, s.Load(10, -3))
	assert.Equal(t, [4]float32{0, 0, 0, 1}, s.Sample(-1, 2))

	c := NewConstantSampler([4]float32{0.5, 0.5, 1, 1})
	w, h := c.Size()
	assert.Equal(t, 1, w)
	assert.Equal(t, 1, h)
	assert.Equal(t, [4]float32{0.5, 0.5, 1, 1}, c.Sample(0.9, 0.1))
}

func TestUniformHelpers(t *testing.T) {
	u := Uniforms{"a": {2}, "v": {1, 2}}
	assert.Equal(t, float32(2), u.Float("a"))
	assert.Equal(t, float32(0), u.Float("missing"))
	assert.Equal(t, [3]float32{1, 2, 0}, u.Vec3("v"))
	assert.Equal(t, [4]float32{1, 2, 0, 0}, u.Vec4("v"))
}
