package pipeline

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "blur", Key("blur", nil))
	assert.Equal(t, "dof_coc|rgba16f,r16f", Key("dof_coc", []common.TextureFormat{common.TextureFormatRGBA16F, common.TextureFormatR16F}))
}

func TestNewRenderPipeline(t *testing.T) {
	s := shader.NewShader("dof_coc", shader.ShaderTypeFragment, shader.WithOutputs(2))
	p := NewPipeline(s, WithTargetFormats(common.TextureFormatRGBA16F, common.TextureFormatR16F))

	assert.Equal(t, PipelineTypeRender, p.Type())
	assert.Equal(t, "dof_coc|rgba16f,r16f", p.PipelineKey())
	assert.Same(t, s, p.Shader())

	targets := p.ColorTargets()
	require.Len(t, targets, 2)
	assert.Equal(t, wgpu.TextureFormatRGBA16Float, targets[0].Format)
	assert.Equal(t, wgpu.TextureFormatR16Float, targets[1].Format)
	assert.Equal(t, wgpu.ColorWriteMaskAll, targets[1].WriteMask)
	assert.Nil(t, p.Pipeline().(*wgpu.RenderPipeline))
}

func TestNewComputePipelineIgnoresTargets(t *testing.T) {
	s := shader.NewShader("dof_focus", shader.ShaderTypeCompute)
	p := NewPipeline(s, WithTargetFormats(common.TextureFormatRGBA8), WithWriteMask(wgpu.ColorWriteMaskRed))

	assert.Equal(t, PipelineTypeCompute, p.Type())
	assert.Equal(t, "dof_focus", p.PipelineKey())
	assert.Empty(t, p.TargetFormats())
	assert.Equal(t, wgpu.ColorWriteMaskRed, p.WriteMask())
	p.Release()
}
