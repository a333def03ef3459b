package pipeline

import (
	"strings"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// PipelineType identifies whether a pipeline is a compute pipeline or a render pipeline.
type PipelineType int

const (
	// PipelineTypeCompute indicates a compute pipeline with a single compute shader entry point.
	PipelineTypeCompute PipelineType = iota

	// PipelineTypeRender indicates a fullscreen render pipeline drawing one triangle into its color targets.
	PipelineTypeRender
)

// pipeline is the implementation of the Pipeline interface.
// It holds the underlying WebGPU pipeline objects for one shader and one set of target formats.
type pipeline struct {
	// pipelineType indicates the type of pipeline this is; compute or render
	pipelineType PipelineType
	// pipelineKey is the unique identifier for this pipeline, see Key
	pipelineKey string

	shader        shader.Shader
	targetFormats []common.TextureFormat
	writeMask     wgpu.ColorWriteMask

	// renderPipeline is the render pipeline if this is a render pipeline, nil otherwise
	renderPipeline *wgpu.RenderPipeline
	// computePipeline is the compute pipeline if this is a compute pipeline, nil otherwise
	computePipeline *wgpu.ComputePipeline
	// bindGroupLayout is the group 0 layout shared by every bind group drawn with this pipeline
	bindGroupLayout *wgpu.BindGroupLayout
}

// Pipeline defines the interface for a GPU pipeline running one effect shader. Render pipelines are
// specialized per color target format list because a post-processing shader may write 8-bit targets
// on one backend and float targets on another; compute pipelines write a storage texture whose
// format is fixed by the shader.
type Pipeline interface {
	// Type returns the type of the pipeline
	//
	// Returns:
	//   - PipelineType: the type of the pipeline (render or compute)
	Type() PipelineType

	// PipelineKey returns the unique key associated with this pipeline, used for caching and lookups.
	//
	// Returns:
	//   - string: the unique key for this pipeline
	PipelineKey() string

	// Shader returns the shader the pipeline runs.
	Shader() shader.Shader

	// TargetFormats returns the color target formats of a render pipeline in attachment order.
	//
	// Returns:
	//   - []common.TextureFormat: the formats, empty for compute pipelines
	TargetFormats() []common.TextureFormat

	// ColorTargets builds the wgpu color target states for a render pipeline.
	//
	// Returns:
	//   - []wgpu.ColorTargetState: one state per target format
	ColorTargets() []wgpu.ColorTargetState

	// WriteMask returns the color write mask configured for this pipeline.
	//
	// Returns:
	//   - wgpu.ColorWriteMask: the color write mask for this pipeline (e.g., wgpu.ColorWriteMaskAll)
	WriteMask() wgpu.ColorWriteMask

	// Pipeline returns the underlying pipeline object, either *wgpu.RenderPipeline or *wgpu.ComputePipeline
	// Note: The caller is responsible for type asserting the returned value as either pipeline type.
	//
	// Returns:
	//   - any: the underlying pipeline object.
	Pipeline() any

	// BindGroupLayout returns the created group 0 layout, or nil before registration.
	BindGroupLayout() *wgpu.BindGroupLayout

	// SetRenderPipeline sets the render pipeline
	//
	// Parameters:
	//   - p: the WebGPU render pipeline to set
	SetRenderPipeline(p *wgpu.RenderPipeline)

	// SetComputePipeline sets the compute pipeline
	//
	// Parameters:
	//   - p: the WebGPU compute pipeline to set
	SetComputePipeline(p *wgpu.ComputePipeline)

	// SetBindGroupLayout sets the group 0 layout created for the shader.
	//
	// Parameters:
	//   - l: the WebGPU bind group layout to set
	SetBindGroupLayout(l *wgpu.BindGroupLayout)

	// Release releases the GPU pipeline objects held by this pipeline.
	Release()
}

var _ Pipeline = &pipeline{}

// NewPipeline creates a Pipeline for the given shader. The pipeline type follows the shader type and
// the key is derived from the shader key and target formats via Key.
//
// Parameters:
//   - s: the shader to run
//   - opts: a variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: a new Pipeline instance with the specified configuration
func NewPipeline(s shader.Shader, opts ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		pipelineType: PipelineTypeRender,
		shader:       s,
		writeMask:    wgpu.ColorWriteMaskAll,
	}
	if s.ShaderType() == shader.ShaderTypeCompute {
		p.pipelineType = PipelineTypeCompute
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.pipelineType == PipelineTypeCompute {
		p.targetFormats = nil
	}
	p.pipelineKey = Key(s.Key(), p.targetFormats)
	return p
}

// Key builds the cache key of a pipeline from its shader key and color target formats,
// e.g. "dof_coc|rgba16f,r16f".
//
// Parameters:
//   - shaderKey: the key of the shader
//   - formats: the color target formats
//
// Returns:
//   - string: the pipeline key
func Key(shaderKey string, formats []common.TextureFormat) string {
	if len(formats) == 0 {
		return shaderKey
	}
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = f.String()
	}
	return shaderKey + "|" + strings.Join(names, ",")
}

func (p *pipeline) Type() PipelineType {
	return p.pipelineType
}

func (p *pipeline) PipelineKey() string {
	return p.pipelineKey
}

func (p *pipeline) Shader() shader.Shader {
	return p.shader
}

func (p *pipeline) TargetFormats() []common.TextureFormat {
	return p.targetFormats
}

func (p *pipeline) ColorTargets() []wgpu.ColorTargetState {
	targets := make([]wgpu.ColorTargetState, len(p.targetFormats))
	for i, f := range p.targetFormats {
		targets[i] = wgpu.ColorTargetState{
			Format:    shader.TextureFormat(f),
			WriteMask: p.writeMask,
		}
	}
	return targets
}

func (p *pipeline) WriteMask() wgpu.ColorWriteMask {
	return p.writeMask
}

func (p *pipeline) Pipeline() any {
	switch p.pipelineType {
	case PipelineTypeRender:
		return p.renderPipeline
	case PipelineTypeCompute:
		return p.computePipeline
	default:
		return nil
	}
}

func (p *pipeline) BindGroupLayout() *wgpu.BindGroupLayout {
	return p.bindGroupLayout
}

func (p *pipeline) SetRenderPipeline(rp *wgpu.RenderPipeline) {
	p.renderPipeline = rp
}

func (p *pipeline) SetComputePipeline(cp *wgpu.ComputePipeline) {
	p.computePipeline = cp
}

func (p *pipeline) SetBindGroupLayout(l *wgpu.BindGroupLayout) {
	p.bindGroupLayout = l
}

func (p *pipeline) Release() {
	if p.renderPipeline != nil {
		p.renderPipeline.Release()
		p.renderPipeline = nil
	}
	if p.computePipeline != nil {
		p.computePipeline.Release()
		p.computePipeline = nil
	}
	if p.bindGroupLayout != nil {
		p.bindGroupLayout.Release()
		p.bindGroupLayout = nil
	}
}
