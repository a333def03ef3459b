package pipeline

import (
	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/cogentcore/webgpu/wgpu"
)

// PipelineBuilderOption is a functional option used to configure a Pipeline during construction.
type PipelineBuilderOption func(*pipeline)

// WithTargetFormats sets the color target formats of a render pipeline, one per shader output.
//
// Parameters:
//   - formats: the formats in attachment order
//
// Returns:
//   - PipelineBuilderOption: a function that sets the target formats for this pipeline
func WithTargetFormats(formats ...common.TextureFormat) PipelineBuilderOption {
	return func(p *pipeline) {
		p.targetFormats = append([]common.TextureFormat(nil), formats...)
	}
}

// WithWriteMask sets the color write mask for this pipeline.
//
// Parameters:
//   - mask: the color write mask to use for this pipeline
//
// Returns:
//   - PipelineBuilderOption: a function that sets the write mask for this pipeline
func WithWriteMask(mask wgpu.ColorWriteMask) PipelineBuilderOption {
	return func(p *pipeline) {
		p.writeMask = mask
	}
}
