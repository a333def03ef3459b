package bind_group_provider

import "github.com/cogentcore/webgpu/wgpu"

// BindGroupProviderOption is a functional option used to configure a BindGroupProvider during construction.
type BindGroupProviderOption func(*bindGroupProvider)

// WithSampler sets a borrowed sampler for a specific binding index.
//
// Parameters:
//   - binding: the binding index for this sampler
//   - s: the sampler to associate with this binding
//
// Returns:
//   - BindGroupProviderOption: a function that sets the sampler for the specified binding
func WithSampler(binding int, s *wgpu.Sampler) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.samplers[binding] = s
	}
}

// WithTextureViews sets borrowed texture views starting at the given binding index.
//
// Parameters:
//   - first: the binding index of the first view
//   - views: the views in binding order
//
// Returns:
//   - BindGroupProviderOption: a function that sets the texture views
func WithTextureViews(first int, views ...*wgpu.TextureView) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		for i, v := range views {
			p.textureViews[first+i] = v
		}
	}
}
