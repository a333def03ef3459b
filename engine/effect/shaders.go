package effect

import (
	"embed"

	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/shader"
)

//go:embed assets
var assets embed.FS

// asset reads an embedded shader file. Missing assets are a build error, so a failed read panics.
func asset(name string) []byte {
	b, err := assets.ReadFile("assets/" + name)
	if err != nil {
		panic(err)
	}
	return b
}

// Shader keys of the single-pass effects.
const (
	ShaderOutline         = "outline"
	ShaderNormalBlending  = "normal_blending"
	ShaderBloomThreshold  = "bloom_threshold"
	ShaderBloomDownsample = "bloom_downsample"
	ShaderBloomUpsample   = "bloom_upsample"
	ShaderBloomComposite  = "bloom_composite"
	ShaderTextureDebug    = "texture_debug"
)

// fragment declares a fullscreen fragment shader from its embedded WGSL and Kage sources.
func fragment(key string, kernel shader.KernelFunc, options ...shader.ShaderBuilderOption) shader.Shader {
	options = append([]shader.ShaderBuilderOption{
		shader.WithSource(string(asset(key + ".wgsl"))),
		shader.WithKageSource(asset(key + ".kage")),
		shader.WithKernel(kernel),
	}, options...)
	return shader.NewShader(key, shader.ShaderTypeFragment, options...)
}

var (
	outlineShader = fragment(ShaderOutline, outlineKernel,
		shader.WithInputs("color", "mask"),
		shader.WithUniform("edgeColor", 4),
		shader.WithUniform("thickness", 1),
		shader.WithUniform("strength", 1),
	)

	normalBlendingShader = fragment(ShaderNormalBlending, normalBlendingKernel,
		shader.WithInputs("color", "normalMap", "subNormalMap"),
		shader.WithUniform("strength", 1),
		shader.WithUniform("subScale", 1),
		shader.WithUniform("lightDirection", 3),
	)

	bloomThresholdShader = fragment(ShaderBloomThreshold, bloomThresholdKernel,
		shader.WithInputs("color"),
		shader.WithUniform("luminanceThreshold", 1),
		shader.WithUniform("luminanceSmoothing", 1),
	)

	bloomDownsampleShader = fragment(ShaderBloomDownsample, bloomDownsampleKernel,
		shader.WithInputs("src"),
	)

	bloomUpsampleShader = fragment(ShaderBloomUpsample, bloomUpsampleKernel,
		shader.WithInputs("low", "high"),
		shader.WithUniform("radius", 1),
	)

	bloomCompositeShader = fragment(ShaderBloomComposite, bloomCompositeKernel,
		shader.WithInputs("color", "bloom"),
		shader.WithUniform("intensity", 1),
	)

	textureDebugShader = fragment(ShaderTextureDebug, textureDebugKernel,
		shader.WithInputs("texture"),
		shader.WithUniform("channels", 4),
	)
)
