package renderer

import (
	_ "embed"

	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/shader"
)

//go:embed assets/blit.wgsl
var blitWGSL string

//go:embed assets/blit.kage
var blitKage []byte

// blitShaderKey is the key of the internal shader used to copy a texture onto the display surface.
const blitShaderKey = "renderer_blit"

// newBlitShader builds the shader that copies its input opaque onto the display surface.
func newBlitShader() shader.Shader {
	return shader.NewShader(blitShaderKey, shader.ShaderTypeFragment,
		shader.WithSource(blitWGSL),
		shader.WithKageSource(blitKage),
		shader.WithInputs("src"),
		shader.WithKernel(func(inv *shader.Invocation, out [][4]float32) {
			c := inv.Input(0).Sample(inv.U, inv.V)
			out[0] = [4]float32{c[0], c[1], c[2], 1}
		}),
	)
}
