package depth_of_field

import (
	"embed"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/shader"
)

//go:embed assets
var assets embed.FS

// Shader keys of the depth of field stages, in draw order.
const (
	ShaderFocus     = "dof_focus"
	ShaderCoC       = "dof_coc"
	ShaderCoCNear   = "dof_coc_near"
	ShaderNearBlur  = "dof_near_blur"
	ShaderHexBlur1  = "dof_hex_blur1"
	ShaderHexBlur2  = "dof_hex_blur2"
	ShaderComposite = "dof_composite"
)

func source(key string) string {
	b, err := assets.ReadFile("assets/" + key + ".wgsl")
	if err != nil {
		panic(err)
	}
	return string(b)
}

var (
	focusShader = shader.NewShader(ShaderFocus, shader.ShaderTypeCompute,
		shader.WithSource(source(ShaderFocus)),
		shader.WithInputs("depth"),
		shader.WithUniform("measureMode", 1),
		shader.WithUniform("focalDistance", 1),
		shader.WithUniform("targetDistance", 1),
		shader.WithUniform("cameraNear", 1),
		shader.WithUniform("cameraFar", 1),
		shader.WithWorkGroupSize(1, 1, 1),
		shader.WithStorageFormat(common.TextureFormatRGBA16F),
		shader.WithKernel(focusKernel),
	)

	cocShader = shader.NewShader(ShaderCoC, shader.ShaderTypeFragment,
		shader.WithSource(source(ShaderCoC)),
		shader.WithInputs("depth", "focus"),
		shader.WithOutputs(2),
		shader.WithUniform("focalLength", 1),
		shader.WithUniform("fStop", 1),
		shader.WithUniform("focusRange", 1),
		shader.WithUniform("cameraNear", 1),
		shader.WithUniform("cameraFar", 1),
		shader.WithKernel(cocKernel),
	)

	cocNearShader = shader.NewShader(ShaderCoCNear, shader.ShaderTypeFragment,
		shader.WithSource(source(ShaderCoCNear)),
		shader.WithInputs("depth", "focus"),
		shader.WithUniform("focusRange", 1),
		shader.WithKernel(cocNearKernel),
	)

	nearBlurShader = shader.NewShader(ShaderNearBlur, shader.ShaderTypeFragment,
		shader.WithSource(source(ShaderNearBlur)),
		shader.WithInputs("cocNear"),
		shader.WithKernel(nearBlurKernel),
	)

	hexBlur1Shader = shader.NewShader(ShaderHexBlur1, shader.ShaderTypeFragment,
		shader.WithSource(source(ShaderHexBlur1)),
		shader.WithInputs("color", "coc"),
		shader.WithOutputs(2),
		shader.WithUniform("maxBlur", 1),
		shader.WithKernel(hexBlur1Kernel),
	)

	hexBlur2Shader = shader.NewShader(ShaderHexBlur2, shader.ShaderTypeFragment,
		shader.WithSource(source(ShaderHexBlur2)),
		shader.WithInputs("vertical", "diagonal", "coc"),
		shader.WithUniform("maxBlur", 1),
		shader.WithKernel(hexBlur2Kernel),
	)

	compositeShader = shader.NewShader(ShaderComposite, shader.ShaderTypeFragment,
		shader.WithSource(source(ShaderComposite)),
		shader.WithInputs("color", "far", "coc", "focalBlurred"),
		shader.WithUniform("testMode", 1),
		shader.WithKernel(compositeKernel),
	)
)
