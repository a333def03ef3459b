package effect

import (
	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/render_target"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/shader"
)

type outline struct {
	*BasePass
}

var _ Pass = &outline{}

// NewOutline creates the outline pass. It draws an edge around the selection mask of the frame and
// is skipped on frames without a mask.
//
// Returns:
//   - Pass: the outline pass, enabled
func NewOutline() Pass {
	return &outline{
		BasePass: NewBasePass(KindOutline.String(), KindOutline,
			[]render_target.Descriptor{{Label: "Outline", Format: common.TextureFormatRGBA16F}},
			map[string][]float32{
				"edgeColor": {1, 0.5, 0, 1},
				"thickness": {2},
				"strength":  {1},
			},
		),
	}
}

func (o *outline) Usage() Usage {
	return UsageSceneColor | UsageProducesColor
}

func (o *outline) Requirements() renderer.Capabilities {
	return renderer.CapNone
}

func (o *outline) Shaders() []shader.Shader {
	return []shader.Shader{outlineShader}
}

func (o *outline) Active() bool {
	return o.Enabled()
}

func (o *outline) Render(ctx *Context) (renderer.Texture, error) {
	if ctx.Frame.Mask == nil || ctx.Frame.Mask.Released() {
		return nil, MissingInput(o.Name(), "mask")
	}
	if ctx.Input == nil {
		return nil, MissingInput(o.Name(), "color")
	}
	out := o.Output(0)
	if out == nil {
		return nil, MissingInput(o.Name(), "target")
	}

	if err := ctx.Draw(ShaderOutline, []renderer.Texture{ctx.Input, ctx.Frame.Mask}, []renderer.Texture{out}, o.DrawUniforms()); err != nil {
		return nil, err
	}
	return out, nil
}
