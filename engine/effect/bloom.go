package effect

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/render_target"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/shader"
)

// BloomLevels is the number of mip levels of the bloom chain, the half resolution bright target
// included.
const BloomLevels = 5

type bloom struct {
	*BasePass
}

var _ Pass = &bloom{}

// bloomTargets lays out the bright target, the downsample chain, the upsample chain from the
// smallest level back to half resolution, and the full resolution output.
func bloomTargets() []render_target.Descriptor {
	targets := []render_target.Descriptor{{Label: "Bloom", Scale: 0.5, Format: common.TextureFormatRGBA16F, Attachments: []string{"Bright"}}}
	scale := float32(0.5)
	for i := 1; i < BloomLevels; i++ {
		scale /= 2
		targets = append(targets, render_target.Descriptor{
			Label:       "Bloom",
			Scale:       scale,
			Format:      common.TextureFormatRGBA16F,
			Attachments: []string{fmt.Sprintf("Down%d", i)},
		})
	}
	for i := BloomLevels - 2; i >= 0; i-- {
		scale *= 2
		targets = append(targets, render_target.Descriptor{
			Label:       "Bloom",
			Scale:       scale,
			Format:      common.TextureFormatRGBA16F,
			Attachments: []string{fmt.Sprintf("Up%d", i)},
		})
	}
	return append(targets, render_target.Descriptor{Label: "Bloom", Format: common.TextureFormatRGBA16F, Attachments: []string{"Output"}})
}

// NewBloom creates the bloom pass: a thresholded bright target, a BloomLevels deep downsample
// chain, tent filtered upsampling and an additive composite over the chain color.
//
// Returns:
//   - Pass: the bloom pass, enabled
func NewBloom() Pass {
	return &bloom{
		BasePass: NewBasePass(KindBloom.String(), KindBloom, bloomTargets(),
			map[string][]float32{
				"intensity":          {1},
				"luminanceThreshold": {0.9},
				"luminanceSmoothing": {0.025},
				"radius":             {0.85},
			},
		),
	}
}

func (b *bloom) Usage() Usage {
	return UsageSceneColor | UsageProducesColor
}

func (b *bloom) Requirements() renderer.Capabilities {
	return renderer.CapNone
}

func (b *bloom) Shaders() []shader.Shader {
	return []shader.Shader{bloomThresholdShader, bloomDownsampleShader, bloomUpsampleShader, bloomCompositeShader}
}

func (b *bloom) Active() bool {
	return b.Enabled()
}

func (b *bloom) Render(ctx *Context) (renderer.Texture, error) {
	if ctx.Input == nil {
		return nil, MissingInput(b.Name(), "color")
	}
	n := 2 * BloomLevels
	targets := make([]renderer.Texture, n)
	for i := range targets {
		if targets[i] = b.Output(i); targets[i] == nil {
			return nil, MissingInput(b.Name(), "target")
		}
	}
	uniforms := b.DrawUniforms()
	draw := func(key string, out renderer.Texture, inputs ...renderer.Texture) error {
		if err := ctx.Draw(key, inputs, []renderer.Texture{out}, uniforms); err != nil {
			return fmt.Errorf("bloom %s: %w", key, err)
		}
		return nil
	}

	// Levels 0..BloomLevels-1 hold the bright target and the downsample chain.
	if err := draw(ShaderBloomThreshold, targets[0], ctx.Input); err != nil {
		return nil, err
	}
	for i := 1; i < BloomLevels; i++ {
		if err := draw(ShaderBloomDownsample, targets[i], targets[i-1]); err != nil {
			return nil, err
		}
	}

	low := targets[BloomLevels-1]
	for i := BloomLevels - 2; i >= 0; i-- {
		up := targets[BloomLevels+(BloomLevels-2-i)]
		if err := draw(ShaderBloomUpsample, up, low, targets[i]); err != nil {
			return nil, err
		}
		low = up
	}

	out := targets[n-1]
	if err := draw(ShaderBloomComposite, out, ctx.Input, low); err != nil {
		return nil, err
	}
	return out, nil
}
