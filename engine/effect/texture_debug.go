package effect

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/render_target"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/shader"
)

// TextureDebug replaces the chain output with a named pool texture seen through a channel mask.
type TextureDebug interface {
	Pass

	// SetSelection selects the texture to show. An empty name clears the selection.
	//
	// Parameters:
	//   - name: the export name of a pool texture
	//   - channels: the r, g, b, a mask; a single channel is shown as grey
	SetSelection(name string, channels [4]float32)

	// Selection returns the selected texture name and channel mask.
	Selection() (string, [4]float32)
}

type textureDebug struct {
	*BasePass
	selMu    *sync.Mutex
	name     string
	channels [4]float32
}

var _ TextureDebug = &textureDebug{}

// NewTextureDebug creates the debug override pass with no selection.
//
// Returns:
//   - TextureDebug: the pass, enabled but inactive until a texture is selected
func NewTextureDebug() TextureDebug {
	return &textureDebug{
		BasePass: NewBasePass(KindDebug.String(), KindDebug,
			[]render_target.Descriptor{{Label: "TextureDebug", Format: common.TextureFormatRGBA8}},
			map[string][]float32{"channels": {1, 1, 1, 1}},
		),
		selMu:    &sync.Mutex{},
		channels: [4]float32{1, 1, 1, 1},
	}
}

func (d *textureDebug) Usage() Usage {
	return UsageProducesColor
}

func (d *textureDebug) Requirements() renderer.Capabilities {
	return renderer.CapNone
}

func (d *textureDebug) Shaders() []shader.Shader {
	return []shader.Shader{textureDebugShader}
}

func (d *textureDebug) SetSelection(name string, channels [4]float32) {
	d.selMu.Lock()
	d.name, d.channels = name, channels
	d.selMu.Unlock()
	d.SetUniform("channels", channels[:]...)
}

func (d *textureDebug) Selection() (string, [4]float32) {
	d.selMu.Lock()
	defer d.selMu.Unlock()
	return d.name, d.channels
}

func (d *textureDebug) Active() bool {
	name, _ := d.Selection()
	return d.Enabled() && name != ""
}

// Exports is empty: the debug view is never offered as a debug source itself.
func (d *textureDebug) Exports() []string {
	return nil
}

func (d *textureDebug) Render(ctx *Context) (renderer.Texture, error) {
	name, _ := d.Selection()
	pool := d.Pool()
	if name == "" || pool == nil {
		return nil, MissingInput(d.Name(), "selection")
	}
	src := pool.Texture(name)
	if src == nil || src.Released() {
		return nil, MissingInput(d.Name(), name)
	}
	out := d.Output(0)
	if out == nil {
		return nil, MissingInput(d.Name(), "target")
	}

	if err := ctx.Draw(ShaderTextureDebug, []renderer.Texture{src}, []renderer.Texture{out}, d.DrawUniforms()); err != nil {
		return nil, err
	}
	return out, nil
}
