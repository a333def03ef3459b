package effect

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/render_target"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/shader"
)

// NormalBlending relights the chain color with a base normal map detailed by a tiled sub normal map.
type NormalBlending interface {
	Pass

	// SetNormalMaps sets the two normal maps. The pass leaves the chain while either is nil.
	//
	// Parameters:
	//   - base: the base normal map
	//   - sub: the detail normal map, tiled subScale times
	SetNormalMaps(base, sub renderer.Texture)

	// NormalMaps returns the current base and detail normal maps.
	NormalMaps() (base, sub renderer.Texture)
}

type normalBlending struct {
	*BasePass
	mapsMu *sync.Mutex
	base   renderer.Texture
	sub    renderer.Texture
}

var _ NormalBlending = &normalBlending{}

// NewNormalBlending creates the normal blending pass with no normal maps set.
//
// Returns:
//   - NormalBlending: the pass, enabled but inactive until both maps are set
func NewNormalBlending() NormalBlending {
	return &normalBlending{
		BasePass: NewBasePass(KindNormalBlending.String(), KindNormalBlending,
			[]render_target.Descriptor{{Label: "NormalBlending", Format: common.TextureFormatRGBA16F, Attachments: []string{"Output"}}},
			map[string][]float32{
				"strength":       {1},
				"subScale":       {4},
				"lightDirection": {0.3, 0.5, 1},
			},
		),
		mapsMu: &sync.Mutex{},
	}
}

func (n *normalBlending) Usage() Usage {
	return UsageSceneColor | UsageProducesColor
}

func (n *normalBlending) Requirements() renderer.Capabilities {
	return renderer.CapNone
}

func (n *normalBlending) Shaders() []shader.Shader {
	return []shader.Shader{normalBlendingShader}
}

func (n *normalBlending) SetNormalMaps(base, sub renderer.Texture) {
	n.mapsMu.Lock()
	defer n.mapsMu.Unlock()
	n.base, n.sub = base, sub
}

func (n *normalBlending) NormalMaps() (renderer.Texture, renderer.Texture) {
	n.mapsMu.Lock()
	defer n.mapsMu.Unlock()
	return n.base, n.sub
}

func (n *normalBlending) Active() bool {
	base, sub := n.NormalMaps()
	return n.Enabled() && base != nil && sub != nil
}

func (n *normalBlending) Render(ctx *Context) (renderer.Texture, error) {
	base, sub := n.NormalMaps()
	if base == nil || base.Released() {
		return nil, MissingInput(n.Name(), "normalMap")
	}
	if sub == nil || sub.Released() {
		return nil, MissingInput(n.Name(), "subNormalMap")
	}
	if ctx.Input == nil {
		return nil, MissingInput(n.Name(), "color")
	}
	out := n.Output(0)
	if out == nil {
		return nil, MissingInput(n.Name(), "target")
	}

	if err := ctx.Draw(ShaderNormalBlending, []renderer.Texture{ctx.Input, base, sub}, []renderer.Texture{out}, n.DrawUniforms()); err != nil {
		return nil, err
	}
	return out, nil
}
