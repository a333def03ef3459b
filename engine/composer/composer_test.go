package composer

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/camera"
	"github.com/Carmen-Shannon/oxy-fx/engine/depth_of_field"
	"github.com/Carmen-Shannon/oxy-fx/engine/effect"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-fx/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const size = 16

// stubPass is a pass with fixed requirements that never draws.
type stubPass struct {
	*effect.BasePass
	requires renderer.Capabilities
}

func newStub(name string, kind effect.Kind, requires renderer.Capabilities) *stubPass {
	return &stubPass{BasePass: effect.NewBasePass(name, kind, nil, nil), requires: requires}
}

func (s *stubPass) Usage() effect.Usage                 { return effect.UsageProducesColor }
func (s *stubPass) Requirements() renderer.Capabilities { return s.requires }
func (s *stubPass) Shaders() []shader.Shader            { return nil }
func (s *stubPass) Active() bool                        { return s.Enabled() }
func (s *stubPass) Render(ctx *effect.Context) (renderer.Texture, error) {
	return ctx.Input, nil
}

func newRenderer(t *testing.T, mask renderer.Capabilities) renderer.Renderer {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.BackendTypeSoftware,
		renderer.WithWorkers(2),
		renderer.WithSize(size, size),
		renderer.WithCapabilityMask(mask),
	)
	require.NoError(t, err)
	t.Cleanup(r.Release)
	return r
}

func newFrame(t *testing.T, r renderer.Renderer) scene.Frame {
	t.Helper()
	color, err := r.CreateTexture("scene.color", size, size, common.TextureFormatRGBA8)
	require.NoError(t, err)
	pixels := make([]byte, size*size*4)
	for i := range pixels {
		pixels[i] = 200
	}
	require.NoError(t, r.UploadTexture(color, common.TextureStagingData{Pixels: pixels, Format: common.TextureFormatRGBA8, Width: size, Height: size}))

	depth, err := r.CreateTexture("scene.depth", size, size, common.TextureFormatR16F)
	require.NoError(t, err)
	d := make([]float32, size*size)
	for i := range d {
		d[i] = common.ProjectDepth(10, 1, 50)
	}
	require.NoError(t, r.UploadTexture(depth, common.TextureStagingData{Floats: d, Format: common.TextureFormatR16F, Width: size, Height: size}))

	cam := camera.NewCamera(camera.WithPosition([3]float32{0, 0, 10}), camera.WithNear(1), camera.WithFar(50))
	return scene.Frame{Camera: cam, Color: color, Depth: depth}
}

func TestBuildOrdersByKind(t *testing.T) {
	passes := []effect.Pass{
		newStub("debug", effect.KindDebug, renderer.CapNone),
		newStub("bloom", effect.KindBloom, renderer.CapNone),
		newStub("dof", effect.KindDepthOfField, renderer.CapCompute),
		newStub("outline", effect.KindOutline, renderer.CapNone),
		newStub("nb", effect.KindNormalBlending, renderer.CapNone),
	}
	chain, err := Build(passes, renderer.CapAll)
	require.NoError(t, err)
	assert.Equal(t, VariantFull, chain.Variant)
	assert.Equal(t, []string{"outline", "nb", "dof", "bloom", "debug"}, chain.Names())

	again, err := Build(passes, renderer.CapAll)
	require.NoError(t, err)
	assert.Equal(t, chain.Names(), again.Names())
}

func TestBuildSkipsDisabledAndDropsUnsupported(t *testing.T) {
	bloom := newStub("bloom", effect.KindBloom, renderer.CapNone)
	dof := newStub("dof", effect.KindDepthOfField, renderer.CapCompute|renderer.CapMultipleRenderTargets)
	outline := newStub("outline", effect.KindOutline, renderer.CapNone)
	outline.SetEnabled(false)

	chain, err := Build([]effect.Pass{bloom, dof, outline}, renderer.CapAll)
	require.NoError(t, err)
	assert.Equal(t, []string{"dof", "bloom"}, chain.Names())

	chain, err = Build([]effect.Pass{bloom, dof, outline}, renderer.CapFloatTargets)
	require.NoError(t, err)
	assert.Equal(t, VariantReduced, chain.Variant)
	assert.Equal(t, []string{"bloom"}, chain.Names())
	require.Len(t, chain.Dropped, 1)
	assert.Equal(t, "dof", chain.Dropped[0].Name())

	_, err = Build([]effect.Pass{bloom, newStub("bloom", effect.KindBloom, renderer.CapNone)}, renderer.CapAll)
	assert.Error(t, err)
}

func TestVariantFor(t *testing.T) {
	assert.Equal(t, VariantFull, VariantFor(renderer.CapAll))
	assert.Equal(t, VariantFull, VariantFor(renderer.CapCompute|renderer.CapMultipleRenderTargets))
	assert.Equal(t, VariantReduced, VariantFor(renderer.CapCompute))
	assert.Equal(t, VariantReduced, VariantFor(renderer.CapNone))
}

func TestChannelMask(t *testing.T) {
	m, err := ParseChannelMask("GA")
	require.NoError(t, err)
	assert.Equal(t, ChannelG|ChannelA, m)
	assert.Equal(t, "ga", m.String())
	assert.Equal(t, [4]float32{0, 1, 0, 1}, m.Vector())

	m, err = ParseChannelMask("bgr")
	require.NoError(t, err)
	assert.Equal(t, ChannelRGB, m)

	for _, bad := range []string{"", "rr", "x", "rgbx"} {
		_, err := ParseChannelMask(bad)
		assert.Error(t, err, bad)
	}
	assert.Equal(t, "rgba", ChannelRGBA.String())
	assert.Equal(t, "none", NoSelection().String())
	assert.Equal(t, "DepthOfField.CoC:r", DebugSelection{Texture: "DepthOfField.CoC", Channels: ChannelR}.String())
}

func TestRenderWithoutRenderer(t *testing.T) {
	c := NewComposer()
	_, err := c.Render(scene.Frame{})
	assert.ErrorIs(t, err, ErrNoRenderer)
	assert.ErrorIs(t, c.Rebuild(), ErrNoRenderer)
}

func TestSetRendererChoosesVariant(t *testing.T) {
	bloom := effect.NewBloom()
	dof := depth_of_field.NewDepthOfField()
	c := NewComposer(WithPasses(bloom, dof), WithViewport(size, size))

	require.NoError(t, c.SetRenderer(newRenderer(t, renderer.CapAll)))
	assert.Equal(t, VariantFull, c.Variant())
	assert.Equal(t, []string{"DepthOfField", "Bloom"}, c.Chain().Names())
	assert.Equal(t, common.TextureFormatRGBA16F, c.Pool().Texture("Bloom.Output").Format())

	reduced := newRenderer(t, renderer.CapFloatTargets)
	require.NoError(t, c.SetRenderer(reduced))
	assert.Equal(t, VariantReduced, c.Variant())
	assert.Equal(t, []string{"Bloom"}, c.Chain().Names())
	assert.False(t, dof.Allocated())
	assert.Equal(t, common.TextureFormatRGBA8, c.Pool().Texture("Bloom.Output").Format())

	out, err := c.Render(newFrame(t, reduced))
	require.NoError(t, err)
	assert.Equal(t, "Bloom.Output", out.Label())
}

func TestDisabledPassReleasesTargets(t *testing.T) {
	bloom := effect.NewBloom()
	c := NewComposer(WithPasses(bloom), WithViewport(size, size))
	r := newRenderer(t, renderer.CapAll)
	require.NoError(t, c.SetRenderer(r))
	frame := newFrame(t, r)

	_, err := c.Render(frame)
	require.NoError(t, err)
	assert.Contains(t, c.Pool().Names(), "Bloom.Bright")

	bloom.SetEnabled(false)
	out, err := c.Render(frame)
	require.NoError(t, err)
	assert.Equal(t, frame.Color, out, "an empty chain passes the scene color through")
	assert.Empty(t, c.Pool().Names())
	assert.False(t, bloom.Allocated())
}

func TestMissingInputSkipsPass(t *testing.T) {
	outline := effect.NewOutline()
	c := NewComposer(WithPasses(outline), WithViewport(size, size))
	r := newRenderer(t, renderer.CapAll)
	require.NoError(t, c.SetRenderer(r))
	frame := newFrame(t, r)

	out, err := c.Render(frame)
	require.NoError(t, err)
	assert.Equal(t, frame.Color, out)
}

func TestDebugSelectionLifecycle(t *testing.T) {
	dof := depth_of_field.NewDepthOfField(depth_of_field.WithMeasureMode(depth_of_field.FixedDistance))
	c := NewComposer(WithPasses(dof), WithViewport(size, size))
	r := newRenderer(t, renderer.CapAll)
	require.NoError(t, c.SetRenderer(r))
	frame := newFrame(t, r)

	assert.True(t, c.Debug().None())
	assert.Contains(t, c.DebugTextures(), "DepthOfField.CoC")
	assert.Contains(t, c.DebugTextures(), "DepthOfField.FocusDistance")

	err := c.SetDebug(DebugSelection{Texture: "Bloom.Output", Channels: ChannelR})
	assert.ErrorIs(t, err, ErrUnknownTexture)
	assert.True(t, c.Debug().None())

	sel := DebugSelection{Texture: "DepthOfField.FocusDistance", Channels: ChannelR}
	require.NoError(t, c.SetDebug(sel))
	assert.Equal(t, sel, c.Debug())
	assert.Equal(t, []string{"DepthOfField", "TextureDebug"}, c.Chain().Names())

	out, err := c.Render(frame)
	require.NoError(t, err)
	assert.Equal(t, "TextureDebug", out.Label())
	px, err := r.ReadPixels(out)
	require.NoError(t, err)
	assert.InDelta(t, 1, px[0], 1e-3, "a focal distance of 10 saturates the 8-bit view")

	require.NoError(t, c.Resize(size*2, size*2))
	assert.Equal(t, sel, c.Debug(), "a resize keeps a selection whose texture is rebuilt")
	assert.Equal(t, size*2, c.Pool().Texture("DepthOfField.Output").Width())

	dof.SetEnabled(false)
	_, err = c.Render(frame)
	require.NoError(t, err)
	assert.True(t, c.Debug().None(), "releasing the texture resets the selection")
	assert.NotContains(t, c.DebugTextures(), "DepthOfField.CoC")

	_, err = c.Render(frame)
	require.NoError(t, err)
	assert.Empty(t, c.Chain().Names())
}

func TestAddRejectsDuplicatesAndRemoveReleases(t *testing.T) {
	c := NewComposer(WithViewport(size, size))
	bloom := effect.NewBloom()
	require.NoError(t, c.Add(bloom))
	assert.Error(t, c.Add(effect.NewBloom()))
	assert.Same(t, bloom, c.Pass("Bloom"))

	require.NoError(t, c.SetRenderer(newRenderer(t, renderer.CapAll)))
	assert.True(t, bloom.Allocated())
	c.Remove("Bloom")
	assert.False(t, bloom.Allocated())
	assert.Nil(t, c.Pass("Bloom"))
	require.NoError(t, c.Rebuild())
	assert.Empty(t, c.Chain().Names())
}

func TestChainOrderForEveryEnableSet(t *testing.T) {
	all := []*stubPass{
		newStub("debug", effect.KindDebug, renderer.CapNone),
		newStub("bloom", effect.KindBloom, renderer.CapNone),
		newStub("dof", effect.KindDepthOfField, renderer.CapNone),
		newStub("nb", effect.KindNormalBlending, renderer.CapNone),
		newStub("outline", effect.KindOutline, renderer.CapNone),
	}
	order := []string{"outline", "nb", "dof", "bloom", "debug"}
	passes := make([]effect.Pass, len(all))
	for i, p := range all {
		passes[i] = p
	}

	for set := range 1 << len(all) {
		enabled := map[string]bool{}
		for i, p := range all {
			on := set&(1<<i) != 0
			p.SetEnabled(on)
			enabled[p.Name()] = on
		}
		var want []string
		for _, name := range order {
			if enabled[name] {
				want = append(want, name)
			}
		}

		chain, err := Build(passes, renderer.CapAll)
		require.NoError(t, err)
		assert.Equal(t, len(want), len(chain.Passes), "set %05b", set)
		if len(want) > 0 {
			assert.Equal(t, want, chain.Names(), "set %05b", set)
		}
	}
}

func readPixels(t *testing.T, r renderer.Renderer, tex renderer.Texture) []float32 {
	t.Helper()
	px, err := r.ReadPixels(tex)
	require.NoError(t, err)
	return px
}

func TestFocusedDimSceneIsUnchanged(t *testing.T) {
	bloom := effect.NewBloom()
	dof := depth_of_field.NewDepthOfField(depth_of_field.WithMeasureMode(depth_of_field.FixedDistance))
	bloom.SetUniform("intensity", 3)
	dof.SetUniform("focalLength", 50)
	dof.SetUniform("fStop", 4)
	dof.SetUniform("focalDistance", 10)

	c := NewComposer(WithPasses(bloom, dof), WithViewport(size, size))
	r := newRenderer(t, renderer.CapAll)
	require.NoError(t, c.SetRenderer(r))
	frame := newFrame(t, r)

	out, err := c.Render(frame)
	require.NoError(t, err)
	assert.Equal(t, []string{"DepthOfField", "Bloom"}, c.Chain().Names())

	// everything sits at the focal distance and below the bloom threshold
	assert.InDeltaSlice(t, readPixels(t, r, frame.Color), readPixels(t, r, out), 2e-3)
}

func newNormalMap(t *testing.T, r renderer.Renderer, label string, fn func(x, y int) [4]byte) renderer.Texture {
	t.Helper()
	tex, err := r.CreateTexture(label, size, size, common.TextureFormatRGBA8)
	require.NoError(t, err)
	pixels := make([]byte, 0, size*size*4)
	for y := range size {
		for x := range size {
			v := fn(x, y)
			pixels = append(pixels, v[:]...)
		}
	}
	require.NoError(t, r.UploadTexture(tex, common.TextureStagingData{Pixels: pixels, Format: common.TextureFormatRGBA8, Width: size, Height: size}))
	return tex
}

func TestDisabledNormalBlendingMatchesChainWithoutIt(t *testing.T) {
	render := func(withNormals bool) []float32 {
		r := newRenderer(t, renderer.CapAll)
		frame := newFrame(t, r)
		bloom := effect.NewBloom()
		passes := []effect.Pass{bloom}
		var nb effect.NormalBlending
		if withNormals {
			nb = effect.NewNormalBlending()
			nb.SetNormalMaps(
				newNormalMap(t, r, "normal", func(x, _ int) [4]byte { return [4]byte{byte(64 + 8*x), 128, 220, 255} }),
				newNormalMap(t, r, "subNormal", func(_, y int) [4]byte { return [4]byte{128, byte(64 + 8*y), 220, 255} }),
			)
			passes = append(passes, nb)
		}
		c := NewComposer(WithPasses(passes...), WithViewport(size, size))
		require.NoError(t, c.SetRenderer(r))

		if withNormals {
			out, err := c.Render(frame)
			require.NoError(t, err)
			assert.Equal(t, []string{"NormalBlending", "Bloom"}, c.Chain().Names())
			assert.NotEqual(t, readPixels(t, r, frame.Color), readPixels(t, r, out), "normal maps shade the scene")
			nb.SetEnabled(false)
		}

		out, err := c.Render(frame)
		require.NoError(t, err)
		assert.Equal(t, []string{"Bloom"}, c.Chain().Names())
		return readPixels(t, r, out)
	}

	assert.Equal(t, render(false), render(true))
}
