package effect

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/render_target"
	"github.com/Carmen-Shannon/oxy-fx/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const delta = 2e-3

type fixture struct {
	r    renderer.Renderer
	pool render_target.Pool
	w, h int
}

func newFixture(t *testing.T, w, h int, passes ...Pass) *fixture {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.BackendTypeSoftware, renderer.WithWorkers(2), renderer.WithSize(w, h))
	require.NoError(t, err)
	t.Cleanup(r.Release)
	for _, p := range passes {
		require.NoError(t, r.RegisterShaders(p.Shaders()...))
	}
	return &fixture{r: r, pool: render_target.NewPool(r, w, h), w: w, h: h}
}

// texture uploads an RGBA16F texture produced by fn for every pixel.
func (f *fixture) texture(t *testing.T, label string, fn func(x, y int) [4]float32) renderer.Texture {
	t.Helper()
	tex, err := f.r.CreateTexture(label, f.w, f.h, common.TextureFormatRGBA16F)
	require.NoError(t, err)
	floats := make([]float32, 0, f.w*f.h*4)
	for y := range f.h {
		for x := range f.w {
			v := fn(x, y)
			floats = append(floats, v[:]...)
		}
	}
	require.NoError(t, f.r.UploadTexture(tex, common.TextureStagingData{
		Floats: floats,
		Format: common.TextureFormatRGBA16F,
		Width:  uint32(f.w),
		Height: uint32(f.h),
	}))
	return tex
}

func solid(v [4]float32) func(int, int) [4]float32 {
	return func(int, int) [4]float32 { return v }
}

func (f *fixture) render(t *testing.T, p Pass, frame scene.Frame, input renderer.Texture) (renderer.Texture, error) {
	t.Helper()
	require.NoError(t, f.r.BeginFrame())
	out, err := p.Render(&Context{Renderer: f.r, Frame: frame, Input: input})
	require.NoError(t, f.r.EndFrame())
	return out, err
}

func (f *fixture) pixel(t *testing.T, tex renderer.Texture, x, y int) [4]float32 {
	t.Helper()
	data, err := f.r.ReadPixels(tex)
	require.NoError(t, err)
	i := (y*tex.Width() + x) * 4
	return [4]float32{data[i], data[i+1], data[i+2], data[i+3]}
}

func assertPixel(t *testing.T, want, got [4]float32) {
	t.Helper()
	for i := range 4 {
		assert.InDelta(t, want[i], got[i], delta, "channel %d of %v", i, got)
	}
}

func TestKindOrderAndNames(t *testing.T) {
	assert.Less(t, KindOutline, KindNormalBlending)
	assert.Less(t, KindNormalBlending, KindDepthOfField)
	assert.Less(t, KindDepthOfField, KindBloom)
	assert.Less(t, KindBloom, KindDebug)
	assert.Equal(t, "TextureDebug", KindDebug.String())
	assert.True(t, (UsageSceneColor | UsageProducesColor).Has(UsageSceneColor))
	assert.False(t, UsageProducesColor.Has(UsageSceneDepth))
}

func TestBasePassUniformsAreCopies(t *testing.T) {
	p := NewOutline()
	u := p.Uniforms()
	u["thickness"][0] = 99
	assert.Equal(t, []float32{2}, p.Uniform("thickness"))

	p.SetUniform("thickness", 4)
	assert.Equal(t, []float32{4}, p.Uniform("thickness"))
	assert.Nil(t, p.Exports())
}

func TestAllocateRollsBackOnFailure(t *testing.T) {
	b := NewBloom()
	f := newFixture(t, 64, 64, b)
	_, err := f.pool.Allocate("squatter", render_target.Descriptor{Label: "Bloom", Attachments: []string{"Up0"}})
	require.NoError(t, err)

	require.Error(t, b.Allocate(f.pool))
	assert.False(t, b.Allocated())
	assert.Equal(t, []string{"Bloom.Up0"}, f.pool.Names())
}

func TestOutlineDrawsEdgeOutsideMask(t *testing.T) {
	o := NewOutline()
	f := newFixture(t, 16, 16, o)
	require.NoError(t, o.Allocate(f.pool))
	assert.Equal(t, []string{"Outline"}, o.Exports())

	color := f.texture(t, "color", solid([4]float32{0.2, 0.2, 0.2, 1}))
	mask := f.texture(t, "mask", func(x, y int) [4]float32 {
		if x >= 6 && x <= 9 && y >= 6 && y <= 9 {
			return [4]float32{1, 1, 1, 1}
		}
		return [4]float32{0, 0, 0, 1}
	})

	out, err := f.render(t, o, scene.Frame{Color: color, Mask: mask}, color)
	require.NoError(t, err)

	assertPixel(t, [4]float32{1, 0.5, 0, 1}, f.pixel(t, out, 5, 7))
	assertPixel(t, [4]float32{0.2, 0.2, 0.2, 1}, f.pixel(t, out, 7, 7))
	assertPixel(t, [4]float32{0.2, 0.2, 0.2, 1}, f.pixel(t, out, 0, 0))
}

func TestOutlineSkipsWithoutMask(t *testing.T) {
	o := NewOutline()
	f := newFixture(t, 8, 8, o)
	require.NoError(t, o.Allocate(f.pool))
	color := f.texture(t, "color", solid([4]float32{0, 0, 0, 1}))

	_, err := f.render(t, o, scene.Frame{Color: color}, color)
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestNormalBlendingNeedsBothMaps(t *testing.T) {
	nb := NewNormalBlending()
	assert.False(t, nb.Active())

	f := newFixture(t, 8, 8, nb)
	flat := f.texture(t, "flat", solid([4]float32{0.5, 0.5, 1, 1}))
	nb.SetNormalMaps(flat, nil)
	assert.False(t, nb.Active())
	nb.SetNormalMaps(flat, flat)
	assert.True(t, nb.Active())
	nb.SetEnabled(false)
	assert.False(t, nb.Active())
}

func TestNormalBlendingShading(t *testing.T) {
	nb := NewNormalBlending()
	f := newFixture(t, 8, 8, nb)
	require.NoError(t, nb.Allocate(f.pool))
	assert.Equal(t, []string{"NormalBlending.Output"}, nb.Exports())

	color := f.texture(t, "color", solid([4]float32{0.4, 0.4, 0.4, 1}))
	flat := f.texture(t, "flat", solid([4]float32{0.5, 0.5, 1, 1}))
	nb.SetNormalMaps(flat, flat)

	nb.SetUniform("lightDirection", 0, 0, 1)
	out, err := f.render(t, nb, scene.Frame{Color: color}, color)
	require.NoError(t, err)
	assertPixel(t, [4]float32{0.4, 0.4, 0.4, 1}, f.pixel(t, out, 3, 3))

	nb.SetUniform("lightDirection", 1, 0, 0)
	out, err = f.render(t, nb, scene.Frame{Color: color}, color)
	require.NoError(t, err)
	assertPixel(t, [4]float32{0, 0, 0, 1}, f.pixel(t, out, 3, 3))

	nb.SetUniform("strength", 0)
	out, err = f.render(t, nb, scene.Frame{Color: color}, color)
	require.NoError(t, err)
	assertPixel(t, [4]float32{0.4, 0.4, 0.4, 1}, f.pixel(t, out, 3, 3))
}

func TestBloomTargetsAndExports(t *testing.T) {
	b := NewBloom()
	f := newFixture(t, 64, 64, b)
	require.NoError(t, b.Allocate(f.pool))

	exports := b.Exports()
	require.Len(t, exports, 2*BloomLevels)
	assert.Equal(t, "Bloom.Bright", exports[0])
	assert.Equal(t, "Bloom.Down4", exports[BloomLevels-1])
	assert.Equal(t, "Bloom.Up0", exports[2*BloomLevels-2])
	assert.Equal(t, "Bloom.Output", exports[2*BloomLevels-1])

	assert.Equal(t, 2, f.pool.Texture("Bloom.Down4").Width())
	assert.Equal(t, 32, f.pool.Texture("Bloom.Up0").Width())

	b.Release()
	assert.False(t, b.Allocated())
	assert.Empty(t, f.pool.Names())
}

func TestBloomBelowThresholdIsIdentity(t *testing.T) {
	b := NewBloom()
	f := newFixture(t, 32, 32, b)
	require.NoError(t, b.Allocate(f.pool))

	color := f.texture(t, "color", solid([4]float32{0.3, 0.3, 0.3, 1}))
	out, err := f.render(t, b, scene.Frame{Color: color}, color)
	require.NoError(t, err)
	assertPixel(t, [4]float32{0.3, 0.3, 0.3, 1}, f.pixel(t, out, 16, 16))
}

func TestBloomAddsBrightLight(t *testing.T) {
	b := NewBloom()
	f := newFixture(t, 32, 32, b)
	require.NoError(t, b.Allocate(f.pool))

	color := f.texture(t, "color", solid([4]float32{1, 1, 1, 1}))
	b.SetUniform("intensity", 0.5)
	out, err := f.render(t, b, scene.Frame{Color: color}, color)
	require.NoError(t, err)
	assertPixel(t, [4]float32{1.5, 1.5, 1.5, 1}, f.pixel(t, out, 16, 16))
}

func TestTextureDebugChannels(t *testing.T) {
	d := NewTextureDebug()
	f := newFixture(t, 8, 8, d)
	require.NoError(t, d.Allocate(f.pool))
	assert.Nil(t, d.Exports())
	assert.False(t, d.Active())

	h, err := f.pool.Allocate("probe", render_target.Descriptor{Label: "Probe", Format: common.TextureFormatRGBA16F})
	require.NoError(t, err)
	rt, err := f.pool.Get(h)
	require.NoError(t, err)
	floats := make([]float32, 0, 8*8*4)
	for range 8 * 8 {
		floats = append(floats, 0.2, 0.4, 0.6, 0.8)
	}
	require.NoError(t, f.r.UploadTexture(rt.Texture(), common.TextureStagingData{Floats: floats, Format: common.TextureFormatRGBA16F, Width: 8, Height: 8}))

	cases := []struct {
		name     string
		channels [4]float32
		want     [4]float32
	}{
		{"rgba", [4]float32{1, 1, 1, 1}, [4]float32{0.2, 0.4, 0.6, 0.8}},
		{"g", [4]float32{0, 1, 0, 0}, [4]float32{0.4, 0.4, 0.4, 1}},
		{"a", [4]float32{0, 0, 0, 1}, [4]float32{0.8, 0.8, 0.8, 1}},
		{"rb", [4]float32{1, 0, 1, 0}, [4]float32{0.2, 0, 0.6, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d.SetSelection("Probe", tc.channels)
			require.True(t, d.Active())
			out, err := f.render(t, d, scene.Frame{}, nil)
			require.NoError(t, err)
			got := f.pixel(t, out, 4, 4)
			for i := range 4 {
				assert.InDelta(t, tc.want[i], got[i], 1.0/255+delta)
			}
		})
	}

	d.SetSelection("Missing", [4]float32{1, 1, 1, 1})
	_, err = f.render(t, d, scene.Frame{}, nil)
	assert.ErrorIs(t, err, ErrMissingInput)
}

func TestKernelsMatchReferenceValues(t *testing.T) {
	assert.InDelta(t, 1, luminance([4]float32{1, 1, 1, 0}), 1e-6)
	n := blendRNM([3]float32{0, 0, 1}, [3]float32{0, 0, 1})
	assert.InDelta(t, 1, n[2], 1e-6)
	assert.InDelta(t, 0.25, fract(-0.75), 1e-6)

	var sum float32
	for _, row := range tentWeights {
		for _, w := range row {
			sum += w
		}
	}
	assert.InDelta(t, 1, sum, 1e-6)
}

func TestBloomThresholdWithoutSmoothing(t *testing.T) {
	b := NewBloom()
	f := newFixture(t, 32, 32, b)
	require.NoError(t, b.Allocate(f.pool))
	b.SetUniform("luminanceThreshold", 0.5)
	b.SetUniform("luminanceSmoothing", 0)
	b.SetUniform("intensity", 0.5)

	above := f.texture(t, "above", solid([4]float32{0.6, 0.6, 0.6, 1}))
	out, err := f.render(t, b, scene.Frame{Color: above}, above)
	require.NoError(t, err)
	assertPixel(t, [4]float32{0.9, 0.9, 0.9, 1}, f.pixel(t, out, 16, 16))

	below := f.texture(t, "below", solid([4]float32{0.4, 0.4, 0.4, 1}))
	out, err = f.render(t, b, scene.Frame{Color: below}, below)
	require.NoError(t, err)
	assertPixel(t, [4]float32{0.4, 0.4, 0.4, 1}, f.pixel(t, out, 16, 16))

	found := false
	for _, s := range b.Shaders() {
		if s.Key() != ShaderBloomThreshold {
			continue
		}
		found = true
		assert.Contains(t, s.Source(), "step(threshold, l)", "the GPU path hard-steps an empty smoothing range")
		assert.Contains(t, string(s.KageSource()), "step(LuminanceThreshold, l)")
	}
	assert.True(t, found)
}
