package scene

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRenderer(t *testing.T) renderer.Renderer {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.BackendTypeSoftware, renderer.WithWorkers(2), renderer.WithSize(32, 32))
	require.NoError(t, err)
	t.Cleanup(r.Release)
	return r
}

func read(t *testing.T, r renderer.Renderer, tex renderer.Texture, x, y int) [4]float32 {
	t.Helper()
	data, err := r.ReadPixels(tex)
	require.NoError(t, err)
	i := (y*tex.Width() + x) * 4
	return [4]float32{data[i], data[i+1], data[i+2], data[i+3]}
}

func TestFrameComplete(t *testing.T) {
	assert.False(t, Frame{}.Complete())
	s := NewSyntheticScene(WithWorkers(2))
	t.Cleanup(s.Release)
	r := newRenderer(t)
	frame, err := s.Render(r, 32, 32)
	require.NoError(t, err)
	assert.True(t, frame.Complete())
}

func TestRenderProducesBuffers(t *testing.T) {
	s := NewSyntheticScene(WithWorkers(2), WithNormalMapSize(16))
	t.Cleanup(s.Release)
	r := newRenderer(t)

	frame, err := s.Render(r, 32, 32)
	require.NoError(t, err)
	require.NotNil(t, frame.Mask)
	require.NotNil(t, frame.Bone)
	assert.Equal(t, [3]float32{0, 0, 0}, *frame.Bone)
	assert.Equal(t, common.TextureFormatRGBA16F, frame.Color.Format())
	assert.Equal(t, common.TextureFormatR16F, frame.Depth.Format())

	// the selected sphere sits at the center of the view
	center := read(t, r, frame.Depth, 16, 16)[0]
	want := common.ProjectDepth(s.Camera().ViewDepth([3]float32{0, 0, 0})-1, 0.5, 60)
	assert.InDelta(t, want, center, 0.02)
	assert.Equal(t, float32(1), read(t, r, frame.Mask, 16, 16)[0])

	// the top row looks at the sky
	assert.Equal(t, float32(1), read(t, r, frame.Depth, 16, 0)[0])
	assert.Zero(t, read(t, r, frame.Mask, 16, 0)[0])
	assert.Equal(t, float32(1), read(t, r, frame.Color, 16, 0)[3])

	for _, name := range []string{TextureNormal, TextureSubNormal} {
		tex := s.Texture(name)
		require.NotNil(t, tex, name)
		assert.Equal(t, 16, tex.Width())
		n := read(t, r, tex, 8, 8)
		assert.Greater(t, n[2], float32(0.5), "normals point out of the surface")
	}
}

func TestSelectionControlsMask(t *testing.T) {
	s := NewSyntheticScene(WithWorkers(1), WithSelected(false))
	t.Cleanup(s.Release)
	assert.False(t, s.Selected())
	r := newRenderer(t)

	frame, err := s.Render(r, 16, 16)
	require.NoError(t, err)
	assert.Nil(t, frame.Mask)

	s.SetSelected(true)
	frame, err = s.Render(r, 16, 16)
	require.NoError(t, err)
	assert.NotNil(t, frame.Mask)
}

func TestRenderRecreatesTextures(t *testing.T) {
	s := NewSyntheticScene(WithWorkers(2))
	t.Cleanup(s.Release)
	r := newRenderer(t)

	first, err := s.Render(r, 16, 16)
	require.NoError(t, err)
	normal := s.Texture(TextureNormal)

	again, err := s.Render(r, 16, 16)
	require.NoError(t, err)
	assert.Same(t, first.Color, again.Color, "same size reuses textures")

	resized, err := s.Render(r, 24, 12)
	require.NoError(t, err)
	assert.True(t, first.Color.Released())
	assert.Equal(t, 24, resized.Color.Width())
	assert.Same(t, normal, s.Texture(TextureNormal), "normal maps survive a resize")
	assert.Equal(t, float32(2), s.Camera().Aspect())

	other := newRenderer(t)
	_, err = s.Render(other, 24, 12)
	require.NoError(t, err)
	assert.True(t, normal.Released())
	assert.NotSame(t, normal, s.Texture(TextureNormal))
}

func TestAdvanceOrbitsLight(t *testing.T) {
	s := NewSyntheticScene(WithWorkers(1)).(*syntheticScene)
	t.Cleanup(s.Release)
	before := s.spheres[3].center
	s.Advance(1)
	after := s.spheres[3].center
	assert.NotEqual(t, before, after)
	assert.InDelta(t, 2, common.Distance3([3]float32{0, after[1], 0}, after), 1e-4)
}
