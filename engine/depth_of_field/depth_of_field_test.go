package depth_of_field

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/camera"
	"github.com/Carmen-Shannon/oxy-fx/engine/effect"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/render_target"
	"github.com/Carmen-Shannon/oxy-fx/engine/scene"
	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	size = 16
	near = 1
	far  = 50
)

func newCamera() camera.Camera {
	return camera.NewCamera(
		camera.WithPosition([3]float32{0, 0, 10}),
		camera.WithTarget([3]float32{0, 0, 0}),
		camera.WithNear(near),
		camera.WithFar(far),
	)
}

type fixture struct {
	r    renderer.Renderer
	pool render_target.Pool
	dof  DepthOfField
}

func newFixture(t *testing.T, options ...DepthOfFieldBuilderOption) *fixture {
	t.Helper()
	r, err := renderer.NewRenderer(renderer.BackendTypeSoftware, renderer.WithWorkers(2), renderer.WithSize(size, size))
	require.NoError(t, err)
	t.Cleanup(r.Release)

	d := NewDepthOfField(options...)
	require.NoError(t, r.RegisterShaders(d.Shaders()...))
	pool := render_target.NewPool(r, size, size)
	require.NoError(t, d.Allocate(pool))
	return &fixture{r: r, pool: pool, dof: d}
}

func (f *fixture) upload(t *testing.T, label string, format common.TextureFormat, fn func(x, y int) []float32) renderer.Texture {
	t.Helper()
	tex, err := f.r.CreateTexture(label, size, size, format)
	require.NoError(t, err)
	var floats []float32
	for y := range size {
		for x := range size {
			floats = append(floats, fn(x, y)...)
		}
	}
	require.NoError(t, f.r.UploadTexture(tex, common.TextureStagingData{Floats: floats, Format: format, Width: size, Height: size}))
	return tex
}

// depthAt uploads a depth buffer holding the projected depth of distance everywhere.
func (f *fixture) depthAt(t *testing.T, distance float32) renderer.Texture {
	d := common.ProjectDepth(distance, near, far)
	return f.upload(t, "depth", common.TextureFormatR16F, func(int, int) []float32 { return []float32{d} })
}

func (f *fixture) checker(t *testing.T) renderer.Texture {
	return f.upload(t, "color", common.TextureFormatRGBA16F, func(x, y int) []float32 {
		v := float32((x + y) % 2)
		return []float32{v, v, v, 1}
	})
}

func (f *fixture) render(t *testing.T, frame scene.Frame) renderer.Texture {
	t.Helper()
	require.NoError(t, f.r.BeginFrame())
	out, err := f.dof.Render(&effect.Context{Renderer: f.r, Frame: frame, Input: frame.Color})
	require.NoError(t, f.r.EndFrame())
	require.NoError(t, err)
	return out
}

func (f *fixture) read(t *testing.T, tex renderer.Texture, x, y int) [4]float32 {
	t.Helper()
	data, err := f.r.ReadPixels(tex)
	require.NoError(t, err)
	i := (y*tex.Width() + x) * 4
	return [4]float32{data[i], data[i+1], data[i+2], data[i+3]}
}

func TestCircleOfConfusion(t *testing.T) {
	assert.Zero(t, CircleOfConfusion(10.5, 10, 50, 2, 1.5), "inside the focus range")
	assert.Greater(t, CircleOfConfusion(30, 10, 50, 2, 1.5), float32(0))
	assert.Less(t, CircleOfConfusion(3, 10, 50, 2, 1.5), float32(0))
	assert.Equal(t, float32(-1), CircleOfConfusion(0.2, 10, 70, 1, 0.5))

	wide := CircleOfConfusion(30, 10, 50, 1, 1.5)
	narrow := CircleOfConfusion(30, 10, 50, 8, 1.5)
	assert.Greater(t, wide, narrow, "a smaller f-number blurs more")
}

func TestMeasureModes(t *testing.T) {
	for _, m := range MeasureModes {
		got, err := ParseMeasureMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMeasureMode("nope")
	assert.Error(t, err)

	assert.Equal(t, AutoBoneDistance, NearestMeasureMode(0.3))
	assert.Equal(t, CameraToBoneDistance, NearestMeasureMode(0.8))
	assert.Equal(t, AutoCenterDistance, NearestMeasureMode(-4))
}

func TestSetUniformClamps(t *testing.T) {
	d := NewDepthOfField()
	d.SetUniform("focalLength", 200)
	d.SetUniform("fStop", 0)
	d.SetUniform("focusRange", 0.1)
	d.SetUniform("testMode", -1)
	d.SetUniform("focalDistance", 150)
	d.SetUniform("measureMode", 0.6)

	assert.Equal(t, []float32{70}, d.Uniform("focalLength"))
	assert.Equal(t, []float32{1}, d.Uniform("fStop"))
	assert.Equal(t, []float32{0.5}, d.Uniform("focusRange"))
	assert.Equal(t, []float32{0}, d.Uniform("testMode"))
	assert.Equal(t, []float32{100}, d.Uniform("focalDistance"))
	assert.Equal(t, FixedDistance, d.MeasureMode())

	d.SetUniform("focalLength", math32.NaN())
	assert.Equal(t, []float32{1}, d.Uniform("focalLength"))
}

func TestTargetPointIsCreatedOnce(t *testing.T) {
	d := NewDepthOfField()
	_, ok := d.Target()
	assert.False(t, ok)

	cam := newCamera()
	_, ok = d.EstimateFocalDistance(cam, nil)
	assert.False(t, ok, "center mode measures on the GPU")
	p, ok := d.Target()
	require.True(t, ok)
	assert.Equal(t, [3]float32{}, p)

	d.SetTarget(&[3]float32{1, 2, 3})
	for range 3 {
		d.EstimateFocalDistance(cam, nil)
	}
	p, _ = d.Target()
	assert.Equal(t, [3]float32{1, 2, 3}, p)

	d = NewDepthOfField(WithTargetPoint([3]float32{4, 5, 6}))
	d.EstimateFocalDistance(cam, nil)
	p, _ = d.Target()
	assert.Equal(t, [3]float32{4, 5, 6}, p)
}

func TestEstimateFocalDistanceModes(t *testing.T) {
	cam := newCamera()
	bone := &[3]float32{0, 0, 0}

	d := NewDepthOfField(WithMeasureMode(FixedDistance))
	d.SetUniform("focalDistance", 7)
	before, ok := d.EstimateFocalDistance(cam, bone)
	require.True(t, ok)
	d.SetUniform("focalLength", 12)
	d.SetUniform("fStop", 5)
	d.SetUniform("focusRange", 4)
	after, _ := d.EstimateFocalDistance(cam, bone)
	assert.Equal(t, float32(7), before)
	assert.Equal(t, before, after)

	d.SetMeasureMode(AutoBoneDistance)
	got, ok := d.EstimateFocalDistance(cam, bone)
	require.True(t, ok)
	assert.InDelta(t, 10, got, 1e-4)
	p, _ := d.Target()
	assert.Equal(t, *bone, p, "the target point follows the bone")

	moved := &[3]float32{0, 0, -5}
	got, _ = d.EstimateFocalDistance(cam, moved)
	assert.InDelta(t, 15, got, 1e-4)

	_, ok = d.EstimateFocalDistance(cam, nil)
	assert.False(t, ok, "a missing bone falls back to the center distance")

	d.SetMeasureMode(CameraToBoneDistance)
	cam.SetPosition([3]float32{3, 4, 0})
	got, ok = d.EstimateFocalDistance(cam, bone)
	require.True(t, ok)
	assert.InDelta(t, 5, got, 1e-4)
	_, ok = d.EstimateFocalDistance(cam, nil)
	assert.False(t, ok)
}

func TestBoneModesFallBackWithoutBone(t *testing.T) {
	cam := newCamera()
	for _, m := range MeasureModes {
		d := NewDepthOfField(WithMeasureMode(m))
		_, ok := d.EstimateFocalDistance(cam, nil)
		assert.Equal(t, m == FixedDistance, ok, m.String())
		assert.Equal(t, m == AutoBoneDistance || m == CameraToBoneDistance, m.tracksBone(), m.String())
	}
}

func TestExportsEveryIntermediate(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, []string{
		"DepthOfField.FocusDistance",
		"DepthOfField.CoC",
		"DepthOfField.Depth",
		"DepthOfField.CoCNear",
		"DepthOfField.FocalBlurred",
		"DepthOfField.BokehVertical",
		"DepthOfField.BokehDiagonal",
		"DepthOfField.Far",
		"DepthOfField.Output",
	}, f.dof.Exports())
	assert.Equal(t, 4, f.pool.Texture("DepthOfField.CoCNear").Width())
	assert.Equal(t, 1, f.pool.Texture("DepthOfField.FocusDistance").Width())
}

func TestRenderInFocusKeepsColor(t *testing.T) {
	f := newFixture(t, WithMeasureMode(FixedDistance))
	f.dof.SetUniform("focalDistance", 10)
	color := f.checker(t)

	out := f.render(t, scene.Frame{Camera: newCamera(), Color: color, Depth: f.depthAt(t, 10)})

	assert.InDelta(t, 10, f.read(t, f.pool.Texture("DepthOfField.FocusDistance"), 0, 0)[0], 1e-2)
	for _, p := range [][2]int{{0, 0}, {7, 8}, {8, 8}} {
		assert.Equal(t, f.read(t, color, p[0], p[1]), f.read(t, out, p[0], p[1]))
	}
}

func TestRenderOutOfFocusBlurs(t *testing.T) {
	f := newFixture(t, WithMeasureMode(FixedDistance))
	f.dof.SetUniform("focalDistance", 10)
	f.dof.SetUniform("focalLength", 50)
	f.dof.SetUniform("fStop", 2)
	color := f.checker(t)

	out := f.render(t, scene.Frame{Camera: newCamera(), Color: color, Depth: f.depthAt(t, 30)})

	coc := f.read(t, f.pool.Texture("DepthOfField.CoC"), 8, 8)[0]
	assert.Greater(t, coc, float32(0.3))
	assert.InDelta(t, 30, f.read(t, f.pool.Texture("DepthOfField.Depth"), 8, 8)[0], 0.5)

	sharp := f.read(t, color, 8, 8)
	blurred := f.read(t, out, 8, 8)
	assert.Greater(t, math32.Abs(blurred[0]-sharp[0]), float32(0.05))
	assert.InDelta(t, 1, blurred[3], 1e-3)
}

func TestRenderAutoCenterMeasuresDepth(t *testing.T) {
	f := newFixture(t)
	color := f.checker(t)
	f.render(t, scene.Frame{Camera: newCamera(), Color: color, Depth: f.depthAt(t, 30)})
	assert.InDelta(t, 30, f.read(t, f.pool.Texture("DepthOfField.FocusDistance"), 0, 0)[0], 0.5)
}

func TestRenderTestModeShowsCoC(t *testing.T) {
	f := newFixture(t, WithMeasureMode(FixedDistance))
	f.dof.SetUniform("focalDistance", 10)
	f.dof.SetUniform("focalLength", 50)
	f.dof.SetUniform("fStop", 2)
	f.dof.SetUniform("testMode", 1)
	color := f.checker(t)

	out := f.render(t, scene.Frame{Camera: newCamera(), Color: color, Depth: f.depthAt(t, 30)})
	coc := f.read(t, f.pool.Texture("DepthOfField.CoC"), 8, 8)[0]
	got := f.read(t, out, 8, 8)
	assert.InDelta(t, coc, got[0], 2e-3)
	assert.Zero(t, got[2])
}

func TestRenderWithoutDepthIsSkipped(t *testing.T) {
	f := newFixture(t)
	color := f.checker(t)
	require.NoError(t, f.r.BeginFrame())
	_, err := f.dof.Render(&effect.Context{Renderer: f.r, Frame: scene.Frame{Camera: newCamera(), Color: color}, Input: color})
	require.NoError(t, f.r.EndFrame())
	assert.ErrorIs(t, err, effect.ErrMissingInput)
}
