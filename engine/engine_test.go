package engine

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/composer"
	"github.com/Carmen-Shannon/oxy-fx/engine/params"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer"
	"github.com/Carmen-Shannon/oxy-fx/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const size = 24

func newEngine(t *testing.T, options ...EngineBuilderOption) Engine {
	t.Helper()
	options = append([]EngineBuilderOption{
		WithViewport(size, size),
		WithRendererOptions(renderer.WithWorkers(2)),
		WithScene(scene.NewSyntheticScene(scene.WithWorkers(2), scene.WithNormalMapSize(16))),
	}, options...)
	e := NewEngine(options...)
	t.Cleanup(e.Release)
	return e
}

func initEngine(t *testing.T, e Engine) {
	t.Helper()
	require.NoError(t, <-e.Init(context.Background()))
	require.True(t, e.Ready())
}

func TestFrameBeforeInit(t *testing.T) {
	e := newEngine(t)
	assert.False(t, e.Ready())
	_, err := e.Frame(0.016)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestInitCancelled(t *testing.T) {
	e := newEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, <-e.Init(ctx), context.Canceled)
	assert.False(t, e.Ready())
}

func TestFrameRunsChain(t *testing.T) {
	e := newEngine(t)
	initEngine(t, e)

	out, err := e.Frame(0.016)
	require.NoError(t, err)
	assert.Equal(t, []string{"Outline", "DepthOfField", "Bloom"}, e.Composer().Chain().Names())
	assert.Equal(t, "Bloom.Output", out.Label())
	assert.Same(t, out, e.Renderer().Presented())
	assert.Equal(t, composer.VariantFull, e.Composer().Variant())
}

func TestParametersReachPasses(t *testing.T) {
	e := newEngine(t)
	initEngine(t, e)

	require.NoError(t, e.ApplyPreset(params.Preset{
		"show outline":      false,
		"bloom intensity":   2.5,
		"bokeh measureMode": "Fix distance",
		"bokeh fStop":       100,
	}))
	c := e.Composer()
	assert.False(t, c.Pass("Outline").Enabled())
	assert.Equal(t, []float32{2.5}, c.Pass("Bloom").Uniform("intensity"))
	assert.Equal(t, []float32{0.5}, c.Pass("DepthOfField").Uniform("measureMode"))
	assert.Equal(t, []float32{8}, c.Pass("DepthOfField").Uniform("fStop"))

	_, err := e.Frame(0.016)
	require.NoError(t, err)
	assert.Equal(t, []string{"DepthOfField", "Bloom"}, c.Chain().Names())

	assert.ErrorIs(t, e.SetParameter("nope", params.Bool(true)), params.ErrUnknownParameter)
}

func TestNormalMapsResolveFromScene(t *testing.T) {
	e := newEngine(t)
	initEngine(t, e)
	_, err := e.Frame(0.016)
	require.NoError(t, err)

	require.NoError(t, e.SetParameter(params.NormalMap, params.Text(scene.TextureNormal)))
	require.NoError(t, e.SetParameter(params.SubNormalMap, params.Text(scene.TextureSubNormal)))
	_, err = e.Frame(0.016)
	require.NoError(t, err)
	assert.Contains(t, e.Composer().Chain().Names(), "NormalBlending")

	require.NoError(t, e.SetParameter(params.SubNormalMap, params.Text(params.NoneTexture)))
	_, err = e.Frame(0.016)
	require.NoError(t, err)
	assert.NotContains(t, e.Composer().Chain().Names(), "NormalBlending")
}

func TestDebugParameters(t *testing.T) {
	e := newEngine(t)
	initEngine(t, e)
	_, err := e.Frame(0.016)
	require.NoError(t, err)

	require.NoError(t, e.SetParameter(params.DebugChannel, params.Text("g")))
	require.NoError(t, e.SetParameter(params.DebugTexture, params.Text("DepthOfField.CoC")))
	assert.Equal(t, composer.DebugSelection{Texture: "DepthOfField.CoC", Channels: composer.ChannelG}, e.Composer().Debug())

	out, err := e.Frame(0.016)
	require.NoError(t, err)
	assert.Equal(t, "TextureDebug", out.Label())

	require.NoError(t, e.SetParameter(params.BokehEnabled, params.Bool(false)))
	_, err = e.Frame(0.016)
	require.NoError(t, err)
	assert.True(t, e.Composer().Debug().None())
	v, err := e.Params().Get(params.DebugTexture)
	require.NoError(t, err)
	assert.Equal(t, params.NoneTexture, v.Text, "the dropped selection is written back")

	require.NoError(t, e.SetParameter(params.BokehEnabled, params.Bool(true)))
	_, err = e.Frame(0.016)
	require.NoError(t, err)
	require.NoError(t, e.SetParameter(params.DebugTexture, params.Text("DepthOfField.Far")))
	assert.Equal(t, "DepthOfField.Far", e.Composer().Debug().Texture)
}

func TestSwitchBackendRebuilds(t *testing.T) {
	e := newEngine(t)
	initEngine(t, e)
	require.NoError(t, e.SetParameter(params.NormalMap, params.Text(scene.TextureNormal)))
	require.NoError(t, e.SetParameter(params.SubNormalMap, params.Text(scene.TextureSubNormal)))
	_, err := e.Frame(0.016)
	require.NoError(t, err)
	first := e.Renderer()

	err = <-e.SwitchBackend(context.Background(), renderer.BackendTypeSoftware, renderer.WithCapabilityMask(renderer.CapFloatTargets))
	require.NoError(t, err)
	assert.NotSame(t, first, e.Renderer())
	assert.Equal(t, composer.VariantReduced, e.Composer().Variant())

	out, err := e.Frame(0.016)
	require.NoError(t, err)
	assert.Equal(t, []string{"Outline", "NormalBlending", "Bloom"}, e.Composer().Chain().Names())
	assert.Equal(t, "Bloom.Output", out.Label())

	nb := e.Composer().Pass("NormalBlending")
	require.NotNil(t, nb)
	assert.Equal(t, 1, e.Params().Bindings(params.BloomIntensity))
}

func TestResizeRebuildsTargets(t *testing.T) {
	e := newEngine(t)
	initEngine(t, e)
	_, err := e.Frame(0.016)
	require.NoError(t, err)

	require.NoError(t, e.Resize(size*2, size))
	out, err := e.Frame(0.016)
	require.NoError(t, err)
	assert.Equal(t, size*2, out.Width())
	assert.Equal(t, size, out.Height())
	assert.Equal(t, size*2, e.Scene().Texture(scene.TextureColor).Width())
}

func TestSetLogger(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { SetLogger(nil) })

	e := newEngine(t)
	initEngine(t, e)
	assert.Contains(t, buf.String(), "backend ready")
	assert.Contains(t, buf.String(), "variant=full")
	assert.Same(t, Logger(), Logger())
}

func TestImportedTextures(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := range 4 {
		for x := range 4 {
			img.Set(x, y, color.NRGBA{R: 128, G: 128, B: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	e := newEngine(t, WithTextures(
		&common.ImportedTexture{Name: "flat", Data: buf.Bytes()},
		&common.ImportedTexture{Name: "broken", Data: []byte("not an image")},
	))
	initEngine(t, e)

	require.NoError(t, e.SetParameter(params.NormalMap, params.Text("flat")))
	require.NoError(t, e.SetParameter(params.SubNormalMap, params.Text("flat")))
	v, err := e.Params().Get(params.NormalMap)
	require.NoError(t, err)
	require.NotNil(t, v.Texture)
	assert.Equal(t, 4, v.Texture.Width())

	_, err = e.Frame(0.016)
	require.NoError(t, err)
	assert.Contains(t, e.Composer().Chain().Names(), "NormalBlending")

	require.NoError(t, e.SetParameter(params.DebugTexture, params.Text("broken")))
	assert.True(t, e.Composer().Debug().None())

	first := v.Texture
	require.NoError(t, <-e.SwitchBackend(context.Background(), renderer.BackendTypeSoftware))
	_, err = e.Frame(0.016)
	require.NoError(t, err)
	v, _ = e.Params().Get(params.NormalMap)
	assert.True(t, first.Released())
	assert.NotSame(t, first, v.Texture, "imported textures are uploaded to the new backend")
}

func TestRunLoopSettingsChangeWhileRunning(t *testing.T) {
	e := newEngine(t)
	initEngine(t, e)

	done := make(chan struct{})
	go func() {
		e.Run()
		close(done)
	}()

	var frames atomic.Int32
	for i := range 20 {
		e.SetRenderFrameLimit(float64(200 + i))
		e.EnableProfiler()
		e.SetRenderCallback(func(out renderer.Texture, _ float32) {
			if out != nil {
				frames.Add(1)
			}
		})
		e.DisableProfiler()
	}
	e.SetRenderFrameLimit(0)

	require.Eventually(t, func() bool { return frames.Load() > 0 }, 5*time.Second, time.Millisecond)
	e.Quit()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("render loop did not stop after Quit")
	}
}
