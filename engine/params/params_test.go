package params

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTable(t *testing.T, options ...TableBuilderOption) Table {
	t.Helper()
	tbl, err := NewTable(Defaults(), options...)
	require.NoError(t, err)
	return tbl
}

// recorder collects the values pushed to a setter.
type recorder struct {
	got []Resolved
}

func (r *recorder) set(v Resolved) { r.got = append(r.got, v) }

func (r *recorder) last() Resolved { return r.got[len(r.got)-1] }

func TestDefaults(t *testing.T) {
	tbl := newTable(t)
	assert.Len(t, tbl.Descriptors(), len(Defaults()))
	assert.Equal(t, ShowOutline, tbl.Descriptors()[0].Name)

	v, err := tbl.Get(BokehFStop)
	require.NoError(t, err)
	assert.Equal(t, float32(2.8), v.Float)

	v, err = tbl.Get(BokehMeasureMode)
	require.NoError(t, err)
	assert.Equal(t, "Auto center distance", v.Text)
	assert.Zero(t, v.Float)

	v, err = tbl.Get(DebugTexture)
	require.NoError(t, err)
	assert.Equal(t, NoneTexture, v.Text)
	assert.Nil(t, v.Texture)

	_, err = tbl.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownParameter)
}

func TestNewTableRejectsDuplicates(t *testing.T) {
	d := Descriptor{Name: "a", Kind: KindBool}
	_, err := NewTable([]Descriptor{d, d})
	assert.Error(t, err)

	_, err = NewTable([]Descriptor{{Name: "e", Kind: KindEnum, Default: Text("x")}})
	assert.Error(t, err)
}

func TestBindPushesCurrentValue(t *testing.T) {
	tbl := newTable(t)
	rec := &recorder{}
	require.NoError(t, tbl.Bind(BloomIntensity, "Bloom", rec.set))
	require.Len(t, rec.got, 1)
	assert.Equal(t, float32(1), rec.last().Float)

	assert.ErrorIs(t, tbl.Bind("nope", "Bloom", rec.set), ErrUnknownParameter)

	other := &recorder{}
	require.NoError(t, tbl.Bind(BloomIntensity, "Bloom", other.set))
	assert.Equal(t, 1, tbl.Bindings(BloomIntensity), "rebinding a pair replaces it")

	_, err := tbl.Set(BloomIntensity, Float(2))
	require.NoError(t, err)
	assert.Len(t, rec.got, 1)
	assert.Equal(t, float32(2), other.last().Float)

	tbl.Unbind(BloomIntensity, "Bloom")
	assert.Zero(t, tbl.Bindings(BloomIntensity))
}

func TestSetClampsAndPropagatesOnChange(t *testing.T) {
	tbl := newTable(t)
	dof, bloom := &recorder{}, &recorder{}
	require.NoError(t, tbl.Bind(BokehFocalLength, "DepthOfField", dof.set))
	require.NoError(t, tbl.Bind(BokehFocalLength, "Bloom", bloom.set))

	changed, err := tbl.Set(BokehFocalLength, Float(500))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, float32(70), dof.last().Float)
	assert.Equal(t, float32(70), bloom.last().Float)

	changed, err = tbl.Set(BokehFocalLength, Float(90))
	require.NoError(t, err)
	assert.False(t, changed, "a value clamped to the current one is no change")
	assert.Len(t, dof.got, 2)

	nan := float32(math.NaN())
	changed, err = tbl.Set(BokehFocalLength, Float(nan))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, float32(1), dof.last().Float, "NaN clamps to the minimum")
	changed, err = tbl.Set(BokehFocalLength, Float(nan))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, dof.got, 3)
	v, err := tbl.Get(BokehFocalLength)
	require.NoError(t, err)
	assert.Equal(t, float32(1), v.Float)

	_, err = tbl.Set("nope", Float(1))
	assert.ErrorIs(t, err, ErrUnknownParameter)
}

func TestSetEnum(t *testing.T) {
	tbl := newTable(t)
	rec := &recorder{}
	require.NoError(t, tbl.Bind(BokehMeasureMode, "DepthOfField", rec.set))

	_, err := tbl.Set(BokehMeasureMode, Text("Fix distance"))
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), rec.last().Float)

	_, err = tbl.Set(BokehMeasureMode, Float(1))
	require.NoError(t, err)
	assert.Equal(t, "Camera-to-Bone distance", rec.last().Text)

	_, err = tbl.Set(BokehMeasureMode, Text("closest"))
	assert.Error(t, err)
	_, err = tbl.Set(BokehMeasureMode, Float(0.3))
	assert.Error(t, err)
	assert.Len(t, rec.got, 3)

	v, _ := tbl.Get(DebugChannel)
	assert.Equal(t, float32(15), v.Float)
}

func TestTextureResolution(t *testing.T) {
	r, err := renderer.NewRenderer(renderer.BackendTypeSoftware, renderer.WithWorkers(1), renderer.WithSize(4, 4))
	require.NoError(t, err)
	t.Cleanup(r.Release)
	first, err := r.CreateTexture("normal", 4, 4, common.TextureFormatRGBA8)
	require.NoError(t, err)

	textures := map[string]renderer.Texture{"normal": first}
	tbl := newTable(t, WithTextureSource(func(name string) renderer.Texture { return textures[name] }))
	rec := &recorder{}
	require.NoError(t, tbl.Bind(NormalMap, "NormalBlending", rec.set))
	assert.Nil(t, rec.last().Texture)

	_, err = tbl.Set(NormalMap, Text("normal"))
	require.NoError(t, err)
	assert.Same(t, first, rec.last().Texture)

	_, err = tbl.Set(NormalMap, Text("missing"))
	require.NoError(t, err)
	assert.Nil(t, rec.last().Texture)
	assert.Equal(t, "missing", rec.last().Text)

	second, err := r.CreateTexture("missing", 4, 4, common.TextureFormatRGBA8)
	require.NoError(t, err)
	textures["missing"] = second
	tbl.Refresh()
	assert.Same(t, second, rec.last().Texture)

	_, err = tbl.Set(NormalMap, Text(""))
	require.NoError(t, err)
	assert.Equal(t, NoneTexture, rec.last().Text)
	assert.Nil(t, rec.last().Texture)
}

func TestReplaceSwapsBindings(t *testing.T) {
	tbl := newTable(t)
	old := &recorder{}
	require.NoError(t, tbl.Bind(BloomEnabled, "Bloom", old.set))
	_, err := tbl.Set(BloomEnabled, Bool(false))
	require.NoError(t, err)

	fresh := &recorder{}
	require.NoError(t, tbl.Replace([]Binding{{Name: BloomEnabled, Pass: "Bloom", Setter: fresh.set}}))
	require.Len(t, fresh.got, 1)
	assert.False(t, fresh.last().Bool, "the new binding receives the current value")

	_, err = tbl.Set(BloomEnabled, Bool(true))
	require.NoError(t, err)
	assert.Len(t, old.got, 2)
	assert.True(t, fresh.last().Bool)

	err = tbl.Replace([]Binding{{Name: "nope", Pass: "Bloom", Setter: old.set}})
	assert.ErrorIs(t, err, ErrUnknownParameter)
	assert.Equal(t, 1, tbl.Bindings(BloomEnabled), "a failed replace leaves the bindings")
}

func TestApplyPreset(t *testing.T) {
	tbl := newTable(t)
	p, err := ParsePreset([]byte(`
"show outline" = false
"bokeh fStop" = 4
"bokeh measureMode" = "Fix distance"
"bloom intensity" = 20.5
debugChannel = "g"
normalMap = "brick"
`))
	require.NoError(t, err)
	require.NoError(t, tbl.Apply(p))

	v, _ := tbl.Get(ShowOutline)
	assert.False(t, v.Bool)
	v, _ = tbl.Get(BokehFStop)
	assert.Equal(t, float32(4), v.Float)
	v, _ = tbl.Get(BokehMeasureMode)
	assert.Equal(t, float32(0.5), v.Float)
	v, _ = tbl.Get(BloomIntensity)
	assert.Equal(t, float32(10), v.Float)
	v, _ = tbl.Get(DebugChannel)
	assert.Equal(t, float32(2), v.Float)
	v, _ = tbl.Get(NormalMap)
	assert.Equal(t, "brick", v.Text)

	err = tbl.Apply(Preset{"bloom enabled": "yes", "unknown": 1.0, "bloom smoothing": 0.5})
	assert.ErrorIs(t, err, ErrUnknownParameter)
	v, _ = tbl.Get(BloomSmoothing)
	assert.Equal(t, float32(0.5), v.Float, "valid keys still apply")
}

func TestPresetRoundTrip(t *testing.T) {
	tbl := newTable(t)
	_, err := tbl.Set(BokehFocusRange, Float(3))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "preset.toml")
	require.NoError(t, SavePreset(path, tbl.Snapshot()))

	other := newTable(t)
	p, err := LoadPreset(path)
	require.NoError(t, err)
	require.NoError(t, other.Apply(p))
	v, _ := other.Get(BokehFocusRange)
	assert.Equal(t, float32(3), v.Float)

	_, err = ParsePreset([]byte("= broken"))
	assert.Error(t, err)
	_, err = LoadPreset(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestFileSourceWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preset.toml")
	require.NoError(t, os.WriteFile(path, []byte(`"bloom intensity" = 1`), 0o644))
	src := NewFileSource(path)

	p, err := src.Load()
	require.NoError(t, err)
	assert.EqualValues(t, 1, p["bloom intensity"])

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan Preset, 8)
	done := make(chan error, 1)
	go func() { done <- src.Watch(ctx, func(p Preset) { changes <- p }) }()

	// the watch is registered asynchronously, so keep writing until a change arrives
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	var got Preset
	for got["bloom intensity"] == nil {
		select {
		case got = <-changes:
		case <-tick.C:
			require.NoError(t, os.WriteFile(path, []byte(`"bloom intensity" = 3`), 0o644))
		case <-deadline:
			t.Fatal("no change observed")
		}
	}
	assert.EqualValues(t, 3, got["bloom intensity"])

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
