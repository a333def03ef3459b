package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/composer"
	"github.com/Carmen-Shannon/oxy-fx/engine/depth_of_field"
	"github.com/Carmen-Shannon/oxy-fx/engine/effect"
	"github.com/Carmen-Shannon/oxy-fx/engine/params"
	"github.com/Carmen-Shannon/oxy-fx/engine/profiler"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer"
	"github.com/Carmen-Shannon/oxy-fx/engine/scene"
	"github.com/Carmen-Shannon/oxy-fx/engine/window"
)

// ErrNotReady is returned by Frame until a backend has been initialised.
var ErrNotReady = errors.New("engine: backend not ready")

// SetLogger configures the logger shared by every engine package. Passing nil disables logging.
//
// Parameters:
//   - l: the logger to use, or nil
func SetLogger(l *slog.Logger) {
	common.SetLogger(l)
}

// Logger returns the logger shared by every engine package.
func Logger() *slog.Logger {
	return common.Logger()
}

// engine implements the Engine interface.
type engine struct {
	mu *sync.Mutex

	backend        renderer.RendererBackendType
	rendererOpts   []renderer.RendererBuilderOption
	width, height  int
	r              renderer.Renderer
	refreshTexture bool

	composer       composer.Composer
	table          params.Table
	scene          scene.SyntheticScene
	outline        effect.Pass
	normalBlending effect.NormalBlending
	dof            depth_of_field.DepthOfField
	bloom          effect.Pass

	texMu    *sync.Mutex
	imported []*common.ImportedTexture
	staged   map[string]common.TextureStagingData
	textures map[string]renderer.Texture

	window           window.Window
	profiler         *profiler.Profiler
	profilingEnabled bool
	renderFrameLimit time.Duration
	renderCallback   func(out renderer.Texture, deltaTime float32)

	quitChannel chan struct{}
	quitOnce    sync.Once
	wg          sync.WaitGroup
}

// Engine wires the synthetic scene, the effect composer and the parameter table to a backend and
// drives them frame by frame.
type Engine interface {
	// Init acquires the configured backend in a goroutine. Frame returns ErrNotReady until the
	// returned channel has delivered a nil error.
	//
	// Parameters:
	//   - ctx: cancels the initialisation
	//
	// Returns:
	//   - <-chan error: receives the outcome once, then closes
	Init(ctx context.Context) <-chan error

	// SwitchBackend acquires another backend in a goroutine and rebuilds every render target,
	// the chain and the bindings on it. The current backend keeps rendering until the switch
	// completes, then it is released.
	//
	// Parameters:
	//   - ctx: cancels the switch
	//   - backend: the backend to switch to
	//   - options: renderer options applied after the engine's own
	//
	// Returns:
	//   - <-chan error: receives the outcome once, then closes
	SwitchBackend(ctx context.Context, backend renderer.RendererBackendType, options ...renderer.RendererBuilderOption) <-chan error

	// Ready reports whether a backend is installed.
	Ready() bool

	// Renderer returns the installed renderer, or nil before Init completes.
	Renderer() renderer.Renderer

	// Composer returns the effect composer.
	Composer() composer.Composer

	// Params returns the parameter table.
	Params() params.Table

	// Scene returns the scene rendered each frame.
	Scene() scene.SyntheticScene

	// Window returns the window, or nil for a headless engine.
	Window() window.Window

	// Frame advances the scene, renders it, runs the effect chain and presents the result.
	//
	// Parameters:
	//   - deltaTime: elapsed time since the previous frame in seconds
	//
	// Returns:
	//   - renderer.Texture: the presented texture
	//   - error: ErrNotReady before Init completes, or a render error
	Frame(deltaTime float32) (renderer.Texture, error)

	// Resize rebuilds every render target for a new viewport size.
	//
	// Parameters:
	//   - width, height: the viewport size in pixels
	//
	// Returns:
	//   - error: a rebuild error
	Resize(width, height int) error

	// SetParameter sets one external parameter.
	//
	// Returns:
	//   - error: params.ErrUnknownParameter or an invalid enum option
	SetParameter(name string, v params.Value) error

	// ApplyPreset sets every parameter of a preset. Unknown keys are reported; the others apply.
	ApplyPreset(p params.Preset) error

	// WatchPreset applies the preset of src and then every change to it until ctx is done.
	//
	// Returns:
	//   - error: a load error, or ctx.Err() once cancelled
	WatchPreset(ctx context.Context, src params.Source) error

	// EnableProfiler enables frame statistics output to the log.
	EnableProfiler()

	// DisableProfiler disables frame statistics output.
	DisableProfiler()

	// SetRenderCallback registers the function called after each frame of Run.
	//
	// Parameters:
	//   - callback: receives the presented texture and the delta time in seconds
	SetRenderCallback(callback func(out renderer.Texture, deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap for Run. Pass 0 to uncap.
	SetRenderFrameLimit(fps float64)

	// Run renders frames in a goroutine and runs the window message loop. Blocks until the
	// window closes or Quit is called.
	Run()

	// Quit stops Run. Safe to call multiple times.
	Quit()

	// Release frees the scene, the composer targets and the renderer.
	Release()
}

// NewEngine creates an Engine with the built-in passes and parameters. The backend defaults to
// the software renderer at 1280x720.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the engine, not yet initialised
func NewEngine(options ...EngineBuilderOption) Engine {
	e := &engine{
		mu:             &sync.Mutex{},
		backend:        renderer.BackendTypeSoftware,
		width:          1280,
		height:         720,
		outline:        effect.NewOutline(),
		normalBlending: effect.NewNormalBlending(),
		dof:            depth_of_field.NewDepthOfField(),
		bloom:          effect.NewBloom(),
		profiler:       profiler.NewProfiler(),
		quitChannel:    make(chan struct{}),
		texMu:          &sync.Mutex{},
		staged:         make(map[string]common.TextureStagingData),
		textures:       make(map[string]renderer.Texture),
	}
	for _, opt := range options {
		opt(e)
	}
	if e.window != nil {
		e.width, e.height = e.window.Width(), e.window.Height()
		e.window.SetResizeCallback(func(width, height int) {
			if err := e.Resize(width, height); err != nil {
				common.Logger().Warn("resize failed", "error", err)
			}
		})
	}
	if e.scene == nil {
		e.scene = scene.NewSyntheticScene()
	}

	e.composer = composer.NewComposer(
		composer.WithPasses(e.outline, e.normalBlending, e.dof, e.bloom),
		composer.WithViewport(e.width, e.height),
	)

	table, err := params.NewTable(params.Defaults(), params.WithTextureSource(e.texture))
	if err != nil {
		panic(fmt.Sprintf("engine: invalid parameter descriptors: %v", err))
	}
	e.table = table
	if err := e.table.Replace(e.bindings()); err != nil {
		panic(fmt.Sprintf("engine: invalid parameter bindings: %v", err))
	}
	return e
}

// bindings returns the setter of every parameter for the passes registered with the composer.
func (e *engine) bindings() []params.Binding {
	var out []params.Binding
	add := func(name string, pass effect.Pass, setter params.Setter) {
		if e.composer.Pass(pass.Name()) == nil {
			return
		}
		out = append(out, params.Binding{Name: name, Pass: pass.Name(), Setter: setter})
	}
	enabled := func(p effect.Pass) params.Setter {
		return func(v params.Resolved) { p.SetEnabled(v.Bool) }
	}
	uniform := func(p effect.Pass, uniform string) params.Setter {
		return func(v params.Resolved) { p.SetUniform(uniform, v.Float) }
	}

	add(params.ShowOutline, e.outline, enabled(e.outline))

	add(params.BokehEnabled, e.dof, enabled(e.dof))
	add(params.BokehFocalDistance, e.dof, uniform(e.dof, "focalDistance"))
	add(params.BokehFocalLength, e.dof, uniform(e.dof, "focalLength"))
	add(params.BokehFocusRange, e.dof, uniform(e.dof, "focusRange"))
	add(params.BokehFStop, e.dof, uniform(e.dof, "fStop"))
	add(params.BokehTestMode, e.dof, uniform(e.dof, "testMode"))
	add(params.BokehMeasureMode, e.dof, func(v params.Resolved) {
		e.dof.SetMeasureMode(depth_of_field.NearestMeasureMode(v.Float))
	})

	add(params.BloomEnabled, e.bloom, enabled(e.bloom))
	add(params.BloomIntensity, e.bloom, uniform(e.bloom, "intensity"))
	add(params.BloomThreshold, e.bloom, uniform(e.bloom, "luminanceThreshold"))
	add(params.BloomSmoothing, e.bloom, uniform(e.bloom, "luminanceSmoothing"))

	add(params.NormalMap, e.normalBlending, func(v params.Resolved) {
		_, sub := e.normalBlending.NormalMaps()
		e.normalBlending.SetNormalMaps(v.Texture, sub)
	})
	add(params.SubNormalMap, e.normalBlending, func(v params.Resolved) {
		base, _ := e.normalBlending.NormalMaps()
		e.normalBlending.SetNormalMaps(base, v.Texture)
	})

	// the debug override lives inside the composer rather than in a registered pass
	debug := func(params.Resolved) { e.applyDebug() }
	out = append(out,
		params.Binding{Name: params.DebugTexture, Pass: "TextureDebug", Setter: debug},
		params.Binding{Name: params.DebugChannel, Pass: "TextureDebug", Setter: debug},
	)
	return out
}

// texture resolves a texture parameter against the imported textures, then the scene buffers.
func (e *engine) texture(name string) renderer.Texture {
	e.texMu.Lock()
	t, ok := e.textures[name]
	e.texMu.Unlock()
	if ok {
		return t
	}
	return e.scene.Texture(name)
}

// uploadImported decodes the imported textures once and uploads them to r, replacing the textures
// of the previous renderer. Textures that fail are logged and left out.
func (e *engine) uploadImported(r renderer.Renderer) {
	e.texMu.Lock()
	defer e.texMu.Unlock()
	for name, t := range e.textures {
		t.Release()
		delete(e.textures, name)
	}
	for _, imp := range e.imported {
		data, ok := e.staged[imp.Name]
		if !ok {
			var err error
			if data, err = imp.Decode(); err != nil {
				common.Logger().Warn("texture not imported", "texture", imp.Name, "error", err)
				continue
			}
			e.staged[imp.Name] = data
		}
		t, err := r.CreateTexture(imp.Name, int(data.Width), int(data.Height), data.Format)
		if err != nil {
			common.Logger().Warn("texture not imported", "texture", imp.Name, "error", err)
			continue
		}
		if err := r.UploadTexture(t, data); err != nil {
			t.Release()
			common.Logger().Warn("texture not imported", "texture", imp.Name, "error", err)
			continue
		}
		e.textures[imp.Name] = t
	}
}

// applyDebug pushes the (debugTexture, debugChannel) pair to the composer.
func (e *engine) applyDebug() {
	tex, err := e.table.Get(params.DebugTexture)
	if err != nil {
		return
	}
	ch, err := e.table.Get(params.DebugChannel)
	if err != nil {
		return
	}
	sel := composer.DebugSelection{Texture: tex.Text, Channels: composer.ChannelMask(uint8(ch.Float))}
	if err := e.composer.SetDebug(sel); err != nil {
		common.Logger().Warn("debug texture not selected", "selection", sel.String(), "error", err)
	}
}

// reconcileDebug resets the debugTexture parameter once the composer dropped the selection.
func (e *engine) reconcileDebug() {
	if !e.composer.Debug().None() {
		return
	}
	v, err := e.table.Get(params.DebugTexture)
	if err != nil || v.Text == params.NoneTexture {
		return
	}
	common.Logger().Info("debug texture released", "texture", v.Text)
	_, _ = e.table.Set(params.DebugTexture, params.Text(params.NoneTexture))
}

func (e *engine) Init(ctx context.Context) <-chan error {
	return e.acquire(ctx, e.backend)
}

func (e *engine) SwitchBackend(ctx context.Context, backend renderer.RendererBackendType, options ...renderer.RendererBuilderOption) <-chan error {
	return e.acquire(ctx, backend, options...)
}

// acquire creates a renderer in a goroutine and installs it.
func (e *engine) acquire(ctx context.Context, backend renderer.RendererBackendType, extra ...renderer.RendererBuilderOption) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- e.createAndInstall(ctx, backend, extra)
	}()
	return done
}

func (e *engine) createAndInstall(ctx context.Context, backend renderer.RendererBackendType, extra []renderer.RendererBuilderOption) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	opts := append([]renderer.RendererBuilderOption(nil), e.rendererOpts...)
	opts = append(opts, renderer.WithSize(e.width, e.height))
	if e.window != nil {
		opts = append(opts, renderer.WithSurface(e.window))
	}
	e.mu.Unlock()
	opts = append(opts, extra...)

	r, err := renderer.NewRenderer(backend, opts...)
	if err != nil {
		return fmt.Errorf("failed to create %s renderer: %w", backend, err)
	}
	if err := ctx.Err(); err != nil {
		r.Release()
		return err
	}

	e.mu.Lock()
	old := e.r
	if err := e.composer.SetRenderer(r); err != nil {
		if rerr := e.composer.SetRenderer(old); rerr != nil {
			common.Logger().Warn("previous renderer not restored", "error", rerr)
		}
		e.mu.Unlock()
		r.Release()
		return fmt.Errorf("failed to install %s renderer: %w", backend, err)
	}
	e.uploadImported(r)
	e.r = r
	e.backend = backend
	e.refreshTexture = true
	if old != nil {
		old.Release()
	}
	e.mu.Unlock()

	if err := e.table.Replace(e.bindings()); err != nil {
		return err
	}
	common.Logger().Info("backend ready",
		"backend", backend.String(),
		"capabilities", r.Capabilities().String(),
		"variant", e.composer.Variant().String(),
	)
	return nil
}

func (e *engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.r != nil
}

func (e *engine) Renderer() renderer.Renderer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.r
}

func (e *engine) Composer() composer.Composer {
	return e.composer
}

func (e *engine) Params() params.Table {
	return e.table
}

func (e *engine) Scene() scene.SyntheticScene {
	return e.scene
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Frame(deltaTime float32) (renderer.Texture, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.r == nil {
		return nil, ErrNotReady
	}

	e.scene.Advance(deltaTime)
	frame, err := e.scene.Render(e.r, e.width, e.height)
	if err != nil {
		return nil, fmt.Errorf("failed to render scene: %w", err)
	}
	if e.refreshTexture {
		// scene textures of a new backend only exist after its first render
		e.table.Refresh()
		e.refreshTexture = false
	}

	out, err := e.composer.Render(frame)
	if err != nil {
		return nil, err
	}
	if err := e.r.Present(out); err != nil {
		return nil, fmt.Errorf("failed to present: %w", err)
	}
	e.reconcileDebug()

	if e.profilingEnabled {
		e.profiler.Tick(len(e.composer.Chain().Passes))
	}
	return out, nil
}

func (e *engine) Resize(width, height int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.width, e.height = max(width, 1), max(height, 1)
	return e.composer.Resize(e.width, e.height)
}

func (e *engine) SetParameter(name string, v params.Value) error {
	changed, err := e.table.Set(name, v)
	if err != nil {
		return err
	}
	// reselecting the same texture after the composer dropped it is not a change to the table
	if !changed && (name == params.DebugTexture || name == params.DebugChannel) {
		e.applyDebug()
	}
	return nil
}

func (e *engine) ApplyPreset(p params.Preset) error {
	return e.table.Apply(p)
}

func (e *engine) WatchPreset(ctx context.Context, src params.Source) error {
	p, err := src.Load()
	if err != nil {
		return err
	}
	if err := e.ApplyPreset(p); err != nil {
		common.Logger().Warn("preset partially applied", "error", err)
	}
	return src.Watch(ctx, func(p params.Preset) {
		if err := e.ApplyPreset(p); err != nil {
			common.Logger().Warn("preset partially applied", "error", err)
		}
		common.Logger().Info("preset reloaded", "parameters", len(p))
	})
}

func (e *engine) EnableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = true
}

func (e *engine) DisableProfiler() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profilingEnabled = false
}

func (e *engine) SetRenderCallback(callback func(out renderer.Texture, deltaTime float32)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.renderCallback = callback
}

func (e *engine) SetRenderFrameLimit(fps float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}

// loopSettings returns the render callback and frame limit the render loop reads each iteration.
func (e *engine) loopSettings() (func(out renderer.Texture, deltaTime float32), time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.renderCallback, e.renderFrameLimit
}

func (e *engine) Run() {
	e.wg.Add(1)
	go e.handleRender()
	if e.window != nil {
		e.window.ProcessMessages()
		e.Quit()
	}
	e.wg.Wait()
}

// handleRender runs the render loop until Quit. Frames before the backend is ready are skipped.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			common.Logger().Error("render loop recovered from panic", "panic", r)
			e.Quit()
		}
	}()

	lastRender := time.Now()
	for {
		select {
		case <-e.quitChannel:
			return
		default:
		}

		now := time.Now()
		dt := float32(now.Sub(lastRender).Seconds())
		lastRender = now

		out, err := e.Frame(dt)
		callback, limit := e.loopSettings()
		switch {
		case errors.Is(err, ErrNotReady):
		case err != nil:
			common.Logger().Warn("frame failed", "error", err)
		case callback != nil:
			callback(out, dt)
		}

		if limit > 0 {
			if remaining := limit - time.Since(now); remaining > 0 {
				time.Sleep(remaining)
			}
		} else if errors.Is(err, ErrNotReady) {
			time.Sleep(time.Millisecond)
		}
	}
}

func (e *engine) Quit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

func (e *engine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.texMu.Lock()
	for name, t := range e.textures {
		t.Release()
		delete(e.textures, name)
	}
	e.texMu.Unlock()
	e.scene.Release()
	e.composer.Release()
	if e.r != nil {
		e.r.Release()
		e.r = nil
	}
}
