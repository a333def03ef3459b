package composer

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/effect"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/render_target"
	"github.com/Carmen-Shannon/oxy-fx/engine/scene"
)

var (
	// ErrNoRenderer is returned by operations that need a renderer before SetRenderer was called.
	ErrNoRenderer = errors.New("composer: no renderer")

	// ErrUnknownTexture is returned when a debug selection names a texture that is not live.
	ErrUnknownTexture = errors.New("composer: unknown debug texture")
)

// Composer runs the effect chain of a frame on the active renderer and owns the render target
// pool the passes allocate from.
type Composer interface {
	// SetRenderer switches to a renderer. Every target is torn down, the variant is chosen for
	// the renderer's capabilities and the chain is rebuilt.
	//
	// Parameters:
	//   - r: the renderer
	//
	// Returns:
	//   - error: a shader registration error
	SetRenderer(r renderer.Renderer) error

	// Renderer returns the active renderer, or nil.
	Renderer() renderer.Renderer

	// Variant returns the variant chosen for the active renderer.
	Variant() Variant

	// Pool returns the render target pool of the active renderer, or nil.
	Pool() render_target.Pool

	// Add registers a pass. The pass joins the chain on the next rebuild if it is active.
	//
	// Returns:
	//   - error: an error if a pass with the same name is registered
	Add(p effect.Pass) error

	// Remove unregisters a pass by name and releases its targets.
	Remove(name string)

	// Pass returns a registered pass by name, or nil.
	Pass(name string) effect.Pass

	// Passes returns the registered passes, the debug pass included.
	Passes() []effect.Pass

	// Chain returns the chain of the last rebuild, or nil.
	Chain() *ExecutableChain

	// Rebuild brings the chain up to date with the active pass set: passes that left it release
	// their targets and passes that joined it allocate theirs.
	//
	// Returns:
	//   - error: ErrNoRenderer, or a pass set error
	Rebuild() error

	// Resize tears down every target and rebuilds the chain at the new viewport size.
	Resize(width, height int) error

	// Render runs the chain over a frame inside one renderer frame. Passes missing an input are
	// skipped and the chain continues with the previous output.
	//
	// Parameters:
	//   - frame: the scene data
	//
	// Returns:
	//   - renderer.Texture: the chain output, or the debug view while a selection is active
	//   - error: ErrNoRenderer, or a renderer error
	Render(frame scene.Frame) (renderer.Texture, error)

	// DebugTextures returns the export names of every live pass target.
	DebugTextures() []string

	// Debug returns the current debug selection.
	Debug() DebugSelection

	// SetDebug selects a live texture for the debug view. A "none" selection clears it.
	//
	// Returns:
	//   - error: ErrUnknownTexture if the texture is not live; the selection is cleared
	SetDebug(sel DebugSelection) error

	// Release tears down every target. The composer can be reused with SetRenderer.
	Release()
}

type composer struct {
	mu       *sync.Mutex
	r        renderer.Renderer
	pool     render_target.Pool
	variant  Variant
	passes   []effect.Pass
	debug    effect.TextureDebug
	chain    *ExecutableChain
	chainKey string

	width, height int

	selMu     *sync.Mutex
	selection DebugSelection
}

var _ Composer = &composer{}

// NewComposer creates a Composer. The composer owns a debug override pass; other passes are added
// with WithPasses or Add.
//
// Parameters:
//   - options: functional options for the composer
//
// Returns:
//   - Composer: the composer, without a renderer
func NewComposer(options ...ComposerBuilderOption) Composer {
	c := &composer{
		mu:        &sync.Mutex{},
		selMu:     &sync.Mutex{},
		debug:     effect.NewTextureDebug(),
		width:     1280,
		height:    720,
		selection: NoSelection(),
	}
	c.passes = []effect.Pass{c.debug}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *composer) SetRenderer(r renderer.Renderer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.teardownLocked()
	c.r = r
	c.chain, c.chainKey = nil, ""
	if r == nil {
		c.pool = nil
		return nil
	}

	caps := r.Capabilities()
	c.variant = VariantFor(caps)
	var options []render_target.PoolBuilderOption
	if c.variant == VariantReduced {
		options = append(options, render_target.WithNativeFormats())
	}
	c.pool = render_target.NewPool(r, c.width, c.height, options...)
	c.pool.OnRelease(c.onRelease)

	for _, p := range c.passes {
		if err := r.RegisterShaders(p.Shaders()...); err != nil {
			return fmt.Errorf("failed to register %s shaders: %w", p.Name(), err)
		}
	}
	common.Logger().Info("composer variant selected",
		"variant", c.variant.String(),
		"backend", r.BackendType().String(),
		"capabilities", caps.String(),
	)
	return c.syncLocked()
}

func (c *composer) Renderer() renderer.Renderer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.r
}

func (c *composer) Variant() Variant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.variant
}

func (c *composer) Pool() render_target.Pool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pool
}

func (c *composer) Add(p effect.Pass) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addLocked(p)
}

func (c *composer) addLocked(p effect.Pass) error {
	for _, existing := range c.passes {
		if existing.Name() == p.Name() {
			return fmt.Errorf("pass %q is already registered", p.Name())
		}
	}
	if c.r != nil {
		if err := c.r.RegisterShaders(p.Shaders()...); err != nil {
			return fmt.Errorf("failed to register %s shaders: %w", p.Name(), err)
		}
	}
	c.passes = append(c.passes, p)
	return nil
}

func (c *composer) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := slices.IndexFunc(c.passes, func(p effect.Pass) bool { return p.Name() == name })
	if i < 0 || c.passes[i] == c.debug {
		return
	}
	c.passes[i].Release()
	c.passes = slices.Delete(c.passes, i, i+1)
	c.chainKey = ""
}

func (c *composer) Pass(name string) effect.Pass {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.passes {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

func (c *composer) Passes() []effect.Pass {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.passes)
}

func (c *composer) Chain() *ExecutableChain {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chain
}

func (c *composer) Rebuild() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.r == nil {
		return ErrNoRenderer
	}
	return c.syncLocked()
}

// syncLocked rebuilds the chain when the active pass set changed since the last rebuild.
func (c *composer) syncLocked() error {
	chain, err := Build(c.passes, c.r.Capabilities())
	if err != nil {
		return err
	}
	key := chain.key()
	if c.chain != nil && key == c.chainKey {
		return nil
	}

	for _, p := range c.passes {
		if !chain.Contains(p) && p.Allocated() {
			p.Release()
		}
	}
	for _, p := range chain.Dropped {
		common.Logger().Debug("pass dropped for backend",
			"pass", p.Name(),
			"requires", p.Requirements().String(),
			"variant", chain.Variant.String(),
		)
	}

	runnable := chain.Passes[:0]
	for _, p := range chain.Passes {
		if err := p.Allocate(c.pool); err != nil {
			common.Logger().Warn("pass left out of the chain", "pass", p.Name(), "error", err)
			continue
		}
		runnable = append(runnable, p)
	}
	chain.Passes = runnable
	c.chain, c.chainKey = chain, key
	common.Logger().Debug("effect chain rebuilt", "passes", chain.Names(), "variant", chain.Variant.String())
	return nil
}

// teardownLocked releases every pass and target of the current pool.
func (c *composer) teardownLocked() {
	for _, p := range c.passes {
		p.Release()
	}
	if c.pool != nil {
		c.pool.ReleaseAll()
	}
}

func (c *composer) Resize(width, height int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.width, c.height = max(width, 1), max(height, 1)
	if c.r == nil {
		return nil
	}
	sel := c.Debug()

	c.teardownLocked()
	c.r.Resize(c.width, c.height)
	if err := c.pool.ResizeAll(c.width, c.height); err != nil {
		return fmt.Errorf("failed to resize render targets: %w", err)
	}
	c.chain, c.chainKey = nil, ""
	if err := c.syncLocked(); err != nil {
		return err
	}
	if !sel.None() {
		c.selectLocked(sel)
		if err := c.syncLocked(); err != nil {
			return err
		}
	}
	return nil
}

func (c *composer) Render(frame scene.Frame) (renderer.Texture, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.r == nil {
		return nil, ErrNoRenderer
	}
	if err := c.syncLocked(); err != nil {
		return nil, err
	}
	if err := c.r.BeginFrame(); err != nil {
		return nil, err
	}

	out := frame.Color
	for _, p := range c.chain.Passes {
		result, err := p.Render(&effect.Context{Renderer: c.r, Frame: frame, Input: out})
		if errors.Is(err, effect.ErrMissingInput) {
			common.Logger().Debug("pass skipped", "pass", p.Name(), "reason", err.Error())
			continue
		}
		if err != nil {
			_ = c.r.EndFrame()
			return nil, fmt.Errorf("failed to render %s: %w", p.Name(), err)
		}
		out = result
	}

	if err := c.r.EndFrame(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *composer) DebugTextures() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.debugTexturesLocked()
}

func (c *composer) debugTexturesLocked() []string {
	if c.chain == nil {
		return nil
	}
	var names []string
	for _, p := range c.chain.Passes {
		names = append(names, p.Exports()...)
	}
	return names
}

func (c *composer) Debug() DebugSelection {
	c.selMu.Lock()
	defer c.selMu.Unlock()
	return c.selection
}

func (c *composer) SetDebug(sel DebugSelection) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.selectLocked(sel); err != nil {
		return err
	}
	if c.r == nil {
		return nil
	}
	return c.syncLocked()
}

// selectLocked applies a selection if its texture is in the debug registry.
func (c *composer) selectLocked(sel DebugSelection) error {
	if sel.Channels == 0 {
		sel.Channels = ChannelRGBA
	}
	if !sel.None() && !slices.Contains(c.debugTexturesLocked(), sel.Texture) {
		c.setSelection(NoSelection())
		return fmt.Errorf("%w: %q", ErrUnknownTexture, sel.Texture)
	}
	if sel.None() {
		sel.Texture = NoneTexture
	}
	c.setSelection(sel)
	return nil
}

func (c *composer) setSelection(sel DebugSelection) {
	c.selMu.Lock()
	c.selection = sel
	c.selMu.Unlock()

	if sel.None() {
		c.debug.SetSelection("", sel.Channels.Vector())
		return
	}
	c.debug.SetSelection(sel.Texture, sel.Channels.Vector())
}

// onRelease resets the debug selection when its texture is released.
func (c *composer) onRelease(_ render_target.Handle, names []string) {
	sel := c.Debug()
	if sel.None() || !slices.Contains(names, sel.Texture) {
		return
	}
	common.Logger().Debug("debug selection reset", "texture", sel.Texture)
	c.setSelection(NoSelection())
}

func (c *composer) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
	c.chain, c.chainKey = nil, ""
}
