package effect

import (
	"errors"
	"fmt"
	"maps"
	"sync"

	"github.com/Carmen-Shannon/oxy-fx/engine/renderer"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/render_target"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-fx/engine/scene"
)

// ErrMissingInput is returned by Render when a required input texture is unavailable. The composer
// skips the pass and keeps the chain input.
var ErrMissingInput = errors.New("effect: missing input")

// Kind identifies a pass type. Kinds are declared in chain order.
type Kind int

const (
	KindOutline Kind = iota
	KindNormalBlending
	KindDepthOfField
	KindBloom
	KindDebug
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindOutline:
		return "Outline"
	case KindNormalBlending:
		return "NormalBlending"
	case KindDepthOfField:
		return "DepthOfField"
	case KindBloom:
		return "Bloom"
	case KindDebug:
		return "TextureDebug"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Usage is the set of scene resources a pass consumes or produces.
type Usage uint8

const (
	UsageSceneColor Usage = 1 << iota
	UsageSceneDepth
	UsageProducesColor
)

// Has reports whether every usage in o is present.
func (u Usage) Has(o Usage) bool {
	return u&o == o
}

// Context carries everything a pass reads while rendering one frame.
type Context struct {
	// Renderer is the active renderer. A frame is open while passes render.
	Renderer renderer.Renderer

	// Frame is the scene data of this frame.
	Frame scene.Frame

	// Input is the output of the previous pass, or the scene color for the first pass.
	Input renderer.Texture
}

// Draw issues one draw on the context renderer.
//
// Parameters:
//   - key: the shader key
//   - inputs: the input textures in shader input order
//   - outputs: the output textures
//   - uniforms: the uniform values
//
// Returns:
//   - error: the renderer error, if any
func (c *Context) Draw(key string, inputs, outputs []renderer.Texture, uniforms map[string][]float32) error {
	return c.Renderer.Draw(renderer.DrawCommand{
		Shader:   key,
		Inputs:   inputs,
		Outputs:  outputs,
		Uniforms: uniforms,
	})
}

// Pass is one effect of the chain. A pass owns its render targets: it allocates them when it joins
// the chain and releases them when it leaves. Other passes only read the texture a pass returns
// from Render, within the same frame.
type Pass interface {
	// Name returns the unique name of the pass. It is the owner of the pass's render targets.
	Name() string

	// Kind returns the pass type, which fixes its position in the chain.
	Kind() Kind

	// Usage returns the scene resources the pass consumes and produces.
	Usage() Usage

	// Requirements returns the backend capabilities the pass needs to run.
	Requirements() renderer.Capabilities

	// Shaders returns every shader the pass draws with.
	Shaders() []shader.Shader

	// Enabled returns the enabled flag.
	Enabled() bool

	// SetEnabled sets the enabled flag. A disabled pass is left out of the chain.
	SetEnabled(enabled bool)

	// Active reports whether the pass belongs in the chain: it is enabled and has every
	// resource it was configured with.
	Active() bool

	// Uniforms returns a copy of the current uniform values.
	Uniforms() map[string][]float32

	// Uniform returns the current value of one uniform, or nil.
	Uniform(name string) []float32

	// SetUniform sets one uniform value.
	//
	// Parameters:
	//   - name: the uniform name
	//   - value: the components
	SetUniform(name string, value ...float32)

	// Allocate creates the pass's render targets in the pool.
	//
	// Returns:
	//   - error: an allocation error; no targets are left allocated on failure
	Allocate(pool render_target.Pool) error

	// Release releases the pass's render targets. Safe to call when nothing is allocated.
	Release()

	// Allocated reports whether the pass currently holds render targets.
	Allocated() bool

	// Exports returns the names of the pass's debuggable textures while allocated.
	Exports() []string

	// Render draws the pass and returns its output texture.
	//
	// Parameters:
	//   - ctx: the frame context
	//
	// Returns:
	//   - renderer.Texture: the output texture, the next pass's input
	//   - error: ErrMissingInput when the pass must be skipped, or a renderer error
	Render(ctx *Context) (renderer.Texture, error)
}

// BasePass implements the bookkeeping shared by every pass: identity, the enabled flag, uniform
// storage and render target ownership. Concrete passes embed it and add Render.
type BasePass struct {
	mu       *sync.Mutex
	name     string
	kind     Kind
	enabled  bool
	uniforms map[string][]float32
	targets  []render_target.Descriptor
	handles  []render_target.Handle
	pool     render_target.Pool
}

// NewBasePass creates a BasePass.
//
// Parameters:
//   - name: the pass name
//   - kind: the pass kind
//   - targets: the render targets the pass allocates, in order
//   - defaults: the initial uniform values
//
// Returns:
//   - *BasePass: the base pass, enabled
func NewBasePass(name string, kind Kind, targets []render_target.Descriptor, defaults map[string][]float32) *BasePass {
	uniforms := make(map[string][]float32, len(defaults))
	for k, v := range defaults {
		uniforms[k] = append([]float32(nil), v...)
	}
	return &BasePass{
		mu:       &sync.Mutex{},
		name:     name,
		kind:     kind,
		enabled:  true,
		uniforms: uniforms,
		targets:  targets,
	}
}

func (b *BasePass) Name() string {
	return b.name
}

func (b *BasePass) Kind() Kind {
	return b.kind
}

func (b *BasePass) Enabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled
}

func (b *BasePass) SetEnabled(enabled bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled = enabled
}

func (b *BasePass) Uniforms() map[string][]float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string][]float32, len(b.uniforms))
	for k, v := range b.uniforms {
		out[k] = append([]float32(nil), v...)
	}
	return out
}

// DrawUniforms returns a shallow copy of the uniform map for one draw.
func (b *BasePass) DrawUniforms() map[string][]float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.uniforms)
}

func (b *BasePass) Uniform(name string) []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]float32(nil), b.uniforms[name]...)
}

func (b *BasePass) SetUniform(name string, value ...float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uniforms[name] = append([]float32(nil), value...)
}

// Float returns the first component of a uniform, or 0.
func (b *BasePass) Float(name string) float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v := b.uniforms[name]; len(v) > 0 {
		return v[0]
	}
	return 0
}

func (b *BasePass) Allocate(pool render_target.Pool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pool != nil {
		return nil
	}
	handles := make([]render_target.Handle, 0, len(b.targets))
	for _, desc := range b.targets {
		h, err := pool.Allocate(b.name, desc)
		if err != nil {
			for _, allocated := range handles {
				_ = pool.Release(allocated)
			}
			return fmt.Errorf("failed to allocate %s targets: %w", b.name, err)
		}
		handles = append(handles, h)
	}
	b.handles = handles
	b.pool = pool
	return nil
}

func (b *BasePass) Release() {
	b.mu.Lock()
	pool, handles := b.pool, b.handles
	b.pool, b.handles = nil, nil
	b.mu.Unlock()

	for _, h := range handles {
		_ = pool.Release(h)
	}
}

func (b *BasePass) Allocated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pool != nil
}

func (b *BasePass) Exports() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var names []string
	for _, h := range b.handles {
		if t, err := b.pool.Get(h); err == nil {
			names = append(names, t.Names()...)
		}
	}
	return names
}

// Target returns the i-th render target, or nil when the pass is not allocated.
func (b *BasePass) Target(i int) render_target.RenderTarget {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pool == nil || i >= len(b.handles) {
		return nil
	}
	t, err := b.pool.Get(b.handles[i])
	if err != nil {
		return nil
	}
	return t
}

// Output returns the first texture of the i-th render target, or nil.
func (b *BasePass) Output(i int) renderer.Texture {
	if t := b.Target(i); t != nil {
		return t.Texture()
	}
	return nil
}

// MissingInput wraps ErrMissingInput with the name of the absent input.
func MissingInput(pass, input string) error {
	return fmt.Errorf("%s %s: %w", pass, input, ErrMissingInput)
}

// Pool returns the pool the pass is allocated in, or nil.
func (b *BasePass) Pool() render_target.Pool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pool
}
