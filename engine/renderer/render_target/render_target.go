package render_target

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer"
	"github.com/chewxy/math32"
)

// Handle identifies an allocated render target. The zero Handle is never valid.
type Handle uint64

// Descriptor describes a render target to allocate.
type Descriptor struct {
	// Label prefixes the exported name of every attachment, e.g. "DepthOfField".
	Label string

	// Scale sizes the target relative to the viewport when Width and Height are zero. Defaults to 1.
	Scale float32

	// Width, Height give a fixed size in pixels. Fixed targets are not touched by ResizeAll.
	Width, Height int

	// Format is the requested pixel format. Float formats fall back to RGBA8 on renderers without
	// float target support.
	Format common.TextureFormat

	// Attachments names one texture per color attachment, exported as "Label.Name". An empty list
	// allocates a single texture exported under Label alone.
	Attachments []string
}

// viewportRelative reports whether the target follows the viewport size.
func (d Descriptor) viewportRelative() bool {
	return d.Width <= 0 || d.Height <= 0
}

// exportNames returns the exported names of the attachments in order.
func (d Descriptor) exportNames() []string {
	if len(d.Attachments) == 0 {
		return []string{d.Label}
	}
	names := make([]string, len(d.Attachments))
	for i, a := range d.Attachments {
		names[i] = d.Label + "." + a
	}
	return names
}

// renderTarget is the implementation of the RenderTarget interface.
type renderTarget struct {
	handle        Handle
	owner         string
	desc          Descriptor
	format        common.TextureFormat
	names         []string
	width, height int
	textures      []renderer.Texture
	released      bool
}

// RenderTarget is a set of same-sized textures owned by one pass. The textures are replaced when the
// target is resized, so holders look them up every frame instead of caching them.
type RenderTarget interface {
	// Handle returns the handle of the target.
	Handle() Handle

	// Owner returns the owner the target was allocated for.
	Owner() string

	// Descriptor returns the descriptor the target was allocated with.
	Descriptor() Descriptor

	// Format returns the effective pixel format, after any float fallback.
	Format() common.TextureFormat

	// Size returns the current size in pixels.
	Size() (width, height int)

	// Names returns the exported attachment names in attachment order.
	Names() []string

	// Texture returns the texture of the first attachment, or nil once released.
	Texture() renderer.Texture

	// Textures returns the textures of every attachment in order, or nil once released.
	Textures() []renderer.Texture

	// Attachment returns the texture of a named attachment, or nil if the name is unknown or the
	// target has been released.
	//
	// Parameters:
	//   - name: the attachment name as given in Descriptor.Attachments
	//
	// Returns:
	//   - renderer.Texture: the texture or nil
	Attachment(name string) renderer.Texture

	// Released reports whether the target has been released.
	Released() bool
}

var _ RenderTarget = &renderTarget{}

func (t *renderTarget) Handle() Handle {
	return t.handle
}

func (t *renderTarget) Owner() string {
	return t.owner
}

func (t *renderTarget) Descriptor() Descriptor {
	return t.desc
}

func (t *renderTarget) Format() common.TextureFormat {
	return t.format
}

func (t *renderTarget) Size() (int, int) {
	return t.width, t.height
}

func (t *renderTarget) Names() []string {
	return t.names
}

func (t *renderTarget) Texture() renderer.Texture {
	if t.released || len(t.textures) == 0 {
		return nil
	}
	return t.textures[0]
}

func (t *renderTarget) Textures() []renderer.Texture {
	if t.released {
		return nil
	}
	return t.textures
}

func (t *renderTarget) Attachment(name string) renderer.Texture {
	if t.released {
		return nil
	}
	for i, a := range t.desc.Attachments {
		if a == name {
			return t.textures[i]
		}
	}
	return nil
}

func (t *renderTarget) Released() bool {
	return t.released
}

// ReleaseListener is notified after a target has been released.
//
// Parameters:
//   - h: the released handle
//   - names: the exported attachment names the target carried
type ReleaseListener func(h Handle, names []string)

// pool is the implementation of the Pool interface.
type pool struct {
	mu *sync.Mutex
	r  renderer.Renderer

	viewportWidth, viewportHeight int

	nextHandle Handle
	targets    map[Handle]*renderTarget
	order      []Handle
	byName     map[string]Handle
	listeners  []ReleaseListener

	nativeFormats bool
}

// Pool allocates and owns the intermediate render targets of the effect chain. Every target has
// exactly one owner; other passes only borrow its textures for reading within a frame.
type Pool interface {
	// Renderer returns the renderer the pool allocates from.
	Renderer() renderer.Renderer

	// Viewport returns the current viewport size.
	Viewport() (width, height int)

	// Allocate creates a target for an owner.
	//
	// Parameters:
	//   - owner: the owning pass name
	//   - desc: the target descriptor
	//
	// Returns:
	//   - Handle: the handle of the new target
	//   - error: an error if the descriptor is invalid, an exported name is taken, or allocation fails
	Allocate(owner string, desc Descriptor) (Handle, error)

	// Get returns the target of a handle.
	//
	// Returns:
	//   - RenderTarget: the target
	//   - error: ErrInvalidHandle if the handle is unknown or released
	Get(h Handle) (RenderTarget, error)

	// Resize recreates one target at an explicit size. The target becomes fixed-size.
	//
	// Parameters:
	//   - h: the target handle
	//   - width, height: the new size in pixels
	//
	// Returns:
	//   - error: ErrInvalidHandle, or an allocation error leaving the target unchanged
	Resize(h Handle, width, height int) error

	// ResizeAll sets the viewport size and recreates every viewport-relative target in one step.
	// Either every target is resized or, on failure, none is.
	//
	// Parameters:
	//   - width, height: the new viewport size in pixels
	//
	// Returns:
	//   - error: an allocation error; the pool is left at the previous size
	ResizeAll(width, height int) error

	// Release releases a target and notifies the release listeners.
	//
	// Returns:
	//   - error: ErrInvalidHandle if the handle is unknown or already released
	Release(h Handle) error

	// ReleaseOwner releases every target of an owner.
	ReleaseOwner(owner string)

	// ReleaseAll releases every live target.
	ReleaseAll()

	// Texture returns a live texture by exported name, e.g. "DepthOfField.CoC", or nil.
	Texture(name string) renderer.Texture

	// Live returns the live targets in allocation order.
	Live() []RenderTarget

	// Names returns the exported attachment names of every live target in allocation order.
	Names() []string

	// OnRelease registers a listener called after each released target.
	OnRelease(l ReleaseListener)
}

var _ Pool = &pool{}

// NewPool creates a Pool allocating from r for a viewport of the given size.
//
// Parameters:
//   - r: the renderer textures are created on
//   - width, height: the initial viewport size in pixels
//   - options: functional options for the pool
//
// Returns:
//   - Pool: the new pool
func NewPool(r renderer.Renderer, width, height int, options ...PoolBuilderOption) Pool {
	p := &pool{
		mu:             &sync.Mutex{},
		r:              r,
		viewportWidth:  max(width, 1),
		viewportHeight: max(height, 1),
		targets:        make(map[Handle]*renderTarget),
		byName:         make(map[string]Handle),
	}
	for _, option := range options {
		option(p)
	}
	return p
}

func (p *pool) Renderer() renderer.Renderer {
	return p.r
}

func (p *pool) Viewport() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewportWidth, p.viewportHeight
}

// sizeFor returns the size of a target described by desc at the given viewport size.
func sizeFor(desc Descriptor, viewportWidth, viewportHeight int) (int, int) {
	if !desc.viewportRelative() {
		return desc.Width, desc.Height
	}
	scale := desc.Scale
	if scale <= 0 {
		scale = 1
	}
	w := int(math32.Round(float32(viewportWidth) * scale))
	h := int(math32.Round(float32(viewportHeight) * scale))
	return max(w, 1), max(h, 1)
}

// createTextures allocates one texture per attachment, releasing partial results on failure.
func (p *pool) createTextures(t *renderTarget, width, height int) ([]renderer.Texture, error) {
	textures := make([]renderer.Texture, 0, len(t.names))
	for _, name := range t.names {
		tex, err := p.r.CreateTexture(name, width, height, t.format)
		if err != nil {
			for _, created := range textures {
				created.Release()
			}
			return nil, fmt.Errorf("failed to create %q: %w", name, err)
		}
		textures = append(textures, tex)
	}
	return textures, nil
}

func (p *pool) Allocate(owner string, desc Descriptor) (Handle, error) {
	if desc.Label == "" {
		return 0, fmt.Errorf("render target for %q has no label", owner)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	t := &renderTarget{
		owner:  owner,
		desc:   desc,
		format: desc.Format,
		names:  desc.exportNames(),
	}
	if t.format.Float() && (p.nativeFormats || !p.r.Capabilities().Has(renderer.CapFloatTargets)) {
		t.format = common.TextureFormatRGBA8
	}
	for _, name := range t.names {
		if _, taken := p.byName[name]; taken {
			return 0, fmt.Errorf("render target name %q is already in use", name)
		}
	}

	t.width, t.height = sizeFor(desc, p.viewportWidth, p.viewportHeight)
	textures, err := p.createTextures(t, t.width, t.height)
	if err != nil {
		return 0, err
	}
	t.textures = textures

	p.nextHandle++
	t.handle = p.nextHandle
	p.targets[t.handle] = t
	p.order = append(p.order, t.handle)
	for _, name := range t.names {
		p.byName[name] = t.handle
	}

	common.Logger().Debug("render target allocated",
		"owner", owner,
		"names", t.names,
		"size", fmt.Sprintf("%dx%d", t.width, t.height),
		"format", t.format.String(),
	)
	return t.handle, nil
}

func (p *pool) Get(h Handle) (RenderTarget, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, exists := p.targets[h]
	if !exists {
		return nil, fmt.Errorf("handle %d: %w", h, ErrInvalidHandle)
	}
	return t, nil
}

func (p *pool) Resize(h Handle, width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid render target size %dx%d", width, height)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	t, exists := p.targets[h]
	if !exists {
		return fmt.Errorf("handle %d: %w", h, ErrInvalidHandle)
	}
	textures, err := p.createTextures(t, width, height)
	if err != nil {
		return err
	}
	for _, old := range t.textures {
		old.Release()
	}
	t.textures = textures
	t.width, t.height = width, height
	t.desc.Width, t.desc.Height = width, height
	return nil
}

func (p *pool) ResizeAll(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid viewport size %dx%d", width, height)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	type resized struct {
		t             *renderTarget
		width, height int
		textures      []renderer.Texture
	}
	batch := make([]resized, 0, len(p.order))
	for _, h := range p.order {
		t := p.targets[h]
		if !t.desc.viewportRelative() {
			continue
		}
		w, hh := sizeFor(t.desc, width, height)
		textures, err := p.createTextures(t, w, hh)
		if err != nil {
			for _, r := range batch {
				for _, tex := range r.textures {
					tex.Release()
				}
			}
			return fmt.Errorf("failed to resize render targets to %dx%d: %w", width, height, err)
		}
		batch = append(batch, resized{t: t, width: w, height: hh, textures: textures})
	}

	for _, r := range batch {
		for _, old := range r.t.textures {
			old.Release()
		}
		r.t.textures = r.textures
		r.t.width, r.t.height = r.width, r.height
	}
	p.viewportWidth, p.viewportHeight = width, height
	common.Logger().Debug("render targets resized", "viewport", fmt.Sprintf("%dx%d", width, height), "count", len(batch))
	return nil
}

// release removes a target from the pool and frees its textures. Callers hold p.mu.
func (p *pool) release(h Handle) (*renderTarget, bool) {
	t, exists := p.targets[h]
	if !exists {
		return nil, false
	}
	delete(p.targets, h)
	for i, o := range p.order {
		if o == h {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	for _, name := range t.names {
		delete(p.byName, name)
	}
	for _, tex := range t.textures {
		tex.Release()
	}
	t.released = true
	common.Logger().Debug("render target released", "owner", t.owner, "names", t.names)
	return t, true
}

// notify calls the release listeners for released targets. Callers must not hold p.mu.
func (p *pool) notify(released []*renderTarget) {
	p.mu.Lock()
	listeners := append([]ReleaseListener(nil), p.listeners...)
	p.mu.Unlock()
	for _, t := range released {
		for _, l := range listeners {
			l(t.handle, t.names)
		}
	}
}

func (p *pool) Release(h Handle) error {
	p.mu.Lock()
	t, ok := p.release(h)
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("handle %d: %w", h, ErrInvalidHandle)
	}
	p.notify([]*renderTarget{t})
	return nil
}

func (p *pool) ReleaseOwner(owner string) {
	p.mu.Lock()
	var released []*renderTarget
	for _, h := range append([]Handle(nil), p.order...) {
		if p.targets[h].owner != owner {
			continue
		}
		if t, ok := p.release(h); ok {
			released = append(released, t)
		}
	}
	p.mu.Unlock()
	p.notify(released)
}

func (p *pool) ReleaseAll() {
	p.mu.Lock()
	var released []*renderTarget
	for _, h := range append([]Handle(nil), p.order...) {
		if t, ok := p.release(h); ok {
			released = append(released, t)
		}
	}
	p.mu.Unlock()
	p.notify(released)
}

func (p *pool) Texture(name string) renderer.Texture {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, exists := p.byName[name]
	if !exists {
		return nil
	}
	t := p.targets[h]
	for i, n := range t.names {
		if n == name {
			return t.textures[i]
		}
	}
	return nil
}

func (p *pool) Live() []RenderTarget {
	p.mu.Lock()
	defer p.mu.Unlock()
	live := make([]RenderTarget, len(p.order))
	for i, h := range p.order {
		live[i] = p.targets[h]
	}
	return live
}

func (p *pool) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var names []string
	for _, h := range p.order {
		names = append(names, p.targets[h].names...)
	}
	return names
}

func (p *pool) OnRelease(l ReleaseListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}
