package renderer

import (
	"errors"
	"fmt"
	"image/color"
	"strings"
	"sync"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/shader"
	"github.com/hajimehoshi/ebiten/v2"
)

// maxEbitenInputs is the number of source images a Kage shader can read.
const maxEbitenInputs = 4

// ebitenTexture is a Texture backed by an offscreen ebiten image.
type ebitenTexture struct {
	textureInfo
	image *ebiten.Image
}

var _ Texture = &ebitenTexture{}

func (t *ebitenTexture) Release() {
	if t.markReleased() {
		t.image.Deallocate()
	}
}

// scratchKey identifies a cached rescale image by input slot and size.
type scratchKey struct {
	slot, width, height int
}

type ebitenRendererBackendImpl struct {
	mu      *sync.Mutex
	shaders map[string]*ebiten.Shader
	scratch map[scratchKey]*ebiten.Image
}

var _ RendererBackend = &ebitenRendererBackendImpl{}

// newEbitenRendererBackend creates the raster-only backend. Draws are queued on ebiten's command
// stream and flushed by the game loop.
func newEbitenRendererBackend() *ebitenRendererBackendImpl {
	return &ebitenRendererBackendImpl{
		mu:      &sync.Mutex{},
		shaders: make(map[string]*ebiten.Shader),
		scratch: make(map[scratchKey]*ebiten.Image),
	}
}

// EbitenImage returns the ebiten image behind a texture created by an ebiten renderer, or nil for
// textures of other backends. Games draw the presented texture onto the screen with it.
//
// Parameters:
//   - t: the texture
//
// Returns:
//   - *ebiten.Image: the backing image, or nil
func EbitenImage(t Texture) *ebiten.Image {
	if tex, ok := t.(*ebitenTexture); ok && !tex.Released() {
		return tex.image
	}
	return nil
}

func (b *ebitenRendererBackendImpl) Capabilities() Capabilities {
	return CapNone
}

func (b *ebitenRendererBackendImpl) CreateTexture(label string, width, height int, format common.TextureFormat) (Texture, error) {
	if format != common.TextureFormatRGBA8 {
		return nil, fmt.Errorf("texture %q: ebiten backend only supports %s", label, common.TextureFormatRGBA8)
	}
	return &ebitenTexture{
		textureInfo: textureInfo{label: label, width: width, height: height, format: format},
		image:       ebiten.NewImage(width, height),
	}, nil
}

func (b *ebitenRendererBackendImpl) UploadTexture(t Texture, data common.TextureStagingData) error {
	tex, ok := t.(*ebitenTexture)
	if !ok {
		return fmt.Errorf("texture %q does not belong to the ebiten backend", t.Label())
	}
	pixels := data.Pixels
	if data.Format != common.TextureFormatRGBA8 {
		pixels = rgbaToBytes(stagingToRGBA(data))
	}
	tex.image.WritePixels(pixels)
	return nil
}

func (b *ebitenRendererBackendImpl) RegisterShader(s shader.Shader) error {
	if len(s.KageSource()) == 0 {
		return errors.New("shader has no Kage source")
	}
	if len(s.Inputs()) > maxEbitenInputs {
		return fmt.Errorf("shader reads %d inputs, ebiten supports %d", len(s.Inputs()), maxEbitenInputs)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.shaders[s.Key()]; exists {
		return nil
	}
	compiled, err := ebiten.NewShader(s.KageSource())
	if err != nil {
		return err
	}
	b.shaders[s.Key()] = compiled
	return nil
}

func (b *ebitenRendererBackendImpl) BeginFrame() error {
	return nil
}

// source returns an image of the destination size holding the input, rescaling with linear filtering
// when the sizes differ. Kage reads every source image at destination pixel coordinates.
func (b *ebitenRendererBackendImpl) source(slot int, in Texture, width, height int) (*ebiten.Image, error) {
	if in != nil {
		tex, ok := in.(*ebitenTexture)
		if !ok {
			return nil, fmt.Errorf("texture %q does not belong to the ebiten backend", in.Label())
		}
		if tex.width == width && tex.height == height {
			return tex.image, nil
		}
	}

	key := scratchKey{slot: slot, width: width, height: height}
	img, exists := b.scratch[key]
	if !exists {
		img = ebiten.NewImage(width, height)
		b.scratch[key] = img
	}
	if in == nil {
		img.Fill(color.Black)
		return img, nil
	}

	tex := in.(*ebitenTexture)
	op := &ebiten.DrawImageOptions{
		Filter: ebiten.FilterLinear,
		Blend:  ebiten.BlendCopy,
	}
	op.GeoM.Scale(float64(width)/float64(tex.width), float64(height)/float64(tex.height))
	img.DrawImage(tex.image, op)
	return img, nil
}

func (b *ebitenRendererBackendImpl) Draw(s shader.Shader, cmd DrawCommand) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	compiled, exists := b.shaders[s.Key()]
	if !exists {
		return fmt.Errorf("shader %q: %w", s.Key(), ErrUnsupportedShader)
	}
	dst, ok := cmd.Outputs[0].(*ebitenTexture)
	if !ok {
		return fmt.Errorf("texture %q does not belong to the ebiten backend", cmd.Outputs[0].Label())
	}

	op := &ebiten.DrawRectShaderOptions{
		Blend:    ebiten.BlendCopy,
		Uniforms: make(map[string]any, len(s.Uniforms())),
	}
	for i, in := range cmd.Inputs {
		img, err := b.source(i, in, dst.width, dst.height)
		if err != nil {
			return err
		}
		op.Images[i] = img
	}
	for _, u := range s.Uniforms() {
		v := make([]float32, u.Size)
		copy(v, cmd.Uniforms[u.Name])
		if u.Size == 1 {
			op.Uniforms[kageUniformName(u.Name)] = v[0]
		} else {
			op.Uniforms[kageUniformName(u.Name)] = v
		}
	}

	dst.image.DrawRectShader(dst.width, dst.height, compiled, op)
	return nil
}

// kageUniformName returns the exported Kage name of a uniform, e.g. "threshold" becomes "Threshold".
func kageUniformName(name string) string {
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}

func (b *ebitenRendererBackendImpl) EndFrame() error {
	return nil
}

// Present is a no-op: the game's Draw callback copies the presented texture onto the screen.
func (b *ebitenRendererBackendImpl) Present(t Texture) error {
	return nil
}

// ReadPixels is unsupported since ebiten only reads pixels back inside its game loop.
func (b *ebitenRendererBackendImpl) ReadPixels(t Texture) ([]float32, error) {
	return nil, ErrReadbackUnsupported
}

func (b *ebitenRendererBackendImpl) ConfigureSurface(width, height int) {}

func (b *ebitenRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, s := range b.shaders {
		s.Deallocate()
		delete(b.shaders, key)
	}
	for key, img := range b.scratch {
		img.Deallocate()
		delete(b.scratch, key)
	}
}
