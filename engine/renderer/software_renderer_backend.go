package renderer

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/shader"
)

// softTexture is a Texture stored as RGBA float32 in CPU memory. Values are kept at the precision of
// the texture format so results match what a GPU target would hold.
type softTexture struct {
	textureInfo
	data []float32
}

var _ Texture = &softTexture{}

func (t *softTexture) Release() {
	if t.markReleased() {
		t.data = nil
	}
}

// sampler returns a shader.Sampler reading the texture.
func (t *softTexture) sampler() shader.Sampler {
	return shader.NewFloatSampler(t.width, t.height, t.data)
}

type softwareRendererBackendImpl struct {
	mu      *sync.Mutex
	pool    worker.DynamicWorkerPool
	workers int
	taskID  int
}

var _ RendererBackend = &softwareRendererBackendImpl{}

// newSoftwareRendererBackend creates the CPU backend. Rows of every draw are split across a worker pool
// of the given size; n <= 0 uses one worker per CPU.
func newSoftwareRendererBackend(n int) *softwareRendererBackendImpl {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &softwareRendererBackendImpl{
		mu:      &sync.Mutex{},
		pool:    worker.NewDynamicWorkerPool(n, 256, 1*time.Second),
		workers: n,
	}
}

func (b *softwareRendererBackendImpl) Capabilities() Capabilities {
	return CapAll
}

func (b *softwareRendererBackendImpl) CreateTexture(label string, width, height int, format common.TextureFormat) (Texture, error) {
	t := &softTexture{
		textureInfo: textureInfo{label: label, width: width, height: height, format: format},
		data:        make([]float32, width*height*4),
	}
	if format == common.TextureFormatR16F {
		for i := 3; i < len(t.data); i += 4 {
			t.data[i] = 1
		}
	}
	return t, nil
}

func (b *softwareRendererBackendImpl) UploadTexture(t Texture, data common.TextureStagingData) error {
	tex, ok := t.(*softTexture)
	if !ok {
		return fmt.Errorf("texture %q does not belong to the software backend", t.Label())
	}
	rgba := stagingToRGBA(data)
	for i := 0; i < len(rgba); i += 4 {
		v := quantize([4]float32{rgba[i], rgba[i+1], rgba[i+2], rgba[i+3]}, tex.format)
		copy(tex.data[i:i+4], v[:])
	}
	return nil
}

func (b *softwareRendererBackendImpl) RegisterShader(s shader.Shader) error {
	if s.Kernel() == nil {
		return errors.New("shader has no CPU kernel")
	}
	return nil
}

func (b *softwareRendererBackendImpl) BeginFrame() error {
	return nil
}

func (b *softwareRendererBackendImpl) Draw(s shader.Shader, cmd DrawCommand) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	samplers := make([]shader.Sampler, len(cmd.Inputs))
	for i, in := range cmd.Inputs {
		if in == nil {
			samplers[i] = shader.NewConstantSampler([4]float32{0, 0, 0, 1})
			continue
		}
		tex, ok := in.(*softTexture)
		if !ok {
			return fmt.Errorf("texture %q does not belong to the software backend", in.Label())
		}
		samplers[i] = tex.sampler()
	}
	outputs := make([]*softTexture, len(cmd.Outputs))
	for i, out := range cmd.Outputs {
		tex, ok := out.(*softTexture)
		if !ok {
			return fmt.Errorf("texture %q does not belong to the software backend", out.Label())
		}
		outputs[i] = tex
	}

	// Uniforms are truncated and zero padded to their declared size, matching the packed GPU block.
	uniforms := make(shader.Uniforms, len(s.Uniforms()))
	for _, u := range s.Uniforms() {
		v := make([]float32, u.Size)
		copy(v, cmd.Uniforms[u.Name])
		uniforms[u.Name] = v
	}

	width, height := outputs[0].width, outputs[0].height
	kernel := s.Kernel()
	rowsPerTask := max(1, height/(b.workers*4))

	var wg sync.WaitGroup
	for y0 := 0; y0 < height; y0 += rowsPerTask {
		y1 := min(y0+rowsPerTask, height)
		wg.Add(1)
		id := b.taskID
		b.taskID++
		b.pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()

				inv := &shader.Invocation{
					Width:    width,
					Height:   height,
					Inputs:   samplers,
					Uniforms: uniforms,
				}
				out := make([][4]float32, len(outputs))
				for y := y0; y < y1; y++ {
					for x := range width {
						inv.X, inv.Y = x, y
						inv.U = (float32(x) + 0.5) / float32(width)
						inv.V = (float32(y) + 0.5) / float32(height)
						clear(out)
						kernel(inv, out)
						i := (y*width + x) * 4
						for o, tex := range outputs {
							v := quantize(out[o], tex.format)
							copy(tex.data[i:i+4], v[:])
						}
					}
				}
				return nil, nil
			},
		})
	}
	wg.Wait()
	return nil
}

func (b *softwareRendererBackendImpl) EndFrame() error {
	return nil
}

func (b *softwareRendererBackendImpl) Present(t Texture) error {
	return nil
}

func (b *softwareRendererBackendImpl) ReadPixels(t Texture) ([]float32, error) {
	tex, ok := t.(*softTexture)
	if !ok {
		return nil, fmt.Errorf("texture %q does not belong to the software backend", t.Label())
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]float32(nil), tex.data...), nil
}

func (b *softwareRendererBackendImpl) ConfigureSurface(width, height int) {}

func (b *softwareRendererBackendImpl) Release() {
	b.pool.Stop()
}
