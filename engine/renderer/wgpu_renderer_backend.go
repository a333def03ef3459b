package renderer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/bind_group_provider"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/shader"
	"github.com/cogentcore/webgpu/wgpu"
)

// fullscreenVertexEntryPoint is the vertex entry point emitted by "//@oxy:include fullscreen".
const fullscreenVertexEntryPoint = "vs_main"

// wgpuTexture is a Texture backed by a wgpu texture and its default view.
type wgpuTexture struct {
	textureInfo
	texture *wgpu.Texture
	view    *wgpu.TextureView
}

var _ Texture = &wgpuTexture{}

func (t *wgpuTexture) Release() {
	if !t.markReleased() {
		return
	}
	t.view.Release()
	t.texture.Release()
}

type wgpuRendererBackendImpl struct {
	mu     *sync.Mutex
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface // nil when running headless

	surfaceFormat wgpu.TextureFormat
	presentMode   wgpu.PresentMode

	// Shared resources bound by every draw
	sampler *wgpu.Sampler
	black   *wgpuTexture

	modules   map[string]*wgpu.ShaderModule
	pipelines map[string]pipeline.Pipeline
	blit      pipeline.Pipeline

	// Frame state for batching every pass of a frame into a single GPU submission
	frameEncoder   *wgpu.CommandEncoder
	frameProviders []bind_group_provider.BindGroupProvider
}

var _ RendererBackend = &wgpuRendererBackendImpl{}

// newWGPURendererBackend acquires a GPU device. A nil surface descriptor creates a headless backend
// that renders offscreen and ignores Present.
func newWGPURendererBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, forceFallbackAdapter bool, mode PresentMode) (*wgpuRendererBackendImpl, error) {
	w := &wgpuRendererBackendImpl{
		mu:        &sync.Mutex{},
		instance:  wgpu.CreateInstance(nil),
		modules:   make(map[string]*wgpu.ShaderModule),
		pipelines: make(map[string]pipeline.Pipeline),
	}
	switch mode {
	case PresentModeVSync:
		w.presentMode = wgpu.PresentModeFifo
	default:
		w.presentMode = wgpu.PresentModeImmediate
	}
	if surfaceDescriptor != nil {
		w.surface = w.instance.CreateSurface(surfaceDescriptor)
	}

	a, err := w.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
		CompatibleSurface:    w.surface,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to request adapter: %w", err)
	}
	w.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Effect Device",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to request device: %w", err)
	}
	w.device = d
	w.queue = d.GetQueue()

	w.sampler, err = d.CreateSampler(common.ClampLinearSampler().Descriptor("Effect Sampler"))
	if err != nil {
		return nil, fmt.Errorf("failed to create sampler: %w", err)
	}

	black, err := w.createTexture("black", 1, 1, common.TextureFormatRGBA8)
	if err != nil {
		return nil, err
	}
	w.writeTexture(black, []byte{0, 0, 0, 255}, 4)
	w.black = black

	return w, nil
}

func (b *wgpuRendererBackendImpl) Capabilities() Capabilities {
	return CapAll
}

func (b *wgpuRendererBackendImpl) ConfigureSurface(width, height int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.surface == nil || width <= 0 || height <= 0 {
		return
	}

	capabilities := b.surface.GetCapabilities(b.adapter)
	format := capabilities.Formats[0]
	if b.blit != nil && format != b.surfaceFormat {
		b.blit.Release()
		b.blit = nil
	}
	b.surfaceFormat = format

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      b.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})
}

func (b *wgpuRendererBackendImpl) CreateTexture(label string, width, height int, format common.TextureFormat) (Texture, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.createTexture(label, width, height, format)
}

func (b *wgpuRendererBackendImpl) createTexture(label string, width, height int, format common.TextureFormat) (*wgpuTexture, error) {
	usage := wgpu.TextureUsageTextureBinding | wgpu.TextureUsageRenderAttachment |
		wgpu.TextureUsageCopyDst | wgpu.TextureUsageCopySrc
	if format != common.TextureFormatR16F {
		usage |= wgpu.TextureUsageStorageBinding
	}

	tex, err := b.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     label,
		Usage:     usage,
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		Format:        shader.TextureFormat(format),
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create texture %q: %w", label, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("failed to create view for %q: %w", label, err)
	}

	return &wgpuTexture{
		textureInfo: textureInfo{label: label, width: width, height: height, format: format},
		texture:     tex,
		view:        view,
	}, nil
}

func (b *wgpuRendererBackendImpl) UploadTexture(t Texture, data common.TextureStagingData) error {
	tex, ok := t.(*wgpuTexture)
	if !ok {
		return fmt.Errorf("texture %q does not belong to the wgpu backend", t.Label())
	}

	var bytes []byte
	var bytesPerPixel int
	switch {
	case tex.format == common.TextureFormatRGBA8 && data.Format == common.TextureFormatRGBA8:
		bytes, bytesPerPixel = data.Pixels, 4
	case tex.format == common.TextureFormatRGBA8:
		bytes, bytesPerPixel = rgbaToBytes(stagingToRGBA(data)), 4
	default:
		channels := tex.format.Channels()
		bytes, bytesPerPixel = common.SliceToBytes(rgbaToHalf(stagingToRGBA(data), channels)), channels*2
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.writeTexture(tex, bytes, bytesPerPixel)
	return nil
}

func (b *wgpuRendererBackendImpl) writeTexture(tex *wgpuTexture, data []byte, bytesPerPixel int) {
	b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  tex.texture,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		data,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(tex.width * bytesPerPixel),
			RowsPerImage: uint32(tex.height),
		},
		&wgpu.Extent3D{
			Width:              uint32(tex.width),
			Height:             uint32(tex.height),
			DepthOrArrayLayers: 1,
		},
	)
}

func (b *wgpuRendererBackendImpl) RegisterShader(s shader.Shader) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s.Module() == nil {
		return errors.New("shader has no WGSL source")
	}
	_, err := b.shaderModule(s)
	return err
}

// shaderModule returns the compiled module of a shader, compiling it on first use.
func (b *wgpuRendererBackendImpl) shaderModule(s shader.Shader) (*wgpu.ShaderModule, error) {
	if m, exists := b.modules[s.Key()]; exists {
		return m, nil
	}
	m, err := b.device.CreateShaderModule(s.Module())
	if err != nil {
		return nil, err
	}
	b.modules[s.Key()] = m
	return m, nil
}

// pipelineFor returns the pipeline running s into targets of the given formats, creating it on first use.
func (b *wgpuRendererBackendImpl) pipelineFor(s shader.Shader, formats []common.TextureFormat) (pipeline.Pipeline, error) {
	key := pipeline.Key(s.Key(), formats)
	if s.ShaderType() == shader.ShaderTypeCompute {
		key = pipeline.Key(s.Key(), nil)
	}
	if p, exists := b.pipelines[key]; exists {
		return p, nil
	}

	p := pipeline.NewPipeline(s, pipeline.WithTargetFormats(formats...))
	if err := b.buildPipeline(p, p.ColorTargets()); err != nil {
		return nil, fmt.Errorf("failed to create pipeline %q: %w", key, err)
	}
	b.pipelines[key] = p
	return p, nil
}

// buildPipeline creates the layout and GPU pipeline object for p.
func (b *wgpuRendererBackendImpl) buildPipeline(p pipeline.Pipeline, targets []wgpu.ColorTargetState) error {
	s := p.Shader()
	module, err := b.shaderModule(s)
	if err != nil {
		return err
	}

	descriptor := s.BindGroupLayoutDescriptor()
	bindGroupLayout, err := b.device.CreateBindGroupLayout(&descriptor)
	if err != nil {
		return fmt.Errorf("failed to create bind group layout: %w", err)
	}
	p.SetBindGroupLayout(bindGroupLayout)

	layout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            p.PipelineKey(),
		BindGroupLayouts: []*wgpu.BindGroupLayout{bindGroupLayout},
	})
	if err != nil {
		return err
	}

	switch p.Type() {
	case pipeline.PipelineTypeCompute:
		created, err := b.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
			Label:  p.PipelineKey() + " Compute Pipeline",
			Layout: layout,
			Compute: wgpu.ProgrammableStageDescriptor{
				Module:     module,
				EntryPoint: s.EntryPoint(),
			},
		})
		if err != nil {
			return err
		}
		p.SetComputePipeline(created)
	case pipeline.PipelineTypeRender:
		created, err := b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
			Label:  p.PipelineKey() + " Render Pipeline",
			Layout: layout,
			Vertex: wgpu.VertexState{
				Module:     module,
				EntryPoint: fullscreenVertexEntryPoint,
			},
			Fragment: &wgpu.FragmentState{
				Module:     module,
				EntryPoint: s.EntryPoint(),
				Targets:    targets,
			},
			Primitive: wgpu.PrimitiveState{
				Topology:  wgpu.PrimitiveTopologyTriangleList,
				FrontFace: wgpu.FrontFaceCCW,
				CullMode:  wgpu.CullModeNone,
			},
			Multisample: wgpu.MultisampleState{
				Count: 1,
				Mask:  0xFFFFFFFF,
			},
		})
		if err != nil {
			return err
		}
		p.SetRenderPipeline(created)
	}
	return nil
}

// initBindGroup creates the uniform buffer and bind group of a provider whose sampler and texture
// views are already set, following the entries of the shader's layout descriptor.
func (b *wgpuRendererBackendImpl) initBindGroup(provider bind_group_provider.BindGroupProvider, descriptor wgpu.BindGroupLayoutDescriptor, layout *wgpu.BindGroupLayout) error {
	bindGroupEntries := make([]wgpu.BindGroupEntry, len(descriptor.Entries))
	for i, entry := range descriptor.Entries {
		binding := int(entry.Binding)

		isTexture := entry.Texture.SampleType != wgpu.TextureSampleTypeUndefined ||
			entry.StorageTexture.Format != wgpu.TextureFormatUndefined
		isSampler := entry.Sampler.Type != wgpu.SamplerBindingTypeUndefined

		switch {
		case isTexture:
			tv := provider.TextureView(binding)
			if tv == nil {
				return fmt.Errorf("texture binding %d has no texture view", binding)
			}
			bindGroupEntries[i] = wgpu.BindGroupEntry{
				Binding:     entry.Binding,
				TextureView: tv,
			}
		case isSampler:
			samp := provider.Sampler(binding)
			if samp == nil {
				return fmt.Errorf("sampler binding %d has no sampler", binding)
			}
			bindGroupEntries[i] = wgpu.BindGroupEntry{
				Binding: entry.Binding,
				Sampler: samp,
			}
		default:
			buf := provider.Buffer(binding)
			if buf == nil {
				var bufErr error
				buf, bufErr = b.device.CreateBuffer(&wgpu.BufferDescriptor{
					Label: provider.Label() + " Buffer",
					Size:  entry.Buffer.MinBindingSize,
					Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
				})
				if bufErr != nil {
					return bufErr
				}
				provider.SetBuffer(binding, buf)
			}
			bindGroupEntries[i] = wgpu.BindGroupEntry{
				Binding: entry.Binding,
				Buffer:  buf,
				Offset:  0,
				Size:    wgpu.WholeSize,
			}
		}
	}

	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   provider.Label() + " Bind Group",
		Layout:  layout,
		Entries: bindGroupEntries,
	})
	if err != nil {
		return err
	}
	provider.SetBindGroup(bindGroup)

	return nil
}

// bindDraw builds the bind group of one draw and uploads its uniforms.
func (b *wgpuRendererBackendImpl) bindDraw(p pipeline.Pipeline, cmd DrawCommand) (bind_group_provider.BindGroupProvider, error) {
	s := p.Shader()
	views := make([]*wgpu.TextureView, len(cmd.Inputs))
	for i, in := range cmd.Inputs {
		views[i] = b.black.view
		if in != nil {
			tex, ok := in.(*wgpuTexture)
			if !ok {
				return nil, fmt.Errorf("texture %q does not belong to the wgpu backend", in.Label())
			}
			views[i] = tex.view
		}
	}

	provider := bind_group_provider.NewBindGroupProvider(p.PipelineKey(),
		bind_group_provider.WithSampler(1, b.sampler),
		bind_group_provider.WithTextureViews(2, views...),
	)
	if s.ShaderType() == shader.ShaderTypeCompute {
		provider.SetTextureView(len(views)+2, cmd.Outputs[0].(*wgpuTexture).view)
	}

	if err := b.initBindGroup(provider, s.BindGroupLayoutDescriptor(), p.BindGroupLayout()); err != nil {
		provider.Release()
		return nil, err
	}
	write := bind_group_provider.BufferWrite{Provider: provider, Data: common.SliceToBytes(s.PackUniforms(cmd.Uniforms))}
	if err := write.Flush(b.queue); err != nil {
		provider.Release()
		return nil, err
	}
	return provider, nil
}

func (b *wgpuRendererBackendImpl) BeginFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder != nil {
		return errors.New("previous frame not yet submitted")
	}
	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	b.frameEncoder = encoder
	return nil
}

func (b *wgpuRendererBackendImpl) Draw(s shader.Shader, cmd DrawCommand) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return errors.New("draw outside of a frame")
	}

	outputs := make([]*wgpuTexture, len(cmd.Outputs))
	formats := make([]common.TextureFormat, len(cmd.Outputs))
	for i, out := range cmd.Outputs {
		tex, ok := out.(*wgpuTexture)
		if !ok {
			return fmt.Errorf("texture %q does not belong to the wgpu backend", out.Label())
		}
		outputs[i] = tex
		formats[i] = tex.format
	}

	p, err := b.pipelineFor(s, formats)
	if err != nil {
		return err
	}
	provider, err := b.bindDraw(p, cmd)
	if err != nil {
		return fmt.Errorf("failed to bind %q: %w", s.Key(), err)
	}
	b.frameProviders = append(b.frameProviders, provider)

	switch p.Type() {
	case pipeline.PipelineTypeCompute:
		wg := s.WorkgroupSize()
		pass := b.frameEncoder.BeginComputePass(nil)
		pass.SetPipeline(p.Pipeline().(*wgpu.ComputePipeline))
		pass.SetBindGroup(0, provider.BindGroup(), nil)
		pass.DispatchWorkgroups(
			(uint32(outputs[0].width)+wg[0]-1)/wg[0],
			(uint32(outputs[0].height)+wg[1]-1)/wg[1],
			1,
		)
		pass.End()
	case pipeline.PipelineTypeRender:
		attachments := make([]wgpu.RenderPassColorAttachment, len(outputs))
		for i, out := range outputs {
			attachments[i] = wgpu.RenderPassColorAttachment{
				View:       out.view,
				LoadOp:     wgpu.LoadOpClear,
				StoreOp:    wgpu.StoreOpStore,
				ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 0},
			}
		}
		pass := b.frameEncoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
			Label:            s.Key(),
			ColorAttachments: attachments,
		})
		pass.SetPipeline(p.Pipeline().(*wgpu.RenderPipeline))
		pass.SetBindGroup(0, provider.BindGroup(), nil)
		pass.Draw(3, 1, 0, 0)
		pass.End()
	}
	return nil
}

func (b *wgpuRendererBackendImpl) EndFrame() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder == nil {
		return nil
	}
	defer b.releaseFrame()

	commandBuffer, err := b.frameEncoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("failed to finish frame: %w", err)
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	return nil
}

// releaseFrame drops the encoder and the per-draw bind groups of the current frame.
func (b *wgpuRendererBackendImpl) releaseFrame() {
	b.frameEncoder.Release()
	b.frameEncoder = nil
	for _, p := range b.frameProviders {
		p.Release()
	}
	b.frameProviders = b.frameProviders[:0]
}

func (b *wgpuRendererBackendImpl) Present(t Texture) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.surface == nil {
		return nil
	}
	src, ok := t.(*wgpuTexture)
	if !ok {
		return fmt.Errorf("texture %q does not belong to the wgpu backend", t.Label())
	}

	if b.blit == nil {
		p := pipeline.NewPipeline(newBlitShader())
		targets := []wgpu.ColorTargetState{{Format: b.surfaceFormat, WriteMask: wgpu.ColorWriteMaskAll}}
		if err := b.buildPipeline(p, targets); err != nil {
			return fmt.Errorf("failed to create present pipeline: %w", err)
		}
		b.blit = p
	}

	surfaceTexture, err := b.surface.GetCurrentTexture()
	if err != nil {
		return err
	}
	defer surfaceTexture.Release()
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		return err
	}
	defer view.Release()

	provider, err := b.bindDraw(b.blit, DrawCommand{Inputs: []Texture{src}})
	if err != nil {
		return err
	}
	defer provider.Release()

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	defer encoder.Release()

	pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: wgpu.Color{R: 0, G: 0, B: 0, A: 1},
		}},
	})
	pass.SetPipeline(b.blit.Pipeline().(*wgpu.RenderPipeline))
	pass.SetBindGroup(0, provider.BindGroup(), nil)
	pass.Draw(3, 1, 0, 0)
	pass.End()

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return err
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	b.surface.Present()
	return nil
}

func (b *wgpuRendererBackendImpl) ReadPixels(t Texture) ([]float32, error) {
	return nil, ErrReadbackUnsupported
}

func (b *wgpuRendererBackendImpl) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.frameEncoder != nil {
		b.releaseFrame()
	}
	for key, p := range b.pipelines {
		p.Release()
		delete(b.pipelines, key)
	}
	if b.blit != nil {
		b.blit.Release()
		b.blit = nil
	}
	for key, m := range b.modules {
		m.Release()
		delete(b.modules, key)
	}
	b.black.Release()
	b.sampler.Release()
	b.queue.Release()
	b.device.Release()
	b.adapter.Release()
	if b.surface != nil {
		b.surface.Release()
	}
	b.instance.Release()
}
