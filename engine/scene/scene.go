package scene

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/camera"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer"
	"github.com/chewxy/math32"
)

// Texture names of the synthetic scene buffers.
const (
	TextureColor     = "scene.color"
	TextureDepth     = "scene.depth"
	TextureMask      = "scene.mask"
	TextureNormal    = "scene.normal"
	TextureSubNormal = "scene.subNormal"
)

// SyntheticScene is a small ray traced scene used to drive the effect chain without a model
// pipeline: a checkered floor, a row of spheres at increasing distance and an emissive sphere
// orbiting the selected one. The selected sphere is written to the mask and its center is the
// tracked bone.
type SyntheticScene interface {
	// Camera returns the scene camera.
	Camera() camera.Camera

	// Bone returns the world position of the tracked joint, the center of the selected sphere.
	Bone() *[3]float32

	// Selected reports whether the selected sphere is written to the mask.
	Selected() bool

	// SetSelected sets whether the selected sphere is written to the mask.
	SetSelected(selected bool)

	// Advance moves the animated objects forward.
	//
	// Parameters:
	//   - dt: elapsed time in seconds
	Advance(dt float32)

	// Render traces the scene into textures of r and returns the frame. Textures are created on
	// the first call and recreated when the renderer or the size changes.
	//
	// Parameters:
	//   - r: the renderer the textures belong to
	//   - width, height: the buffer size in pixels
	//
	// Returns:
	//   - Frame: the scene buffers, camera and bone
	//   - error: an error if a texture could not be created or uploaded
	Render(r renderer.Renderer, width, height int) (Frame, error)

	// Texture returns a scene texture by name, or nil if it has not been rendered yet.
	Texture(name string) renderer.Texture

	// Release frees the textures and stops the worker pool.
	Release()
}

type sphere struct {
	center   [3]float32
	radius   float32
	albedo   [3]float32
	emissive float32
}

type syntheticScene struct {
	mu *sync.Mutex

	cam      camera.Camera
	spheres  []sphere
	selected int
	masked   bool
	time     float32

	lightDir      [3]float32
	normalMapSize int

	r        renderer.Renderer
	width    int
	height   int
	textures map[string]renderer.Texture
	maps     bool

	pool    worker.DynamicWorkerPool
	workers int
	taskID  int
}

var _ SyntheticScene = &syntheticScene{}

// NewSyntheticScene creates the synthetic scene. The camera defaults to one at (0, 1.5, 10)
// looking at the origin with near 0.5 and far 60.
//
// Parameters:
//   - options: functional options to configure the scene
//
// Returns:
//   - SyntheticScene: the scene
func NewSyntheticScene(options ...SyntheticSceneBuilderOption) SyntheticScene {
	s := &syntheticScene{
		mu: &sync.Mutex{},
		spheres: []sphere{
			{center: [3]float32{0, 0, 0}, radius: 1, albedo: [3]float32{0.8, 0.3, 0.2}},
			{center: [3]float32{-3, 0, -6}, radius: 1, albedo: [3]float32{0.2, 0.6, 0.3}},
			{center: [3]float32{3.5, 0.5, -14}, radius: 1.5, albedo: [3]float32{0.2, 0.3, 0.8}},
			{center: [3]float32{2, 0.8, 0}, radius: 0.35, albedo: [3]float32{1, 0.9, 0.7}, emissive: 4},
		},
		masked:        true,
		lightDir:      common.Normalize3([3]float32{0.4, 1, 0.6}),
		normalMapSize: 128,
		textures:      make(map[string]renderer.Texture),
		workers:       max(runtime.NumCPU()-1, 1),
	}
	for _, option := range options {
		option(s)
	}
	if s.cam == nil {
		s.cam = camera.NewCamera(
			camera.WithPosition([3]float32{0, 1.5, 10}),
			camera.WithTarget([3]float32{0, 0, 0}),
			camera.WithNear(0.5),
			camera.WithFar(60),
		)
	}
	s.pool = worker.NewDynamicWorkerPool(s.workers, 256, 1*time.Second)
	return s
}

func (s *syntheticScene) Camera() camera.Camera {
	return s.cam
}

func (s *syntheticScene) Bone() *[3]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.spheres[s.selected].center
	return &c
}

func (s *syntheticScene) Selected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.masked
}

func (s *syntheticScene) SetSelected(selected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.masked = selected
}

func (s *syntheticScene) Advance(dt float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.time += dt
	orbit := s.spheres[s.selected].center
	s.spheres[3].center = [3]float32{
		orbit[0] + 2*math32.Cos(s.time),
		orbit[1] + 0.8,
		orbit[2] + 2*math32.Sin(s.time),
	}
}

func (s *syntheticScene) Texture(name string) renderer.Texture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.textures[name]
}

func (s *syntheticScene) Render(r renderer.Renderer, width, height int) (Frame, error) {
	if r == nil {
		return Frame{}, fmt.Errorf("scene: Render requires a renderer")
	}
	width, height = max(width, 1), max(height, 1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.r != r || s.width != width || s.height != height {
		if err := s.recreateLocked(r, width, height); err != nil {
			return Frame{}, err
		}
	}
	if !s.maps {
		if err := s.uploadNormalMapsLocked(); err != nil {
			return Frame{}, err
		}
		s.maps = true
	}

	aspect := float32(width) / float32(height)
	if s.cam.Aspect() != aspect {
		s.cam.SetAspect(aspect)
	}

	color := make([]float32, width*height*4)
	depth := make([]float32, width*height)
	mask := make([]float32, width*height)
	s.traceLocked(width, height, color, depth, mask)

	uploads := []struct {
		name string
		data common.TextureStagingData
	}{
		{TextureColor, common.TextureStagingData{Floats: color, Format: common.TextureFormatRGBA16F, Width: uint32(width), Height: uint32(height)}},
		{TextureDepth, common.TextureStagingData{Floats: depth, Format: common.TextureFormatR16F, Width: uint32(width), Height: uint32(height)}},
		{TextureMask, common.TextureStagingData{Floats: mask, Format: common.TextureFormatR16F, Width: uint32(width), Height: uint32(height)}},
	}
	for _, u := range uploads {
		if err := r.UploadTexture(s.textures[u.name], u.data); err != nil {
			return Frame{}, fmt.Errorf("failed to upload %s: %w", u.name, err)
		}
	}

	frame := Frame{
		Camera: s.cam,
		Color:  s.textures[TextureColor],
		Depth:  s.textures[TextureDepth],
	}
	if s.masked {
		frame.Mask = s.textures[TextureMask]
	}
	bone := s.spheres[s.selected].center
	frame.Bone = &bone
	return frame, nil
}

// recreateLocked replaces the frame textures for a new renderer or size. The normal maps only
// follow the renderer.
func (s *syntheticScene) recreateLocked(r renderer.Renderer, width, height int) error {
	if s.r != r {
		for name, t := range s.textures {
			t.Release()
			delete(s.textures, name)
		}
		s.maps = false
	}
	formats := map[string]common.TextureFormat{
		TextureColor: common.TextureFormatRGBA16F,
		TextureDepth: common.TextureFormatR16F,
		TextureMask:  common.TextureFormatR16F,
	}
	for name, format := range formats {
		if t, ok := s.textures[name]; ok {
			t.Release()
		}
		t, err := r.CreateTexture(name, width, height, format)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", name, err)
		}
		s.textures[name] = t
	}
	s.r, s.width, s.height = r, width, height
	common.Logger().Debug("scene textures created", "width", width, "height", height)
	return nil
}

func (s *syntheticScene) uploadNormalMapsLocked() error {
	n := s.normalMapSize
	maps := map[string]func(u, v float32) [3]float32{
		TextureNormal:    baseNormal,
		TextureSubNormal: detailNormal,
	}
	for name, fn := range maps {
		pixels := make([]byte, n*n*4)
		for y := range n {
			for x := range n {
				nrm := fn((float32(x)+0.5)/float32(n), (float32(y)+0.5)/float32(n))
				i := (y*n + x) * 4
				for c := range 3 {
					pixels[i+c] = uint8(common.Saturate(nrm[c]*0.5+0.5)*255 + 0.5)
				}
				pixels[i+3] = 255
			}
		}
		t, err := s.r.CreateTexture(name, n, n, common.TextureFormatRGBA8)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", name, err)
		}
		if err := s.r.UploadTexture(t, common.TextureStagingData{Pixels: pixels, Format: common.TextureFormatRGBA8, Width: uint32(n), Height: uint32(n)}); err != nil {
			t.Release()
			return fmt.Errorf("failed to upload %s: %w", name, err)
		}
		s.textures[name] = t
	}
	return nil
}

// traceLocked fills the scene buffers, splitting rows across the worker pool.
func (s *syntheticScene) traceLocked(width, height int, color, depth, mask []float32) {
	eye := s.cam.Position()
	forward := common.Normalize3(sub3(s.cam.Target(), eye))
	ux, uy, uz := s.cam.Up()
	right := common.Normalize3(cross3(forward, [3]float32{ux, uy, uz}))
	up := cross3(right, forward)
	tanHalf := math32.Tan(s.cam.Fov() / 2)
	aspect := s.cam.Aspect()
	near, far := s.cam.Near(), s.cam.Far()
	spheres := append([]sphere(nil), s.spheres...)
	selected, masked := s.selected, s.masked

	rowsPerTask := max(1, height/(s.workers*4))
	var wg sync.WaitGroup
	for y0 := 0; y0 < height; y0 += rowsPerTask {
		y1 := min(y0+rowsPerTask, height)
		wg.Add(1)
		id := s.taskID
		s.taskID++
		s.pool.SubmitTask(worker.Task{
			ID: id,
			Do: func() (any, error) {
				defer wg.Done()
				for y := y0; y < y1; y++ {
					py := (1 - 2*(float32(y)+0.5)/float32(height)) * tanHalf
					for x := range width {
						px := (2*(float32(x)+0.5)/float32(width) - 1) * tanHalf * aspect
						dir := common.Normalize3([3]float32{
							forward[0] + right[0]*px + up[0]*py,
							forward[1] + right[1]*px + up[1]*py,
							forward[2] + right[2]*px + up[2]*py,
						})
						h := trace(eye, dir, spheres)
						i := y*width + x
						c := s.shade(h, dir, spheres)
						copy(color[i*4:i*4+3], c[:])
						color[i*4+3] = 1
						if !h.ok {
							depth[i] = 1
							continue
						}
						depth[i] = common.ProjectDepth(h.t*common.Dot3(dir, forward), near, far)
						if masked && h.sphere == selected {
							mask[i] = 1
						}
					}
				}
				return nil, nil
			},
		})
	}
	wg.Wait()
}

// hit is the nearest ray intersection. sphere is -1 for the floor.
type hit struct {
	ok     bool
	t      float32
	sphere int
	point  [3]float32
	normal [3]float32
}

const floorY = -1

func trace(origin, dir [3]float32, spheres []sphere) hit {
	best := hit{t: math32.MaxFloat32, sphere: -1}
	for i, sp := range spheres {
		oc := sub3(origin, sp.center)
		b := common.Dot3(oc, dir)
		c := common.Dot3(oc, oc) - sp.radius*sp.radius
		disc := b*b - c
		if disc < 0 {
			continue
		}
		t := -b - math32.Sqrt(disc)
		if t <= 1e-3 || t >= best.t {
			continue
		}
		p := add3(origin, scale3(dir, t))
		best = hit{ok: true, t: t, sphere: i, point: p, normal: common.Normalize3(sub3(p, sp.center))}
	}
	if dir[1] < 0 {
		t := (floorY - origin[1]) / dir[1]
		if t > 1e-3 && t < best.t {
			best = hit{ok: true, t: t, sphere: -1, point: add3(origin, scale3(dir, t)), normal: [3]float32{0, 1, 0}}
		}
	}
	return best
}

func (s *syntheticScene) shade(h hit, dir [3]float32, spheres []sphere) [3]float32 {
	if !h.ok {
		sky := common.Saturate(dir[1]*0.5 + 0.5)
		return [3]float32{
			common.Lerp(0.6, 0.2, sky),
			common.Lerp(0.7, 0.35, sky),
			common.Lerp(0.8, 0.6, sky),
		}
	}
	var albedo [3]float32
	var emissive float32
	if h.sphere < 0 {
		check := (int(math32.Floor(h.point[0])) + int(math32.Floor(h.point[2]))) & 1
		v := common.Lerp(0.25, 0.7, float32(check))
		albedo = [3]float32{v, v, v}
	} else {
		albedo = spheres[h.sphere].albedo
		emissive = spheres[h.sphere].emissive
	}

	diffuse := max(common.Dot3(h.normal, s.lightDir), 0)
	shadowOrigin := add3(h.point, scale3(h.normal, 1e-2))
	if occluder := trace(shadowOrigin, s.lightDir, spheres); occluder.ok && occluder.sphere >= 0 && spheres[occluder.sphere].emissive == 0 {
		diffuse *= 0.2
	}
	light := 0.15 + 0.85*diffuse
	return [3]float32{
		albedo[0]*light + albedo[0]*emissive,
		albedo[1]*light + albedo[1]*emissive,
		albedo[2]*light + albedo[2]*emissive,
	}
}

func (s *syntheticScene) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, t := range s.textures {
		t.Release()
		delete(s.textures, name)
	}
	s.r = nil
	s.maps = false
	s.pool.Stop()
}

// baseNormal is a tangent space normal of a gentle brick relief.
func baseNormal(u, v float32) [3]float32 {
	const rows = 8
	row := math32.Floor(v * rows)
	bu := u*rows/2 + 0.5*float32(int(row)&1)
	fu, fv := bu-math32.Floor(bu), v*rows-row
	var nx, ny float32
	const mortar = 0.08
	switch {
	case fu < mortar:
		nx = -0.6
	case fu > 1-mortar:
		nx = 0.6
	}
	switch {
	case fv < mortar:
		ny = -0.6
	case fv > 1-mortar:
		ny = 0.6
	}
	return common.Normalize3([3]float32{nx, ny, 1})
}

// detailNormal is a fine ripple meant to be tiled over the base map.
func detailNormal(u, v float32) [3]float32 {
	const freq = 6 * 2 * math32.Pi
	return common.Normalize3([3]float32{
		0.25 * math32.Cos(u*freq),
		0.25 * math32.Cos(v*freq),
		1,
	})
}

func add3(a, b [3]float32) [3]float32 {
	return [3]float32{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

func sub3(a, b [3]float32) [3]float32 {
	return [3]float32{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

func scale3(a [3]float32, s float32) [3]float32 {
	return [3]float32{a[0] * s, a[1] * s, a[2] * s}
}

func cross3(a, b [3]float32) [3]float32 {
	return [3]float32{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}
