package shader

import "github.com/chewxy/math32"

// KernelFunc is the CPU evaluation of a shader for one output pixel.
// out holds one RGBA value per color output and is zeroed before each call.
type KernelFunc func(inv *Invocation, out [][4]float32)

// Sampler gives a kernel read access to one input texture.
type Sampler interface {
	// Size returns the texture dimensions in pixels.
	Size() (width, height int)

	// Sample returns the bilinearly filtered value at normalized coordinates, clamped to the edge.
	//
	// Parameters:
	//   - u, v: normalized texture coordinates, origin top-left
	//
	// Returns:
	//   - [4]float32: the filtered RGBA value
	Sample(u, v float32) [4]float32

	// Load returns the texel at integer coordinates, clamped to the edge.
	Load(x, y int) [4]float32
}

// Uniforms holds the uniform values of one draw keyed by uniform name.
type Uniforms map[string][]float32

// Float returns the first component of a uniform, or 0.
func (u Uniforms) Float(name string) float32 {
	if v := u[name]; len(v) > 0 {
		return v[0]
	}
	return 0
}

// Vec3 returns the first three components of a uniform, zero padded.
func (u Uniforms) Vec3(name string) [3]float32 {
	var out [3]float32
	copy(out[:], u[name])
	return out
}

// Vec4 returns the first four components of a uniform, zero padded.
func (u Uniforms) Vec4(name string) [4]float32 {
	var out [4]float32
	copy(out[:], u[name])
	return out
}

// Invocation describes one kernel call.
type Invocation struct {
	// X, Y are the integer output pixel coordinates.
	X, Y int

	// U, V are the normalized coordinates of the pixel center.
	U, V float32

	// Width, Height are the output dimensions.
	Width, Height int

	// Inputs are the samplers in the shader's input order.
	Inputs []Sampler

	// Uniforms are the draw's uniform values.
	Uniforms Uniforms
}

// Input returns the sampler bound to input i.
func (inv *Invocation) Input(i int) Sampler {
	return inv.Inputs[i]
}

// TexelSize returns the size of one output pixel in normalized coordinates.
func (inv *Invocation) TexelSize() (float32, float32) {
	return 1 / float32(inv.Width), 1 / float32(inv.Height)
}

// floatSampler is a Sampler over tightly packed RGBA float32 data.
type floatSampler struct {
	width, height int
	data          []float32
}

var _ Sampler = &floatSampler{}

// NewFloatSampler wraps RGBA float32 pixel data, 4 values per pixel row-major, as a Sampler.
//
// Parameters:
//   - width, height: texture dimensions
//   - data: pixel data, len = width*height*4
//
// Returns:
//   - Sampler: the sampler
func NewFloatSampler(width, height int, data []float32) Sampler {
	return &floatSampler{width: width, height: height, data: data}
}

// NewConstantSampler returns a 1x1 Sampler holding a single value.
func NewConstantSampler(v [4]float32) Sampler {
	return &floatSampler{width: 1, height: 1, data: v[:]}
}

func (s *floatSampler) Size() (int, int) {
	return s.width, s.height
}

func (s *floatSampler) Load(x, y int) [4]float32 {
	x = min(max(x, 0), s.width-1)
	y = min(max(y, 0), s.height-1)
	i := (y*s.width + x) * 4
	return [4]float32{s.data[i], s.data[i+1], s.data[i+2], s.data[i+3]}
}

func (s *floatSampler) Sample(u, v float32) [4]float32 {
	fx := u*float32(s.width) - 0.5
	fy := v*float32(s.height) - 0.5
	x0 := int(math32.Floor(fx))
	y0 := int(math32.Floor(fy))
	tx := fx - float32(x0)
	ty := fy - float32(y0)

	a := s.Load(x0, y0)
	b := s.Load(x0+1, y0)
	c := s.Load(x0, y0+1)
	d := s.Load(x0+1, y0+1)

	var out [4]float32
	for i := range 4 {
		top := a[i] + (b[i]-a[i])*tx
		bottom := c[i] + (d[i]-c[i])*tx
		out[i] = top + (bottom-top)*ty
	}
	return out
}
