package depth_of_field

import (
	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/shader"
	"github.com/chewxy/math32"
)

const (
	// cocNormalize is the sensor height (24mm) times the fraction of it that maps to the largest blur.
	cocNormalize = 0.024 * 0.005

	// hexSamples is the number of taps of one hexagon edge blur.
	hexSamples = 8
)

var (
	hexUp        = [2]float32{0, -1}
	hexDownLeft  = [2]float32{-0.866025, 0.5}
	hexDownRight = [2]float32{0.866025, 0.5}
)

// CircleOfConfusion returns the signed, normalized circle of confusion of a point at linear depth d
// when focused at s with the thin lens model. Negative values are in front of the focal plane; the
// result is clamped to [-1, 1] and is zero within half the focus range of s.
//
// Parameters:
//   - d: the linear depth of the point
//   - s: the focal distance
//   - focalLength: the lens focal length in millimeters
//   - fStop: the aperture f-number
//   - focusRange: the depth range around s that stays sharp
//
// Returns:
//   - float32: the circle of confusion
func CircleOfConfusion(d, s, focalLength, fStop, focusRange float32) float32 {
	f := focalLength * 0.001
	aperture := f / fStop
	diff := d - s
	offset := math32.Max(math32.Abs(diff)-focusRange*0.5, 0)
	if diff < 0 {
		offset = -offset
	}
	coc := aperture * f * offset / (math32.Max(d, 1e-4) * math32.Max(s-f, 1e-4))
	return common.Clamp(coc/cocNormalize, -1, 1)
}

func focusKernel(inv *shader.Invocation, out [][4]float32) {
	u := inv.Uniforms
	raw := inv.Input(0).Sample(0.5, 0.5)[0]
	focus := common.LinearizeDepth(raw, u.Float("cameraNear"), u.Float("cameraFar"))

	mode := u.Float("measureMode")
	if math32.Abs(mode-float32(FixedDistance)) < 0.125 {
		focus = u.Float("focalDistance")
	} else if mode > 0.125 && u.Float("targetDistance") >= 0 {
		focus = u.Float("targetDistance")
	}
	out[0] = [4]float32{focus, focus, focus, 1}
}

func cocKernel(inv *shader.Invocation, out [][4]float32) {
	u := inv.Uniforms
	raw := inv.Input(0).Sample(inv.U, inv.V)[0]
	d := common.LinearizeDepth(raw, u.Float("cameraNear"), u.Float("cameraFar"))
	s := inv.Input(1).Load(0, 0)[0]

	out[0] = [4]float32{CircleOfConfusion(d, s, u.Float("focalLength"), u.Float("fStop"), u.Float("focusRange")), 0, 0, 1}
	out[1] = [4]float32{d, 0, 0, 1}
}

func cocNearKernel(inv *shader.Invocation, out [][4]float32) {
	depth := inv.Input(0)
	s := inv.Input(1).Load(0, 0)[0]
	r := inv.Uniforms.Float("focusRange")
	w, h := depth.Size()
	tx, ty := 1.5/float32(w), 1.5/float32(h)

	var near float32
	for _, o := range [4][2]float32{{-tx, -ty}, {tx, -ty}, {-tx, ty}, {tx, ty}} {
		d := depth.Sample(inv.U+o[0], inv.V+o[1])[0]
		near = math32.Max(near, common.Saturate((s-r*0.5-d)/r))
	}
	out[0] = [4]float32{near, 0, 0, 1}
}

func nearBlurKernel(inv *shader.Invocation, out [][4]float32) {
	src := inv.Input(0)
	w, h := src.Size()
	tx, ty := 1/float32(w), 1/float32(h)
	center := src.Sample(inv.U, inv.V)[0]

	var sum float32
	for j := -1; j <= 1; j++ {
		for i := -1; i <= 1; i++ {
			sum += src.Sample(inv.U+float32(i)*tx, inv.V+float32(j)*ty)[0]
		}
	}
	near := math32.Max(center, sum/9)
	out[0] = [4]float32{near, 0, 0, 1}
}

// lineBlur averages hexSamples taps along dir, which is given in normalized coordinates.
func lineBlur(src shader.Sampler, u, v float32, dir [2]float32) [4]float32 {
	var sum [4]float32
	for i := range hexSamples {
		t := (float32(i) + 0.5) / hexSamples
		s := src.Sample(u+dir[0]*t, v+dir[1]*t)
		for k := range 4 {
			sum[k] += s[k] / hexSamples
		}
	}
	return sum
}

// blurRadius returns the blur extent at the invocation in normalized coordinates of ref.
func blurRadius(inv *shader.Invocation, ref, coc shader.Sampler) (float32, float32) {
	c := math32.Abs(coc.Sample(inv.U, inv.V)[0]) * inv.Uniforms.Float("maxBlur")
	w, h := ref.Size()
	return c / float32(w), c / float32(h)
}

func hexBlur1Kernel(inv *shader.Invocation, out [][4]float32) {
	color := inv.Input(0)
	rx, ry := blurRadius(inv, color, inv.Input(1))

	vertical := lineBlur(color, inv.U, inv.V, [2]float32{hexUp[0] * rx, hexUp[1] * ry})
	diagonal := lineBlur(color, inv.U, inv.V, [2]float32{hexDownLeft[0] * rx, hexDownLeft[1] * ry})
	out[0] = vertical
	for k := range 4 {
		out[1][k] = diagonal[k] + vertical[k]
	}
}

func hexBlur2Kernel(inv *shader.Invocation, out [][4]float32) {
	coc := inv.Input(2)
	rx, ry := blurRadius(inv, coc, coc)

	a := lineBlur(inv.Input(0), inv.U, inv.V, [2]float32{hexDownLeft[0] * rx, hexDownLeft[1] * ry})
	b := lineBlur(inv.Input(1), inv.U, inv.V, [2]float32{hexDownRight[0] * rx, hexDownRight[1] * ry})
	for k := range 4 {
		out[0][k] = (a[k] + b[k]) / 3
	}
}

func cocView(coc, near float32) [4]float32 {
	return [4]float32{common.Saturate(coc), near, common.Saturate(-coc), 1}
}

func compositeKernel(inv *shader.Invocation, out [][4]float32) {
	coc := inv.Input(2).Sample(inv.U, inv.V)[0]
	near := inv.Input(3).Sample(inv.U, inv.V)[0]
	view := cocView(coc, near)
	testMode := inv.Uniforms.Float("testMode")
	if testMode >= 1 {
		out[0] = view
		return
	}

	sharp := inv.Input(0).Sample(inv.U, inv.V)
	blurred := inv.Input(1).Sample(inv.U, inv.V)
	w := common.Saturate(math32.Max(math32.Abs(coc), near))
	result := [4]float32{
		sharp[0] + (blurred[0]-sharp[0])*w,
		sharp[1] + (blurred[1]-sharp[1])*w,
		sharp[2] + (blurred[2]-sharp[2])*w,
		sharp[3],
	}
	for k := range 4 {
		out[0][k] = common.Lerp(result[k], view[k], testMode)
	}
}
