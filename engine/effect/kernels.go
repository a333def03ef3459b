package effect

import (
	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/shader"
	"github.com/chewxy/math32"
)

// outlineDirections is the number of directions the selection mask is dilated in.
const outlineDirections = 8

func luminance(c [4]float32) float32 {
	return 0.2126*c[0] + 0.7152*c[1] + 0.0722*c[2]
}

func outlineKernel(inv *shader.Invocation, out [][4]float32) {
	c := inv.Input(0).Sample(inv.U, inv.V)
	mask := inv.Input(1)
	w, h := mask.Size()
	thickness := inv.Uniforms.Float("thickness")
	tx, ty := thickness/float32(w), thickness/float32(h)

	center := mask.Sample(inv.U, inv.V)[0]
	dilated := center
	for i := range outlineDirections {
		a := float32(i) * 2 * math32.Pi / outlineDirections
		ox, oy := math32.Cos(a)*tx, math32.Sin(a)*ty
		dilated = max(dilated,
			mask.Sample(inv.U+ox, inv.V+oy)[0],
			mask.Sample(inv.U+ox*0.5, inv.V+oy*0.5)[0],
		)
	}

	edgeColor := inv.Uniforms.Vec4("edgeColor")
	edge := common.Saturate(dilated-center) * inv.Uniforms.Float("strength") * edgeColor[3]
	out[0] = [4]float32{
		common.Lerp(c[0], edgeColor[0], edge),
		common.Lerp(c[1], edgeColor[1], edge),
		common.Lerp(c[2], edgeColor[2], edge),
		c[3],
	}
}

func decodeNormal(c [4]float32) [3]float32 {
	return [3]float32{c[0]*2 - 1, c[1]*2 - 1, c[2]*2 - 1}
}

// blendRNM combines two tangent space normals with reoriented normal mapping.
func blendRNM(base, sub [3]float32) [3]float32 {
	t := [3]float32{base[0], base[1], base[2] + 1}
	u := [3]float32{-sub[0], -sub[1], sub[2]}
	if t[2] == 0 {
		return common.Normalize3(sub)
	}
	d := common.Dot3(t, u) / t[2]
	return common.Normalize3([3]float32{t[0]*d - u[0], t[1]*d - u[1], t[2]*d - u[2]})
}

func fract(v float32) float32 {
	return v - math32.Floor(v)
}

func normalBlendingKernel(inv *shader.Invocation, out [][4]float32) {
	c := inv.Input(0).Sample(inv.U, inv.V)
	base := decodeNormal(inv.Input(1).Sample(inv.U, inv.V))
	scale := inv.Uniforms.Float("subScale")
	sub := decodeNormal(inv.Input(2).Sample(fract(inv.U*scale), fract(inv.V*scale)))

	n := blendRNM(base, sub)
	lambert := common.Saturate(common.Dot3(n, common.Normalize3(inv.Uniforms.Vec3("lightDirection"))))
	shade := common.Lerp(1, lambert, inv.Uniforms.Float("strength"))
	out[0] = [4]float32{c[0] * shade, c[1] * shade, c[2] * shade, c[3]}
}

func bloomThresholdKernel(inv *shader.Invocation, out [][4]float32) {
	c := inv.Input(0).Sample(inv.U, inv.V)
	threshold := inv.Uniforms.Float("luminanceThreshold")
	w := common.Smoothstep(threshold, threshold+inv.Uniforms.Float("luminanceSmoothing"), luminance(c))
	out[0] = [4]float32{c[0] * w, c[1] * w, c[2] * w, 1}
}

func bloomDownsampleKernel(inv *shader.Invocation, out [][4]float32) {
	src := inv.Input(0)
	w, h := src.Size()
	tx, ty := 1/float32(w), 1/float32(h)
	var sum [4]float32
	for _, o := range [4][2]float32{{-tx, -ty}, {tx, -ty}, {-tx, ty}, {tx, ty}} {
		s := src.Sample(inv.U+o[0], inv.V+o[1])
		for i := range 3 {
			sum[i] += s[i] * 0.25
		}
	}
	out[0] = [4]float32{sum[0], sum[1], sum[2], 1}
}

// tentWeights are the 3x3 tent filter weights, normalized to sum to one.
var tentWeights = [3][3]float32{
	{1.0 / 16, 2.0 / 16, 1.0 / 16},
	{2.0 / 16, 4.0 / 16, 2.0 / 16},
	{1.0 / 16, 2.0 / 16, 1.0 / 16},
}

func bloomUpsampleKernel(inv *shader.Invocation, out [][4]float32) {
	low := inv.Input(0)
	w, h := low.Size()
	tx, ty := 1/float32(w), 1/float32(h)
	var tent [4]float32
	for j := -1; j <= 1; j++ {
		for i := -1; i <= 1; i++ {
			s := low.Sample(inv.U+float32(i)*tx, inv.V+float32(j)*ty)
			wgt := tentWeights[j+1][i+1]
			for k := range 3 {
				tent[k] += s[k] * wgt
			}
		}
	}
	high := inv.Input(1).Sample(inv.U, inv.V)
	radius := inv.Uniforms.Float("radius")
	out[0] = [4]float32{
		common.Lerp(high[0], tent[0], radius),
		common.Lerp(high[1], tent[1], radius),
		common.Lerp(high[2], tent[2], radius),
		1,
	}
}

func bloomCompositeKernel(inv *shader.Invocation, out [][4]float32) {
	c := inv.Input(0).Sample(inv.U, inv.V)
	b := inv.Input(1).Sample(inv.U, inv.V)
	k := inv.Uniforms.Float("intensity")
	out[0] = [4]float32{c[0] + b[0]*k, c[1] + b[1]*k, c[2] + b[2]*k, c[3]}
}

func textureDebugKernel(inv *shader.Invocation, out [][4]float32) {
	c := inv.Input(0).Sample(inv.U, inv.V)
	mask := inv.Uniforms.Vec4("channels")
	if mask[0]+mask[1]+mask[2]+mask[3] == 1 {
		v := c[0]*mask[0] + c[1]*mask[1] + c[2]*mask[2] + c[3]*mask[3]
		out[0] = [4]float32{v, v, v, 1}
		return
	}
	out[0] = [4]float32{c[0] * mask[0], c[1] * mask[1], c[2] * mask[2], common.Lerp(1, c[3], mask[3])}
}
