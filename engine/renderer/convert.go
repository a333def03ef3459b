package renderer

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/chewxy/math32"
)

// stagingToRGBA returns staging data as RGBA floats, 4 values per pixel. Single channel data is
// expanded as (r, 0, 0, 1), matching how a GPU samples an R16F texture.
func stagingToRGBA(data common.TextureStagingData) []float32 {
	n := int(data.Width * data.Height)
	out := make([]float32, n*4)
	switch {
	case data.Format.Float() && data.Format.Channels() == 1:
		for i := range n {
			out[i*4] = data.Floats[i]
			out[i*4+3] = 1
		}
	case data.Format.Float():
		copy(out, data.Floats)
	default:
		for i, b := range data.Pixels {
			out[i] = float32(b) / 255
		}
	}
	return out
}

// rgbaToBytes quantizes RGBA floats to 8-bit unorm bytes.
func rgbaToBytes(src []float32) []byte {
	out := make([]byte, len(src))
	for i, v := range src {
		out[i] = byte(math32.Round(common.Saturate(v) * 255))
	}
	return out
}

// rgbaToHalf converts RGBA floats to half floats with the given channel count per pixel.
func rgbaToHalf(src []float32, channels int) []uint16 {
	n := len(src) / 4
	out := make([]uint16, n*channels)
	for i := range n {
		for c := range channels {
			out[i*channels+c] = common.Float32ToHalf(src[i*4+c])
		}
	}
	return out
}

// quantize rounds one RGBA value to the precision of a texture format and clears the channels
// the format does not store.
func quantize(v [4]float32, format common.TextureFormat) [4]float32 {
	switch format {
	case common.TextureFormatRGBA8:
		for i := range v {
			v[i] = math32.Round(common.Saturate(v[i])*255) / 255
		}
	case common.TextureFormatRGBA16F:
		for i := range v {
			v[i] = common.HalfToFloat32(common.Float32ToHalf(v[i]))
		}
	case common.TextureFormatR16F:
		v = [4]float32{common.HalfToFloat32(common.Float32ToHalf(v[0])), 0, 0, 1}
	}
	return v
}

// checkStaging validates staging data against a destination texture.
func checkStaging(t Texture, data common.TextureStagingData) error {
	if err := data.Validate(); err != nil {
		return err
	}
	if int(data.Width) != t.Width() || int(data.Height) != t.Height() {
		return fmt.Errorf("staging data is %dx%d, texture %q is %dx%d", data.Width, data.Height, t.Label(), t.Width(), t.Height())
	}
	return nil
}
