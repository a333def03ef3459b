package common

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStagingValidate(t *testing.T) {
	assert.NoError(t, TextureStagingData{Pixels: make([]byte, 16), Format: TextureFormatRGBA8, Width: 2, Height: 2}.Validate())
	assert.NoError(t, TextureStagingData{Floats: make([]float32, 4), Format: TextureFormatR16F, Width: 2, Height: 2}.Validate())
	assert.Error(t, TextureStagingData{Pixels: make([]byte, 15), Format: TextureFormatRGBA8, Width: 2, Height: 2}.Validate())
	assert.Error(t, TextureStagingData{Floats: make([]float32, 4), Format: TextureFormatRGBA16F, Width: 2, Height: 2}.Validate())
	assert.Error(t, TextureStagingData{Format: TextureFormatRGBA8}.Validate())
}

func TestClampLinearSampler(t *testing.T) {
	d := ClampLinearSampler().Descriptor("fx")
	assert.Equal(t, "fx", d.Label)
	assert.Equal(t, wgpu.AddressModeClampToEdge, d.AddressModeU)
	assert.Equal(t, wgpu.FilterModeLinear, d.MinFilter)
	assert.Equal(t, uint16(1), d.MaxAnisotropy)
}

func TestImportedTextureDecode(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	img.Set(1, 1, color.NRGBA{R: 128, G: 128, B: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	tex := &ImportedTexture{Name: "flat", Data: buf.Bytes()}
	staged, err := tex.Decode()
	require.NoError(t, err)
	assert.Equal(t, 3, tex.Width)
	assert.Equal(t, 2, tex.Height)
	assert.Equal(t, TextureFormatRGBA8, staged.Format)
	assert.NoError(t, staged.Validate())
	assert.Equal(t, []byte{128, 128, 255, 255}, staged.Pixels[(1*3+1)*4:(1*3+2)*4])

	_, err = (&ImportedTexture{Name: "empty"}).Decode()
	assert.Error(t, err)
	_, err = (&ImportedTexture{Name: "bad", Data: []byte("nope")}).Decode()
	assert.Error(t, err)
}
