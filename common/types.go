// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/cogentcore/webgpu/wgpu"
)

// TextureFormat is the backend independent pixel format of a texture or render target.
type TextureFormat int

const (
	// TextureFormatRGBA8 is an 8-bit unsigned normalized RGBA format. Every backend supports it.
	TextureFormatRGBA8 TextureFormat = iota

	// TextureFormatRGBA16F is a 16-bit floating point RGBA format used for HDR intermediates.
	TextureFormatRGBA16F

	// TextureFormatR16F is a single channel 16-bit floating point format used for depth and CoC data.
	TextureFormatR16F
)

// String returns the short name of the format.
func (f TextureFormat) String() string {
	switch f {
	case TextureFormatRGBA8:
		return "rgba8"
	case TextureFormatRGBA16F:
		return "rgba16f"
	case TextureFormatR16F:
		return "r16f"
	default:
		return fmt.Sprintf("TextureFormat(%d)", int(f))
	}
}

// Float reports whether the format stores floating point data.
func (f TextureFormat) Float() bool {
	return f == TextureFormatRGBA16F || f == TextureFormatR16F
}

// Channels returns the number of channels stored per pixel.
func (f TextureFormat) Channels() int {
	if f == TextureFormatR16F {
		return 1
	}
	return 4
}

// TextureStagingData holds pixel data for a texture pending upload to a backend.
// Exactly one of Pixels or Floats is expected to be populated, matching Format.
type TextureStagingData struct {
	// Pixels is the RGBA8 pixel data for the texture, 4 bytes per pixel, row-major.
	Pixels []byte
	// Floats holds floating point pixel data with Format.Channels() values per pixel, row-major.
	Floats []float32
	// Format is the pixel format of the data.
	Format TextureFormat
	// Width is the width of the texture in pixels.
	Width uint32
	// Height is the height of the texture in pixels.
	Height uint32
}

// Validate checks that the staged data matches the declared dimensions and format.
//
// Returns:
//   - error: an error describing the mismatch, or nil
func (s TextureStagingData) Validate() error {
	if s.Width == 0 || s.Height == 0 {
		return fmt.Errorf("texture staging data has zero size %dx%d", s.Width, s.Height)
	}
	n := int(s.Width * s.Height)
	if s.Format.Float() {
		if len(s.Floats) != n*s.Format.Channels() {
			return fmt.Errorf("texture staging data has %d floats, want %d for %s", len(s.Floats), n*s.Format.Channels(), s.Format)
		}
		return nil
	}
	if len(s.Pixels) != n*4 {
		return fmt.Errorf("texture staging data has %d bytes, want %d", len(s.Pixels), n*4)
	}
	return nil
}

// SamplerStagingData holds the configuration for a sampler binding pending GPU creation.
type SamplerStagingData struct {
	// AddressModeU, AddressModeV, AddressModeW specify the addressing mode for texture coordinates outside the [0, 1] range in each dimension (U, V, W).
	AddressModeU, AddressModeV, AddressModeW wgpu.AddressMode
	// MagFilter and MinFilter specify the filtering mode for magnification and minification.
	MagFilter, MinFilter wgpu.FilterMode
	// MipmapFilter specifies the filtering mode for mipmap level selection.
	MipmapFilter wgpu.MipmapFilterMode
	// LodMinClamp and LodMaxClamp specify the minimum and maximum level of detail (LOD) for mipmapping.
	LodMinClamp, LodMaxClamp float32
	// MaxAnisotropy specifies the maximum anisotropy level for anisotropic filtering.
	MaxAnisotropy uint16
}

// ClampLinearSampler returns the sampler configuration used by effect passes: clamped edges with linear filtering.
//
// Returns:
//   - SamplerStagingData: the sampler configuration
func ClampLinearSampler() SamplerStagingData {
	return SamplerStagingData{
		AddressModeU:  wgpu.AddressModeClampToEdge,
		AddressModeV:  wgpu.AddressModeClampToEdge,
		AddressModeW:  wgpu.AddressModeClampToEdge,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeLinear,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	}
}

// Descriptor returns the wgpu descriptor for the sampler configuration.
func (s SamplerStagingData) Descriptor(label string) *wgpu.SamplerDescriptor {
	return &wgpu.SamplerDescriptor{
		Label:         label,
		AddressModeU:  s.AddressModeU,
		AddressModeV:  s.AddressModeV,
		AddressModeW:  s.AddressModeW,
		MagFilter:     s.MagFilter,
		MinFilter:     s.MinFilter,
		MipmapFilter:  s.MipmapFilter,
		LodMinClamp:   s.LodMinClamp,
		LodMaxClamp:   s.LodMaxClamp,
		MaxAnisotropy: s.MaxAnisotropy,
	}
}

// ImportedTexture represents an image loaded from disk or memory, such as a normal map.
// For embedded textures the Data field contains raw image bytes, otherwise Path is read.
type ImportedTexture struct {
	// Name is an identifier for this texture (e.g., "normal", "detail").
	Name string

	// Path is the file path for external textures (empty for embedded).
	Path string

	// Data contains raw image bytes (PNG/JPEG).
	Data []byte

	// Width is the texture width in pixels (populated after Decode).
	Width int

	// Height is the texture height in pixels (populated after Decode).
	Height int
}

// Decode decodes the texture to raw RGBA pixel data.
// Uses either embedded Data bytes or loads from Path on disk.
// Supports PNG and JPEG formats.
// Reference: https://pkg.go.dev/image
//
// Returns:
//   - TextureStagingData: RGBA8 staging data ready for upload
//   - error: error if decoding fails
func (t *ImportedTexture) Decode() (TextureStagingData, error) {
	if t == nil {
		return TextureStagingData{}, fmt.Errorf("texture is nil")
	}

	var img image.Image
	var err error

	if len(t.Data) > 0 {
		img, _, err = image.Decode(bytes.NewReader(t.Data))
		if err != nil {
			return TextureStagingData{}, fmt.Errorf("failed to decode embedded image: %w", err)
		}
	} else if t.Path != "" {
		file, fileErr := os.Open(t.Path)
		if fileErr != nil {
			return TextureStagingData{}, fmt.Errorf("failed to open texture file %s: %w", t.Path, fileErr)
		}
		defer file.Close()

		img, _, err = image.Decode(file)
		if err != nil {
			return TextureStagingData{}, fmt.Errorf("failed to decode texture file %s: %w", t.Path, err)
		}
	} else {
		return TextureStagingData{}, fmt.Errorf("texture has neither data nor path")
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)

	t.Width = bounds.Dx()
	t.Height = bounds.Dy()

	return TextureStagingData{
		Pixels: rgba.Pix,
		Format: TextureFormatRGBA8,
		Width:  uint32(t.Width),
		Height: uint32(t.Height),
	}, nil
}
