package composer

import (
	"fmt"
	"strings"
)

// ChannelMask selects the channels the debug view shows.
type ChannelMask uint8

const (
	ChannelR ChannelMask = 1 << iota
	ChannelG
	ChannelB
	ChannelA

	ChannelRGB  = ChannelR | ChannelG | ChannelB
	ChannelRGBA = ChannelRGB | ChannelA
)

const channelLetters = "rgba"

// ParseChannelMask parses a mask written as a combination of the letters r, g, b and a, in any
// order, such as "rgb" or "ga".
//
// Parameters:
//   - s: the mask text, case insensitive
//
// Returns:
//   - ChannelMask: the mask
//   - error: an error if s is empty, repeats a channel or contains another letter
func ParseChannelMask(s string) (ChannelMask, error) {
	if s == "" {
		return 0, fmt.Errorf("empty channel mask")
	}
	var m ChannelMask
	for _, c := range strings.ToLower(s) {
		i := strings.IndexRune(channelLetters, c)
		if i < 0 {
			return 0, fmt.Errorf("invalid channel %q in mask %q", c, s)
		}
		bit := ChannelMask(1) << i
		if m&bit != 0 {
			return 0, fmt.Errorf("channel %q repeated in mask %q", c, s)
		}
		m |= bit
	}
	return m, nil
}

// String returns the mask letters in r, g, b, a order.
func (m ChannelMask) String() string {
	var b strings.Builder
	for i, c := range channelLetters {
		if m&(1<<i) != 0 {
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		return "none"
	}
	return b.String()
}

// Vector returns the mask as the per channel weights the debug shader multiplies by.
func (m ChannelMask) Vector() [4]float32 {
	var v [4]float32
	for i := range v {
		if m&(1<<i) != 0 {
			v[i] = 1
		}
	}
	return v
}

// NoneTexture is the texture name of an empty debug selection.
const NoneTexture = "none"

// DebugSelection is the texture shown in place of the chain output, and the channels shown.
type DebugSelection struct {
	// Texture is the export name of a live pool texture, or NoneTexture.
	Texture string

	// Channels is the channel mask.
	Channels ChannelMask
}

// NoSelection returns the empty selection.
func NoSelection() DebugSelection {
	return DebugSelection{Texture: NoneTexture, Channels: ChannelRGBA}
}

// None reports whether the selection shows the chain output unchanged.
func (s DebugSelection) None() bool {
	return s.Texture == "" || s.Texture == NoneTexture
}

// String returns "texture:channels", or "none".
func (s DebugSelection) String() string {
	if s.None() {
		return NoneTexture
	}
	return s.Texture + ":" + s.Channels.String()
}
