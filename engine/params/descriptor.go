package params

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-fx/engine/renderer"
)

// Kind is the value type of a parameter.
type Kind int

const (
	KindBool Kind = iota
	KindFloat
	KindEnum
	KindTexture
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindFloat:
		return "float"
	case KindEnum:
		return "enum"
	case KindTexture:
		return "texture"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Option is one labelled choice of an enum parameter.
type Option struct {
	Label string
	Value float32
}

// Descriptor declares an external parameter.
type Descriptor struct {
	// Name is the parameter key, as used in presets.
	Name string

	// Kind is the value type.
	Kind Kind

	// Min and Max bound float parameters. Values are clamped into [Min, Max].
	Min, Max float32

	// Options are the choices of an enum parameter.
	Options []Option

	// Default is the initial value.
	Default Value
}

// option returns the enum option with the given label.
func (d Descriptor) option(label string) (Option, bool) {
	for _, o := range d.Options {
		if o.Label == label {
			return o, true
		}
	}
	return Option{}, false
}

// Value is an unresolved parameter value as it comes from a preset or a user interface.
type Value struct {
	// Bool is the value of a bool parameter.
	Bool bool

	// Float is the value of a float parameter, or the numeric value of an enum option.
	Float float32

	// Text is an enum label or a texture name.
	Text string
}

// Bool returns a bool value.
func Bool(b bool) Value { return Value{Bool: b} }

// Float returns a float value.
func Float(f float32) Value { return Value{Float: f} }

// Text returns an enum label or texture name value.
func Text(s string) Value { return Value{Text: s} }

// Resolved is a parameter value after clamping and lookup, as handed to setters.
type Resolved struct {
	// Bool is the value of a bool parameter.
	Bool bool

	// Float is the clamped float, or the numeric value of the enum option.
	Float float32

	// Text is the enum label or the texture name; "none" for no texture.
	Text string

	// Texture is the resolved texture of a texture parameter, or nil for "none".
	Texture renderer.Texture
}

// NoneTexture is the texture name that resolves to no texture.
const NoneTexture = "none"

// Preset keys of the built-in parameters.
const (
	ShowOutline        = "show outline"
	BokehEnabled       = "bokeh enabled"
	BokehFocalDistance = "bokeh focal distance"
	BokehFocalLength   = "bokeh focal length"
	BokehFocusRange    = "bokeh focus range"
	BokehFStop         = "bokeh fStop"
	BokehTestMode      = "bokeh testMode"
	BokehMeasureMode   = "bokeh measureMode"
	BloomEnabled       = "bloom enabled"
	BloomIntensity     = "bloom intensity"
	BloomThreshold     = "bloom threshold"
	BloomSmoothing     = "bloom smoothing"
	NormalMap          = "normalMap"
	SubNormalMap       = "subNormalMap"
	DebugTexture       = "debugTexture"
	DebugChannel       = "debugChannel"
)

// Defaults returns the descriptors of the built-in effect parameters.
func Defaults() []Descriptor {
	return []Descriptor{
		{Name: ShowOutline, Kind: KindBool, Default: Bool(true)},
		{Name: BokehEnabled, Kind: KindBool, Default: Bool(true)},
		{Name: BokehFocalDistance, Kind: KindFloat, Min: 0, Max: 100, Default: Float(10)},
		{Name: BokehFocalLength, Kind: KindFloat, Min: 1, Max: 70, Default: Float(35)},
		{Name: BokehFocusRange, Kind: KindFloat, Min: 0.5, Max: 5, Default: Float(1.5)},
		{Name: BokehFStop, Kind: KindFloat, Min: 1, Max: 8, Default: Float(2.8)},
		{Name: BokehTestMode, Kind: KindFloat, Min: 0, Max: 1, Default: Float(0)},
		{Name: BokehMeasureMode, Kind: KindEnum, Default: Text("Auto center distance"), Options: []Option{
			{Label: "Auto center distance", Value: 0},
			{Label: "Auto bone distance", Value: 0.25},
			{Label: "Fix distance", Value: 0.5},
			{Label: "Camera-to-Bone distance", Value: 1},
		}},
		{Name: BloomEnabled, Kind: KindBool, Default: Bool(true)},
		{Name: BloomIntensity, Kind: KindFloat, Min: 0, Max: 10, Default: Float(1)},
		{Name: BloomThreshold, Kind: KindFloat, Min: 0, Max: 1, Default: Float(0.9)},
		{Name: BloomSmoothing, Kind: KindFloat, Min: 0, Max: 1, Default: Float(0.025)},
		{Name: NormalMap, Kind: KindTexture, Default: Text(NoneTexture)},
		{Name: SubNormalMap, Kind: KindTexture, Default: Text(NoneTexture)},
		{Name: DebugTexture, Kind: KindTexture, Default: Text(NoneTexture)},
		{Name: DebugChannel, Kind: KindEnum, Default: Text("rgba"), Options: []Option{
			{Label: "r", Value: 1},
			{Label: "g", Value: 2},
			{Label: "b", Value: 4},
			{Label: "a", Value: 8},
			{Label: "rgb", Value: 7},
			{Label: "rgba", Value: 15},
		}},
	}
}
