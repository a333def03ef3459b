package depth_of_field

import (
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/camera"
	"github.com/Carmen-Shannon/oxy-fx/engine/effect"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/render_target"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer/shader"
)

// Ranges are the valid ranges of the tunable uniforms. SetUniform clamps into them.
var Ranges = map[string][2]float32{
	"focalDistance": {0, 100},
	"focalLength":   {1, 70},
	"fStop":         {1, 8},
	"focusRange":    {0.5, 5},
	"testMode":      {0, 1},
}

// Target indices in allocation order.
const (
	targetFocus = iota
	targetCoC
	targetCoCNear
	targetFocalBlurred
	targetBokeh
	targetFar
	targetOutput
)

// DepthOfField simulates a thin lens with a hexagonal aperture in four stages: focal distance
// measurement, circle of confusion, bokeh blur and composite.
type DepthOfField interface {
	effect.Pass

	// MeasureMode returns the focal distance measurement mode.
	MeasureMode() MeasureMode

	// SetMeasureMode sets the focal distance measurement mode.
	SetMeasureMode(m MeasureMode)

	// Target returns the target point the bone modes measure towards.
	//
	// Returns:
	//   - [3]float32: the target point
	//   - bool: false while no target point exists
	Target() ([3]float32, bool)

	// SetTarget replaces the target point. A nil point is recreated at the origin on next use.
	SetTarget(p *[3]float32)

	// EstimateFocalDistance resolves the focal distance on the CPU for the modes that do not need
	// the depth buffer. It creates the target point at the origin if none exists.
	//
	// Parameters:
	//   - cam: the frame camera
	//   - bone: the tracked bone position, or nil
	//
	// Returns:
	//   - float32: the focal distance
	//   - bool: false when the focus shader must measure the screen center depth instead
	EstimateFocalDistance(cam camera.Camera, bone *[3]float32) (float32, bool)
}

type depthOfField struct {
	*effect.BasePass
	stateMu *sync.Mutex
	target  *[3]float32

	cacheValid    bool
	cachePosition [3]float32
	cacheTarget   [3]float32
	cacheDistance float32
}

var _ DepthOfField = &depthOfField{}

func targets() []render_target.Descriptor {
	f := common.TextureFormatRGBA16F
	return []render_target.Descriptor{
		targetFocus:        {Label: "DepthOfField", Width: 1, Height: 1, Format: f, Attachments: []string{"FocusDistance"}},
		targetCoC:          {Label: "DepthOfField", Format: f, Attachments: []string{"CoC", "Depth"}},
		targetCoCNear:      {Label: "DepthOfField", Scale: 0.25, Format: f, Attachments: []string{"CoCNear"}},
		targetFocalBlurred: {Label: "DepthOfField", Scale: 0.25, Format: f, Attachments: []string{"FocalBlurred"}},
		targetBokeh:        {Label: "DepthOfField", Scale: 0.5, Format: f, Attachments: []string{"BokehVertical", "BokehDiagonal"}},
		targetFar:          {Label: "DepthOfField", Scale: 0.5, Format: f, Attachments: []string{"Far"}},
		targetOutput:       {Label: "DepthOfField", Format: f, Attachments: []string{"Output"}},
	}
}

// NewDepthOfField creates the depth of field pass.
//
// Parameters:
//   - options: functional options for the initial state
//
// Returns:
//   - DepthOfField: the pass, enabled, measuring the screen center
func NewDepthOfField(options ...DepthOfFieldBuilderOption) DepthOfField {
	d := &depthOfField{
		BasePass: effect.NewBasePass(effect.KindDepthOfField.String(), effect.KindDepthOfField, targets(),
			map[string][]float32{
				"measureMode":   {float32(AutoCenterDistance)},
				"focalDistance": {10},
				"focalLength":   {35},
				"fStop":         {2.8},
				"focusRange":    {1.5},
				"testMode":      {0},
				"maxBlur":       {12},
			},
		),
		stateMu: &sync.Mutex{},
	}
	for _, option := range options {
		option(d)
	}
	return d
}

func (d *depthOfField) Usage() effect.Usage {
	return effect.UsageSceneColor | effect.UsageSceneDepth | effect.UsageProducesColor
}

func (d *depthOfField) Requirements() renderer.Capabilities {
	return renderer.CapCompute | renderer.CapMultipleRenderTargets | renderer.CapFloatTargets
}

func (d *depthOfField) Shaders() []shader.Shader {
	return []shader.Shader{focusShader, cocShader, cocNearShader, nearBlurShader, hexBlur1Shader, hexBlur2Shader, compositeShader}
}

func (d *depthOfField) Active() bool {
	return d.Enabled()
}

func (d *depthOfField) SetUniform(name string, value ...float32) {
	value = append([]float32(nil), value...)
	if r, ok := Ranges[name]; ok {
		for i := range value {
			value[i] = common.Clamp(value[i], r[0], r[1])
		}
	}
	if name == "measureMode" && len(value) > 0 {
		value[0] = float32(NearestMeasureMode(value[0]))
		d.invalidate()
	}
	d.BasePass.SetUniform(name, value...)
}

func (d *depthOfField) MeasureMode() MeasureMode {
	return NearestMeasureMode(d.Float("measureMode"))
}

func (d *depthOfField) SetMeasureMode(m MeasureMode) {
	d.SetUniform("measureMode", float32(m))
}

func (d *depthOfField) Target() ([3]float32, bool) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if d.target == nil {
		return [3]float32{}, false
	}
	return *d.target, true
}

func (d *depthOfField) SetTarget(p *[3]float32) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if p == nil {
		d.target = nil
	} else {
		t := *p
		d.target = &t
	}
	d.cacheValid = false
}

func (d *depthOfField) invalidate() {
	d.stateMu.Lock()
	d.cacheValid = false
	d.stateMu.Unlock()
}

func (d *depthOfField) EstimateFocalDistance(cam camera.Camera, bone *[3]float32) (float32, bool) {
	mode := d.MeasureMode()
	focalDistance := d.Float("focalDistance")

	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if d.target == nil {
		d.target = &[3]float32{}
	}

	if mode.tracksBone() && bone == nil {
		d.cacheValid = false
		return 0, false
	}

	switch mode {
	case FixedDistance:
		return focalDistance, true
	case AutoBoneDistance:
		*d.target = *bone
		pos := cam.Position()
		if d.cacheValid && d.cachePosition == pos && d.cacheTarget == *d.target {
			return d.cacheDistance, true
		}
		d.cacheDistance = cam.DistanceTo(*d.target)
		d.cachePosition, d.cacheTarget, d.cacheValid = pos, *d.target, true
		return d.cacheDistance, true
	case CameraToBoneDistance:
		return cam.DistanceTo(*bone), true
	default:
		return 0, false
	}
}

// attachment returns a texture of the i-th target by attachment name, or nil.
func (d *depthOfField) attachment(i int, name string) renderer.Texture {
	if t := d.BasePass.Target(i); t != nil {
		return t.Attachment(name)
	}
	return nil
}

func (d *depthOfField) Render(ctx *effect.Context) (renderer.Texture, error) {
	frame := ctx.Frame
	if frame.Camera == nil {
		return nil, effect.MissingInput(d.Name(), "camera")
	}
	if frame.Depth == nil || frame.Depth.Released() {
		return nil, effect.MissingInput(d.Name(), "depth")
	}
	if ctx.Input == nil {
		return nil, effect.MissingInput(d.Name(), "color")
	}

	var (
		focus    = d.attachment(targetFocus, "FocusDistance")
		coc      = d.attachment(targetCoC, "CoC")
		depth    = d.attachment(targetCoC, "Depth")
		cocNear  = d.attachment(targetCoCNear, "CoCNear")
		nearBlur = d.attachment(targetFocalBlurred, "FocalBlurred")
		vertical = d.attachment(targetBokeh, "BokehVertical")
		diagonal = d.attachment(targetBokeh, "BokehDiagonal")
		far      = d.attachment(targetFar, "Far")
		output   = d.attachment(targetOutput, "Output")
	)
	for _, t := range []renderer.Texture{focus, coc, depth, cocNear, nearBlur, vertical, diagonal, far, output} {
		if t == nil {
			return nil, effect.MissingInput(d.Name(), "target")
		}
	}

	targetDistance := float32(-1)
	if distance, ok := d.EstimateFocalDistance(frame.Camera, frame.Bone); ok {
		targetDistance = distance
	}
	uniforms := d.DrawUniforms()
	uniforms["targetDistance"] = []float32{targetDistance}
	uniforms["cameraNear"] = []float32{frame.Camera.Near()}
	uniforms["cameraFar"] = []float32{frame.Camera.Far()}

	tex := func(t ...renderer.Texture) []renderer.Texture { return t }
	stages := []struct {
		key     string
		inputs  []renderer.Texture
		outputs []renderer.Texture
	}{
		{ShaderFocus, tex(frame.Depth), tex(focus)},
		{ShaderCoC, tex(frame.Depth, focus), tex(coc, depth)},
		{ShaderCoCNear, tex(depth, focus), tex(cocNear)},
		{ShaderNearBlur, tex(cocNear), tex(nearBlur)},
		{ShaderHexBlur1, tex(ctx.Input, coc), tex(vertical, diagonal)},
		{ShaderHexBlur2, tex(vertical, diagonal, coc), tex(far)},
		{ShaderComposite, tex(ctx.Input, far, coc, nearBlur), tex(output)},
	}
	for _, s := range stages {
		if err := ctx.Draw(s.key, s.inputs, s.outputs, uniforms); err != nil {
			return nil, fmt.Errorf("depth of field %s: %w", s.key, err)
		}
	}
	return output, nil
}
