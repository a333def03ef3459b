package depth_of_field

// DepthOfFieldBuilderOption configures a DepthOfField at construction.
type DepthOfFieldBuilderOption func(*depthOfField)

// WithMeasureMode sets the initial focal distance measurement mode.
//
// Parameters:
//   - m: the measure mode
//
// Returns:
//   - DepthOfFieldBuilderOption: the option
func WithMeasureMode(m MeasureMode) DepthOfFieldBuilderOption {
	return func(d *depthOfField) {
		d.SetMeasureMode(m)
	}
}

// WithTargetPoint sets the initial target point instead of creating it at the origin on first use.
//
// Parameters:
//   - p: the target point in world space
//
// Returns:
//   - DepthOfFieldBuilderOption: the option
func WithTargetPoint(p [3]float32) DepthOfFieldBuilderOption {
	return func(d *depthOfField) {
		d.target = &p
	}
}

// WithMaxBlur sets the bokeh radius in pixels at a circle of confusion of 1.
func WithMaxBlur(px float32) DepthOfFieldBuilderOption {
	return func(d *depthOfField) {
		d.BasePass.SetUniform("maxBlur", px)
	}
}
