package render_target

// PoolBuilderOption configures a Pool at construction.
type PoolBuilderOption func(*pool)

// WithNativeFormats makes the pool allocate every floating point target as RGBA8, the format
// every backend renders natively.
//
// Returns:
//   - PoolBuilderOption: the option
func WithNativeFormats() PoolBuilderOption {
	return func(p *pool) {
		p.nativeFormats = true
	}
}
