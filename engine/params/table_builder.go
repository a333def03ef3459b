package params

// TableBuilderOption configures a Table at construction.
type TableBuilderOption func(*table)

// WithTextureSource sets the resolver texture parameters are looked up with.
//
// Parameters:
//   - src: the texture resolver
//
// Returns:
//   - TableBuilderOption: the option
func WithTextureSource(src TextureSource) TableBuilderOption {
	return func(t *table) {
		t.textures = src
	}
}
