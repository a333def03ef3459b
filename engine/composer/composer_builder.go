package composer

import (
	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/engine/effect"
)

// ComposerBuilderOption configures a Composer at construction.
type ComposerBuilderOption func(*composer)

// WithPasses registers passes with the composer. Passes with a duplicate name are skipped.
//
// Parameters:
//   - passes: the passes, in any order
//
// Returns:
//   - ComposerBuilderOption: the option
func WithPasses(passes ...effect.Pass) ComposerBuilderOption {
	return func(c *composer) {
		for _, p := range passes {
			if err := c.addLocked(p); err != nil {
				common.Logger().Warn("pass not registered", "pass", p.Name(), "error", err)
			}
		}
	}
}

// WithViewport sets the initial viewport size the render targets are sized from.
//
// Parameters:
//   - width, height: the viewport size in pixels
//
// Returns:
//   - ComposerBuilderOption: the option
func WithViewport(width, height int) ComposerBuilderOption {
	return func(c *composer) {
		c.width, c.height = max(width, 1), max(height, 1)
	}
}
