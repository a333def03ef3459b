package composer

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/Carmen-Shannon/oxy-fx/engine/effect"
	"github.com/Carmen-Shannon/oxy-fx/engine/renderer"
)

// Variant is the composer flavour chosen for a backend.
type Variant int

const (
	// VariantFull runs every pass at its declared formats.
	VariantFull Variant = iota

	// VariantReduced drops passes the backend cannot run and renders into 8-bit targets.
	VariantReduced
)

// String returns the name of the variant.
func (v Variant) String() string {
	switch v {
	case VariantFull:
		return "full"
	case VariantReduced:
		return "reduced"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// VariantFor returns VariantFull when caps include compute and multiple render targets.
func VariantFor(caps renderer.Capabilities) Variant {
	if caps.Has(renderer.CapCompute | renderer.CapMultipleRenderTargets) {
		return VariantFull
	}
	return VariantReduced
}

// ExecutableChain is the ordered list of passes run for a frame.
type ExecutableChain struct {
	// Variant is the composer variant the chain was built for.
	Variant Variant

	// Passes are the passes to run, in execution order.
	Passes []effect.Pass

	// Dropped are the active passes whose requirements exceed the backend capabilities.
	Dropped []effect.Pass
}

// Build orders the active passes of a pass set for a backend. Inactive passes are left out, passes
// requiring capabilities outside caps are dropped, and the rest are ordered by kind; passes of the
// same kind keep their relative order.
//
// Parameters:
//   - enabled: the candidate passes
//   - caps: the backend capabilities
//
// Returns:
//   - *ExecutableChain: the chain
//   - error: an error if two passes share a name
func Build(enabled []effect.Pass, caps renderer.Capabilities) (*ExecutableChain, error) {
	chain := &ExecutableChain{Variant: VariantFor(caps)}
	seen := make(map[string]bool, len(enabled))
	for _, p := range enabled {
		if p == nil {
			continue
		}
		if seen[p.Name()] {
			return nil, fmt.Errorf("duplicate pass name %q", p.Name())
		}
		seen[p.Name()] = true

		if !p.Active() {
			continue
		}
		if !caps.Has(p.Requirements()) {
			chain.Dropped = append(chain.Dropped, p)
			continue
		}
		chain.Passes = append(chain.Passes, p)
	}
	slices.SortStableFunc(chain.Passes, func(a, b effect.Pass) int {
		return cmp.Compare(a.Kind(), b.Kind())
	})
	return chain, nil
}

// Names returns the pass names in execution order.
func (c *ExecutableChain) Names() []string {
	names := make([]string, len(c.Passes))
	for i, p := range c.Passes {
		names[i] = p.Name()
	}
	return names
}

// Contains reports whether a pass is part of the chain.
func (c *ExecutableChain) Contains(p effect.Pass) bool {
	return slices.Contains(c.Passes, p)
}

// key identifies the chain contents for change detection.
func (c *ExecutableChain) key() string {
	return c.Variant.String() + ":" + strings.Join(c.Names(), ",")
}
