// pre_processor.go implements the Oxy WGSL shader pre-processor. Effect shaders only carry their
// fragment or compute stage; the shared vertex stage, common helpers and the group 0 resource
// declarations are injected from @oxy: annotations so that the WGSL always agrees with the
// shader's declared inputs and uniforms.
//
// Annotations are single-line WGSL comments:
//
//	//@oxy:include <name>   injects a registered WGSL snippet (fullscreen, color)
//	//@oxy:bindings         generates the Params struct and the @group(0) declarations
package shader

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-fx/common"
)

// annotationPrefix is the marker that identifies an Oxy annotation within a WGSL comment line.
const annotationPrefix = "//@oxy:"

//go:embed assets/fullscreen.wgsl
var fullscreenSource string

//go:embed assets/color.wgsl
var colorSource string

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	// includeRegistry maps @oxy:include arguments to their embedded WGSL source.
	includeRegistry map[string]string
}

// PreProcessor expands @oxy: annotations in effect shader source.
type PreProcessor interface {
	// Process replaces every annotation line in source with its generated WGSL.
	// Lines that are not annotations are kept as is.
	//
	// Parameters:
	//   - source: the raw WGSL source
	//   - s: the shader whose declaration drives @oxy:bindings
	//
	// Returns:
	//   - string: the processed WGSL source
	//   - error: an error if an annotation is malformed or references an unknown include
	Process(source string, s Shader) (string, error)
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor with the built-in include registry.
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor() PreProcessor {
	return &preProcessor{
		includeRegistry: map[string]string{
			"fullscreen": fullscreenSource,
			"color":      colorSource,
		},
	}
}

func (p *preProcessor) Process(source string, s Shader) (string, error) {
	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	included := make(map[string]bool)

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		rest, ok := strings.CutPrefix(trimmed, annotationPrefix)
		if !ok {
			out = append(out, line)
			continue
		}

		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return "", fmt.Errorf("line %d: empty annotation", i+1)
		}
		switch fields[0] {
		case "include":
			if len(fields) != 2 {
				return "", fmt.Errorf("line %d: @oxy:include takes exactly one argument", i+1)
			}
			src, ok := p.includeRegistry[fields[1]]
			if !ok {
				return "", fmt.Errorf("line %d: unknown @oxy:include argument %q", i+1, fields[1])
			}
			if included[fields[1]] {
				continue
			}
			included[fields[1]] = true
			out = append(out, src)
		case "bindings":
			out = append(out, Bindings(s))
		default:
			return "", fmt.Errorf("line %d: unknown annotation type %q", i+1, fields[0])
		}
	}
	return strings.Join(out, "\n"), nil
}

// Bindings generates the WGSL group 0 declarations for a shader: the Params uniform struct at
// binding 0, the shared sampler at binding 1, one texture_2d<f32> per input from binding 2, and
// for compute shaders the output storage texture after the inputs.
//
// Parameters:
//   - s: the shader declaration
//
// Returns:
//   - string: the WGSL declarations
func Bindings(s Shader) string {
	var b strings.Builder
	b.WriteString("struct Params {\n")
	if len(s.Uniforms()) == 0 {
		b.WriteString("    pad0: vec4<f32>,\n")
	}
	for _, u := range s.Uniforms() {
		fmt.Fprintf(&b, "    %s: vec4<f32>,\n", u.Name)
	}
	b.WriteString("}\n")
	b.WriteString("@group(0) @binding(0) var<uniform> params: Params;\n")
	b.WriteString("@group(0) @binding(1) var samp: sampler;\n")
	for i, name := range s.Inputs() {
		fmt.Fprintf(&b, "@group(0) @binding(%d) var t_%s: texture_2d<f32>;\n", i+2, name)
	}
	if s.ShaderType() == ShaderTypeCompute {
		fmt.Fprintf(&b, "@group(0) @binding(%d) var out_tex: texture_storage_2d<%s, write>;\n",
			len(s.Inputs())+2, storageTexelFormat(s.StorageFormat()))
	}
	return b.String()
}

// storageTexelFormat returns the WGSL texel format name for a storage texture.
func storageTexelFormat(f common.TextureFormat) string {
	switch f {
	case common.TextureFormatRGBA8:
		return "rgba8unorm"
	default:
		return "rgba16float"
	}
}
