package common

// Key codes used by the viewer key bindings.
// These values match GLFW key codes which use ASCII values for printable keys.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeyB = 66 // B key: toggle bloom
	KeyD = 68 // D key: cycle debug texture
	KeyC = 67 // C key: cycle debug channel
	KeyF = 70 // F key: toggle depth of field
	KeyM = 77 // M key: cycle focus measure mode
	KeyO = 79 // O key: toggle outline
	KeyT = 84 // T key: toggle CoC test view

	KeyLeft  = 263 // Left arrow: orbit left
	KeyRight = 262 // Right arrow: orbit right
	KeyUp    = 265 // Up arrow: focal distance up
	KeyDown  = 264 // Down arrow: focal distance down
)
