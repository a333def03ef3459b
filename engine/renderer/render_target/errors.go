package render_target

import "errors"

// ErrInvalidHandle is returned for handles that were never allocated or have been released.
var ErrInvalidHandle = errors.New("render_target: invalid handle")
