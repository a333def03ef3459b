package bind_group_provider

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// BufferWrite describes a single queued uniform write for a draw: the packed bytes are written
// to the provider's buffer at Binding, starting at Offset.
type BufferWrite struct {
	Provider BindGroupProvider
	Binding  int
	Offset   uint64
	Data     []byte
}

// Flush writes the data into the provider's buffer through the queue.
//
// Parameters:
//   - queue: the device queue
//
// Returns:
//   - error: an error if the provider has no buffer at Binding
func (w BufferWrite) Flush(queue *wgpu.Queue) error {
	if len(w.Data) == 0 {
		return nil
	}
	if w.Provider == nil {
		return fmt.Errorf("buffer write has no provider")
	}
	buf := w.Provider.Buffer(w.Binding)
	if buf == nil {
		return fmt.Errorf("bind group %s has no buffer at binding %d", w.Provider.Label(), w.Binding)
	}
	return queue.WriteBuffer(buf, w.Offset, w.Data)
}
