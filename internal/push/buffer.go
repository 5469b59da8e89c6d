package push

import "sync"

// UntaggedBuffer is a mutex-guarded ordered holding area for untagged
// responses received while an IDLE is in flight. It is drained
// atomically by the loop once the command goes quiet.
type UntaggedBuffer struct {
	mu        sync.Mutex
	responses []UntaggedResponse
}

// Append adds r to the end of the buffer, preserving arrival order.
func (b *UntaggedBuffer) Append(r UntaggedResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses = append(b.responses, r)
}

// Drain returns the buffered responses in arrival order and clears
// the buffer. Callers must not hold any lock of their own across the
// returned slice's processing.
func (b *UntaggedBuffer) Drain() []UntaggedResponse {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.responses) == 0 {
		return nil
	}
	drained := b.responses
	b.responses = nil
	return drained
}

// Len reports the number of currently buffered responses. Useful for
// tests asserting the buffer was drained.
func (b *UntaggedBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.responses)
}
