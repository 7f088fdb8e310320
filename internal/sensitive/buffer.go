// Package sensitive holds short-lived secret material — identity masking
// keys, chunk encryption keys — that must never survive past the call that
// needed it. A Buffer's backing array is wiped by its Zero method, which
// the holder defers so it runs on every exit path, mirroring the
// defer-based cleanup the teacher uses around locked sections, but for
// memory instead of mutexes.
package sensitive

// Buffer wraps a byte slice that must be wiped as soon as it is no longer
// needed. Callers are expected to `defer buf.Zero()` immediately after
// obtaining one.
type Buffer struct {
	b []byte
}

// New wraps an existing slice. Ownership of b transfers to the Buffer;
// callers must not retain their own reference to it.
func New(b []byte) *Buffer {
	return &Buffer{b: b}
}

// NewSize allocates a fresh zero-filled buffer of n bytes.
func NewSize(n int) *Buffer {
	return &Buffer{b: make([]byte, n)}
}

// Bytes returns the live backing slice. The returned slice is only valid
// until Zero is called; it must not be retained beyond the caller's scope.
func (buf *Buffer) Bytes() []byte {
	if buf == nil {
		return nil
	}
	return buf.b
}

// Len reports the buffer's length.
func (buf *Buffer) Len() int {
	if buf == nil {
		return 0
	}
	return len(buf.b)
}

// Zero overwrites every byte with 0 and drops the reference to the
// underlying array. Safe to call multiple times and on a nil receiver.
func (buf *Buffer) Zero() {
	if buf == nil {
		return
	}
	for i := range buf.b {
		buf.b[i] = 0
	}
	buf.b = nil
}

// Clone returns an independent copy backed by its own array.
func (buf *Buffer) Clone() *Buffer {
	if buf == nil {
		return nil
	}
	out := make([]byte, len(buf.b))
	copy(out, buf.b)
	return &Buffer{b: out}
}
