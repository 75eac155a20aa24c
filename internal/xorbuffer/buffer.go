// Package xorbuffer implements a growable byte buffer holding already-
// demasked bytes awaiting framing. It is the decoder's only window onto the
// stream and must tolerate arbitrary chunking: decoder state never depends
// on TCP read boundaries.
//
// Buffer is not safe for concurrent use. It is owned exclusively by the
// reader task that feeds it (see the supervisor package).
package xorbuffer

// compactThreshold is the consumed-prefix size at which Compact actually
// reclaims memory by slicing it away. Kept well above typical frame sizes
// (header + 1024-byte V1 block) so Compact doesn't thrash on every frame.
const compactThreshold = 64 * 1024

// Buffer is a growable, append-only byte buffer with a moving consumption
// offset.
type Buffer struct {
	data []byte
	pos  int
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// Append adds p to the unconsumed tail of the buffer. The caller's slice is
// copied; Buffer never aliases caller-owned memory.
func (b *Buffer) Append(p []byte) {
	b.data = append(b.data, p...)
}

// Len returns the number of unconsumed bytes.
func (b *Buffer) Len() int {
	return len(b.data) - b.pos
}

// Peek returns the next n unconsumed bytes without consuming them. The
// second return value is false if fewer than n bytes are buffered, in which
// case the slice is nil.
func (b *Buffer) Peek(n int) ([]byte, bool) {
	if n < 0 || b.Len() < n {
		return nil, false
	}
	return b.data[b.pos : b.pos+n], true
}

// PeekByte returns the next unconsumed byte without consuming it.
func (b *Buffer) PeekByte() (byte, bool) {
	if b.Len() < 1 {
		return 0, false
	}
	return b.data[b.pos], true
}

// Consume advances the consumption offset by n bytes. It panics if n
// exceeds the number of unconsumed bytes — callers must Peek/Len first.
func (b *Buffer) Consume(n int) {
	if n < 0 || n > b.Len() {
		panic("xorbuffer: Consume out of range")
	}
	b.pos += n
}

// IndexOf returns the offset (relative to the start of the unconsumed
// region) of the first occurrence of pattern at or after from, or -1 if not
// found in the currently buffered bytes.
func (b *Buffer) IndexOf(pattern []byte, from int) int {
	if from < 0 {
		from = 0
	}
	if len(pattern) == 0 || from > b.Len() {
		return -1
	}
	hay := b.data[b.pos:]
	idx := indexFrom(hay, pattern, from)
	return idx
}

func indexFrom(hay, pattern []byte, from int) int {
	if from >= len(hay) {
		return -1
	}
	n := len(pattern)
	for i := from; i+n <= len(hay); i++ {
		if bytesEqual(hay[i:i+n], pattern) {
			return i
		}
	}
	return -1
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Compact drops the already-consumed prefix once it exceeds compactThreshold,
// bounding the buffer's memory under a steady stream of small frames.
func (b *Buffer) Compact() {
	if b.pos < compactThreshold {
		return
	}
	remaining := b.Len()
	copy(b.data, b.data[b.pos:])
	b.data = b.data[:remaining]
	b.pos = 0
}
