// Package bytebuf provides the fixed-capacity buffers connections read into
// and flush from. A Buffer never grows: producers write into the free tail,
// consumers read from the head, and Compact reclaims consumed space.
package bytebuf

// Buffer is a fixed-capacity byte window with independent read and write
// offsets. The zero value has no capacity.
type Buffer struct {
	data []byte
	r    int
	w    int
}

func New(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

func (b *Buffer) Cap() int { return len(b.data) }

// Len is the number of unread bytes.
func (b *Buffer) Len() int { return b.w - b.r }

// Free is the space left at the tail without compaction.
func (b *Buffer) Free() int { return len(b.data) - b.w }

// Bytes returns the unread bytes without consuming them.
func (b *Buffer) Bytes() []byte { return b.data[b.r:b.w] }

// Next consumes and returns the next n unread bytes. The slice aliases the
// buffer and is only valid until the next Compact or write.
func (b *Buffer) Next(n int) []byte {
	if n > b.Len() {
		n = b.Len()
	}
	p := b.data[b.r : b.r+n]
	b.r += n
	if b.r == b.w {
		b.r, b.w = 0, 0
	}
	return p
}

// Tail exposes the free space for a direct read into the buffer; follow it
// with Commit.
func (b *Buffer) Tail() []byte { return b.data[b.w:] }

// Commit marks n bytes of Tail as written.
func (b *Buffer) Commit(n int) {
	if n < 0 || n > b.Free() {
		panic("bytebuf: commit out of range")
	}
	b.w += n
}

// Write copies as much of p as fits and returns the count copied.
func (b *Buffer) Write(p []byte) int {
	n := copy(b.data[b.w:], p)
	b.w += n
	return n
}

// Compact moves unread bytes to the front so Free covers all consumed space.
func (b *Buffer) Compact() {
	if b.r == 0 {
		return
	}
	n := copy(b.data, b.data[b.r:b.w])
	b.r, b.w = 0, n
}

func (b *Buffer) Reset() {
	b.r, b.w = 0, 0
}
