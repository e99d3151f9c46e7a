package buffer

// Placeholder is a writable window into a buffer, returned by Reserve. It
// lets a writer append a fixed-size region up front (e.g. a batch header)
// and fill in fields — a CRC, a length — once the rest of the batch has
// been appended after it.
type Placeholder struct {
	buf       *Buffer
	fragIndex int
	length    int
}

// Reserve appends n zero bytes to the tail of the buffer and returns a
// handle that can write through them in place. The reservation counts
// toward Size immediately.
func (b *Buffer) Reserve(n int) *Placeholder {
	backing := make([]byte, n)
	b.frags = append(b.frags, fragment{backing: backing, start: 0, length: n})
	b.size += n
	return &Placeholder{buf: b, fragIndex: len(b.frags) - 1, length: n}
}

// Len is the size of the reserved window.
func (p *Placeholder) Len() int { return p.length }

// WriteAt writes data into the reserved window at offset, which must
// satisfy offset+len(data) <= Len.
func (p *Placeholder) WriteAt(offset int, data []byte) {
	if offset < 0 || offset+len(data) > p.length {
		panic("buffer: placeholder write out of range")
	}
	f := &p.buf.frags[p.fragIndex]
	copy(f.backing[f.start+offset:], data)
}
