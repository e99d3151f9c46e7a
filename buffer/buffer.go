// Package buffer implements the fragmented byte buffer (C1): an ordered
// sequence of owned byte fragments with O(1) amortized append/prepend and
// zero-copy sharing, used everywhere the storage engine composes or slices
// record-batch bytes without an extra copy.
package buffer

const (
	minFragmentSize = 4 << 10
	maxFragmentSize = 16 << 20
)

// fragment is a view [start, start+length) into a backing array. Fragments
// created by Share reference the same backing array as their
// source but carry their own start/length, so growing the source never
// perturbs a fragment handed out earlier.
type fragment struct {
	backing []byte
	start   int
	length  int
}

func (f fragment) bytes() []byte {
	return f.backing[f.start : f.start+f.length]
}

// capacityLeft is how many more bytes can be packed after this fragment's
// current data without reallocating the backing array.
func (f fragment) capacityLeft() int {
	return len(f.backing) - f.start - f.length
}

// Buffer is the fragmented byte buffer.
type Buffer struct {
	frags     []fragment
	size      int
	lastAlloc int
}

// New returns an empty buffer.
func New() *Buffer {
	return &Buffer{}
}

// FromBytes returns a buffer holding a copy of b as a single fragment.
func FromBytes(b []byte) *Buffer {
	buf := New()
	buf.Append(b)
	return buf
}

// Size returns the total number of bytes held.
func (b *Buffer) Size() int {
	return b.size
}

// nextAllocationSize implements the doubling schedule bounded by
// maxFragmentSize, biased to satisfy at least minimum bytes.
func (b *Buffer) nextAllocationSize(minimum int) int {
	next := b.lastAlloc * 2
	if next < minFragmentSize {
		next = minFragmentSize
	}
	if next > maxFragmentSize {
		next = maxFragmentSize
	}
	if next < minimum {
		next = minimum
	}
	return next
}

// Append copies p to the tail of the buffer, packing into the current tail
// fragment's spare capacity when possible.
func (b *Buffer) Append(p []byte) {
	for len(p) > 0 {
		if n := len(b.frags); n > 0 {
			tail := &b.frags[n-1]
			if room := tail.capacityLeft(); room > 0 {
				take := room
				if take > len(p) {
					take = len(p)
				}
				copy(tail.backing[tail.start+tail.length:], p[:take])
				tail.length += take
				b.size += take
				p = p[take:]
				continue
			}
		}
		allocSize := b.nextAllocationSize(len(p))
		backing := make([]byte, allocSize)
		take := len(p)
		if take > allocSize {
			take = allocSize
		}
		copy(backing, p[:take])
		b.frags = append(b.frags, fragment{backing: backing, start: 0, length: take})
		b.lastAlloc = allocSize
		b.size += take
		p = p[take:]
	}
}

// AppendBuffer appends the contents of other to b without copying bytes;
// other's fragments are reused directly.
func (b *Buffer) AppendBuffer(other *Buffer) {
	b.frags = append(b.frags, other.frags...)
	b.size += other.size
	if len(other.frags) > 0 {
		last := &b.frags[len(b.frags)-1]
		last.backing = last.backing[:last.start+last.length]
		b.lastAlloc = 0 // force a fresh allocation on the next raw Append
	}
}

// Prepend inserts the contents of other at the front of b without copying
// bytes.
func (b *Buffer) Prepend(other *Buffer) {
	if other.size == 0 {
		return
	}
	b.frags = append(append([]fragment{}, other.frags...), b.frags...)
	b.size += other.size
}

// PrependBytes inserts p at the front of b, copying it into a fresh
// fragment.
func (b *Buffer) PrependBytes(p []byte) {
	if len(p) == 0 {
		return
	}
	backing := make([]byte, len(p))
	copy(backing, p)
	b.frags = append([]fragment{{backing: backing, start: 0, length: len(p)}}, b.frags...)
	b.size += len(p)
}

// PopFront removes and returns the bytes of the first fragment, or
// (nil, false) if the buffer is empty.
func (b *Buffer) PopFront() ([]byte, bool) {
	if len(b.frags) == 0 {
		return nil, false
	}
	f := b.frags[0]
	b.frags = b.frags[1:]
	b.size -= f.length
	out := make([]byte, f.length)
	copy(out, f.bytes())
	return out, true
}

// TrimFront drops the first n bytes of the buffer, splitting a fragment in
// place when n falls inside it.
func (b *Buffer) TrimFront(n int) {
	if n <= 0 {
		return
	}
	if n > b.size {
		n = b.size
	}
	remaining := n
	i := 0
	for i < len(b.frags) && remaining > 0 {
		f := &b.frags[i]
		if remaining >= f.length {
			remaining -= f.length
			i++
			continue
		}
		f.start += remaining
		f.length -= remaining
		remaining = 0
	}
	b.frags = b.frags[i:]
	b.size -= n
}

// Share returns a new buffer whose fragments view the same backing bytes as
// b[pos:pos+length], without copying. The returned buffer's own growth
// (Append) never mutates the shared bytes: new data always lands past the
// end of whatever fragment length was captured here.
func (b *Buffer) Share(pos, length int) *Buffer {
	if pos < 0 || length < 0 || pos+length > b.size {
		panic("buffer: Share out of range")
	}
	out := New()
	remaining := length
	skip := pos
	for _, f := range b.frags {
		if remaining == 0 {
			break
		}
		if skip >= f.length {
			skip -= f.length
			continue
		}
		start := f.start + skip
		avail := f.length - skip
		skip = 0
		take := avail
		if take > remaining {
			take = remaining
		}
		out.frags = append(out.frags, fragment{backing: f.backing, start: start, length: take})
		out.size += take
		remaining -= take
	}
	return out
}

// Copy returns a deep copy of b: independent backing arrays, safe to mutate
// without affecting b.
func (b *Buffer) Copy() *Buffer {
	out := New()
	for _, f := range b.frags {
		backing := make([]byte, f.length)
		copy(backing, f.bytes())
		out.frags = append(out.frags, fragment{backing: backing, start: 0, length: f.length})
	}
	out.size = b.size
	return out
}

// Bytes materializes the whole buffer into one contiguous slice. Prefer
// Iterator or Chunks when a copy isn't necessary.
func (b *Buffer) Bytes() []byte {
	out := make([]byte, 0, b.size)
	for _, f := range b.frags {
		out = append(out, f.bytes()...)
	}
	return out
}

// Chunks returns the buffer's fragments as a slice of byte slices, in
// order, without copying. Used by the appender to write each fragment to
// the underlying file directly.
func (b *Buffer) Chunks() [][]byte {
	out := make([][]byte, len(b.frags))
	for i, f := range b.frags {
		out[i] = f.bytes()
	}
	return out
}

// Equal reports whether a and b hold the same bytes in the same order,
// independent of how each is fragmented.
func (b *Buffer) Equal(o *Buffer) bool {
	if b.size != o.size {
		return false
	}
	it1, it2 := b.Iterator(), o.Iterator()
	for {
		v1, ok1 := it1.Next()
		v2, ok2 := it2.Next()
		if ok1 != ok2 {
			return false
		}
		if !ok1 {
			return true
		}
		if v1 != v2 {
			return false
		}
	}
}
