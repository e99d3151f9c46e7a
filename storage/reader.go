package storage

import (
	"errors"
	"fmt"
	"io"

	"github.com/streamstore/logengine/codec"
	"github.com/streamstore/logengine/types"
)

// Decision is a segment reader consumer's verdict on a batch: materialize
// it (Keep) or drop it without copying record bytes (Skip), per the
// zero-copy skip/keep contract of §4.4.
type Decision int

const (
	Keep Decision = iota
	Skip
)

// Reader is the segment reader (C4): a positional, buffered stream over a
// sealed or live segment file that decodes batches lazily and can be
// reconstructed at any file position obtained from the offset index.
type Reader struct {
	file fileHandle

	pos      int64
	bufStart int64
	buf      []byte
	bufSize  int

	sizeFunc            func() int64
	committedOffsetFunc func() uint64
}

// NewReader constructs a reader over file starting at pos. sizeFunc
// returns the current readable size of the file (for a live segment this
// grows over time); committedOffsetFunc returns the enclosing segment
// set's committed offset, the safety net of §4.4(c).
func NewReader(file fileHandle, pos int64, bufSize int, sizeFunc func() int64, committedOffsetFunc func() uint64) *Reader {
	if bufSize <= 0 {
		bufSize = 128 << 10
	}
	return &Reader{
		file:                file,
		pos:                 pos,
		bufSize:             bufSize,
		sizeFunc:            sizeFunc,
		committedOffsetFunc: committedOffsetFunc,
	}
}

// Position returns the reader's current file offset.
func (r *Reader) Position() int64 { return r.pos }

func (r *Reader) ensureBuffered(n int) error {
	if r.pos >= r.bufStart && r.pos+int64(n) <= r.bufStart+int64(len(r.buf)) {
		return nil
	}
	avail := r.sizeFunc() - r.pos
	if avail <= 0 {
		return io.EOF
	}
	readSize := r.bufSize
	if n > readSize {
		readSize = n
	}
	if int64(readSize) > avail {
		readSize = int(avail)
	}
	newBuf := make([]byte, readSize)
	nRead, err := r.file.ReadAt(newBuf, r.pos)
	if nRead == 0 {
		if err != nil && err != io.EOF {
			return fmt.Errorf("%w: %v", types.ErrIOFailure, err)
		}
		return io.EOF
	}
	r.buf = newBuf[:nRead]
	r.bufStart = r.pos
	if nRead < n {
		return fmt.Errorf("reader: only %d of %d bytes available: %w", nRead, n, types.ErrShortRead)
	}
	return nil
}

func (r *Reader) bytesAt(pos int64, n int) []byte {
	off := pos - r.bufStart
	return r.buf[off : off+int64(n)]
}

// NextHeader returns the header of the next batch without materializing
// its body, along with the file position it starts at. ok is false at a
// clean stopping point: end of file, or the next batch's base offset
// exceeds the committed offset ceiling.
func (r *Reader) NextHeader() (h codec.Header, position int64, ok bool, err error) {
	position = r.pos
	if err := r.ensureBuffered(codec.HeaderSize); err != nil {
		if errors.Is(err, io.EOF) {
			return codec.Header{}, position, false, nil
		}
		return codec.Header{}, position, false, err
	}
	h, err = codec.DecodeHeader(r.bytesAt(position, codec.HeaderSize))
	if err != nil {
		return codec.Header{}, position, false, err
	}
	if r.committedOffsetFunc != nil && h.BaseOffset > r.committedOffsetFunc() {
		return codec.Header{}, position, false, nil
	}
	return h, position, true, nil
}

// SkipBody advances past the body of the batch whose header was just
// returned by NextHeader, without decoding it.
func (r *Reader) SkipBody(h codec.Header) {
	r.pos += int64(codec.HeaderSize + h.BodySize())
}

// ReadBody decodes the full batch (header + body) for the header just
// returned by NextHeader and advances past it.
func (r *Reader) ReadBody(h codec.Header) (types.RecordBatch, error) {
	total := codec.HeaderSize + h.BodySize()
	position := r.pos
	if err := r.ensureBuffered(total); err != nil {
		if errors.Is(err, io.EOF) {
			return types.RecordBatch{}, fmt.Errorf("reader: eof reading body: %w", types.ErrUnexpectedEOF)
		}
		return types.RecordBatch{}, err
	}
	rb, err := codec.DecodeBatch(r.bytesAt(position, total))
	if err != nil {
		return types.RecordBatch{}, err
	}
	r.pos += int64(total)
	return rb, nil
}

// Seek repositions the reader to an absolute file offset, discarding its
// read-ahead buffer.
func (r *Reader) Seek(pos int64) {
	r.pos = pos
	r.buf = nil
}
