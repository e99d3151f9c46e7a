// Package codec implements the batch codec (C2): the bit-exact on-disk
// record-batch layout of §6.1, including CRC-32C header/body validation.
package codec

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/streamstore/logengine/buffer"
	"github.com/streamstore/logengine/types"
)

// HeaderSize is the fixed 61-byte record-batch header.
const HeaderSize = 61

var enc = binary.BigEndian
var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Header is the parsed fixed header, available before any body bytes are
// touched — the decoder validates HeaderCRC against exactly this view
// before allocating anything for the body.
type Header struct {
	HeaderCRC       uint32
	SizeBytes       uint32
	BaseOffset      uint64
	Type            types.BatchType
	CRC             uint32
	Attrs           types.Attrs
	LastOffsetDelta uint32
	FirstTimestamp  int64
	MaxTimestamp    int64
	ProducerID      int64
	ProducerEpoch   int16
	BaseSequence    int32
	RecordCount     uint32
}

// LastOffset is the offset of the last record in the batch.
func (h Header) LastOffset() uint64 { return h.BaseOffset + uint64(h.LastOffsetDelta) }

// BodySize is the number of body bytes following the fixed header.
func (h Header) BodySize() int { return int(h.SizeBytes) - HeaderSize }

// DecodeHeader parses and validates the fixed header from the first
// HeaderSize bytes of b. It never looks past HeaderSize and never
// allocates until the CRC check passes.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("codec: short header (%d bytes): %w", len(b), types.ErrShortRead)
	}
	gotCRC := enc.Uint32(b[0:4])
	wantCRC := crc32.Checksum(b[4:HeaderSize], crcTable)
	if gotCRC != wantCRC {
		return Header{}, fmt.Errorf("codec: header crc mismatch (got %08x want %08x): %w", gotCRC, wantCRC, types.ErrCorruptHeader)
	}
	h := Header{
		HeaderCRC:       gotCRC,
		SizeBytes:       enc.Uint32(b[4:8]),
		BaseOffset:      enc.Uint64(b[8:16]),
		Type:            types.BatchType(b[16]),
		CRC:             enc.Uint32(b[17:21]),
		Attrs:           types.Attrs(enc.Uint16(b[21:23])),
		LastOffsetDelta: enc.Uint32(b[23:27]),
		FirstTimestamp:  int64(enc.Uint64(b[27:35])),
		MaxTimestamp:    int64(enc.Uint64(b[35:43])),
		ProducerID:      int64(enc.Uint64(b[43:51])),
		ProducerEpoch:   int16(enc.Uint16(b[51:53])),
		BaseSequence:    int32(enc.Uint32(b[53:57])),
		RecordCount:     enc.Uint32(b[57:61]),
	}
	if h.SizeBytes < HeaderSize {
		return Header{}, fmt.Errorf("codec: size_bytes %d smaller than header: %w", h.SizeBytes, types.ErrCorruptHeader)
	}
	return h, nil
}

// DecodeBatch parses a complete on-disk batch (header + body) from b, which
// must hold exactly h.SizeBytes bytes (the caller typically obtains h from
// DecodeHeader first, reads BodySize() more bytes, then calls DecodeBatch
// on the concatenation — or calls it directly against an in-memory slice).
func DecodeBatch(b []byte) (types.RecordBatch, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return types.RecordBatch{}, err
	}
	if len(b) < int(h.SizeBytes) {
		return types.RecordBatch{}, fmt.Errorf("codec: batch truncated, have %d want %d: %w", len(b), h.SizeBytes, types.ErrShortRead)
	}
	body := b[HeaderSize:h.SizeBytes]
	gotCRC := crc32.Checksum(body, crcTable)
	if gotCRC != h.CRC {
		return types.RecordBatch{}, fmt.Errorf("codec: body crc mismatch (got %08x want %08x): %w", gotCRC, h.CRC, types.ErrCorruptBody)
	}

	rb := types.RecordBatch{
		BaseOffset:      h.BaseOffset,
		Type:            h.Type,
		Attrs:           h.Attrs,
		FirstTimestamp:  h.FirstTimestamp,
		MaxTimestamp:    h.MaxTimestamp,
		LastOffsetDelta: h.LastOffsetDelta,
		ProducerID:      h.ProducerID,
		ProducerEpoch:   h.ProducerEpoch,
		BaseSequence:    h.BaseSequence,
		RecordCount:     h.RecordCount,
		HeaderCRC:       h.HeaderCRC,
		CRC:             h.CRC,
	}
	if h.Attrs.Compression() != types.CompressionNone {
		rb.Body = append([]byte(nil), body...)
		return rb, nil
	}
	records, err := DecodeRecords(body, h.RecordCount)
	if err != nil {
		return types.RecordBatch{}, err
	}
	rb.Records = records
	return rb, nil
}

// EncodeBatch serializes rb into the on-disk layout. If rb.Attrs carries a
// non-none compression type, rb.Body is taken as the already-compressed
// opaque payload; otherwise rb.Records is encoded uncompressed.
func EncodeBatch(rb types.RecordBatch) *buffer.Buffer {
	buf := buffer.New()
	ph := buf.Reserve(HeaderSize)

	var body []byte
	if rb.Attrs.Compression() != types.CompressionNone {
		body = rb.Body
	} else {
		body = EncodeRecords(rb.Records)
	}
	buf.Append(body)

	bodyCRC := crc32.Checksum(body, crcTable)
	sizeBytes := uint32(HeaderSize + len(body))

	hdr := make([]byte, HeaderSize)
	enc.PutUint32(hdr[4:8], sizeBytes)
	enc.PutUint64(hdr[8:16], rb.BaseOffset)
	hdr[16] = byte(rb.Type)
	enc.PutUint32(hdr[17:21], bodyCRC)
	enc.PutUint16(hdr[21:23], uint16(rb.Attrs))
	enc.PutUint32(hdr[23:27], rb.LastOffsetDelta)
	enc.PutUint64(hdr[27:35], uint64(rb.FirstTimestamp))
	enc.PutUint64(hdr[35:43], uint64(rb.MaxTimestamp))
	enc.PutUint64(hdr[43:51], uint64(rb.ProducerID))
	enc.PutUint16(hdr[51:53], uint16(rb.ProducerEpoch))
	enc.PutUint32(hdr[53:57], uint32(rb.BaseSequence))
	enc.PutUint32(hdr[57:61], uint32(len(rb.Records)))
	if rb.Attrs.Compression() != types.CompressionNone {
		enc.PutUint32(hdr[57:61], rb.RecordCount)
	}
	headerCRC := crc32.Checksum(hdr[4:HeaderSize], crcTable)
	enc.PutUint32(hdr[0:4], headerCRC)

	ph.WriteAt(0, hdr)
	return buf
}
