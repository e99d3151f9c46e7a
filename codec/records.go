package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/streamstore/logengine/types"
)

// EncodeRecords serializes an uncompressed record body: length-prefixed
// zig-zag varint records, per §6.1.
func EncodeRecords(records []types.Record) []byte {
	var out []byte
	for _, r := range records {
		body := encodeRecordBody(r)
		lenBuf := make([]byte, binary.MaxVarintLen64)
		n := binary.PutVarint(lenBuf, int64(len(body)))
		out = append(out, lenBuf[:n]...)
		out = append(out, body...)
	}
	return out
}

func encodeRecordBody(r types.Record) []byte {
	buf := make([]byte, 0, 32+len(r.Key)+len(r.Value))
	var tmp [binary.MaxVarintLen64]byte

	buf = append(buf, byte(r.Attributes))

	n := binary.PutVarint(tmp[:], r.TimestampDelta)
	buf = append(buf, tmp[:n]...)

	n = binary.PutVarint(tmp[:], r.OffsetDelta)
	buf = append(buf, tmp[:n]...)

	n = binary.PutVarint(tmp[:], int64(len(r.Key)))
	buf = append(buf, tmp[:n]...)
	buf = append(buf, r.Key...)

	n = binary.PutVarint(tmp[:], int64(len(r.Value)))
	buf = append(buf, tmp[:n]...)
	buf = append(buf, r.Value...)

	n = binary.PutVarint(tmp[:], int64(len(r.Headers)))
	buf = append(buf, tmp[:n]...)
	for _, h := range r.Headers {
		n = binary.PutVarint(tmp[:], int64(len(h.Key)))
		buf = append(buf, tmp[:n]...)
		buf = append(buf, []byte(h.Key)...)
		n = binary.PutVarint(tmp[:], int64(len(h.Value)))
		buf = append(buf, tmp[:n]...)
		buf = append(buf, h.Value...)
	}
	return buf
}

// DecodeRecords parses count records out of an uncompressed body.
func DecodeRecords(body []byte, count uint32) ([]types.Record, error) {
	records := make([]types.Record, 0, count)
	off := 0
	for i := uint32(0); i < count; i++ {
		length, n, err := readVarint(body, off)
		if err != nil {
			return nil, err
		}
		off += n
		if length < 0 || off+int(length) > len(body) {
			return nil, fmt.Errorf("codec: record %d length %d exceeds body: %w", i, length, types.ErrCorruptBody)
		}
		recBody := body[off : off+int(length)]
		off += int(length)

		rec, err := decodeRecordBody(recBody)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func decodeRecordBody(b []byte) (types.Record, error) {
	if len(b) < 1 {
		return types.Record{}, fmt.Errorf("codec: record body too short: %w", types.ErrCorruptBody)
	}
	r := types.Record{Attributes: int8(b[0])}
	off := 1

	ts, n, err := readVarint(b, off)
	if err != nil {
		return types.Record{}, err
	}
	r.TimestampDelta, off = ts, off+n

	od, n, err := readVarint(b, off)
	if err != nil {
		return types.Record{}, err
	}
	r.OffsetDelta, off = od, off+n

	keyLen, n, err := readVarint(b, off)
	off += n
	if err != nil {
		return types.Record{}, err
	}
	if keyLen >= 0 {
		if off+int(keyLen) > len(b) {
			return types.Record{}, fmt.Errorf("codec: key exceeds record: %w", types.ErrCorruptBody)
		}
		r.Key = append([]byte(nil), b[off:off+int(keyLen)]...)
		off += int(keyLen)
	}

	valLen, n, err := readVarint(b, off)
	off += n
	if err != nil {
		return types.Record{}, err
	}
	if valLen >= 0 {
		if off+int(valLen) > len(b) {
			return types.Record{}, fmt.Errorf("codec: value exceeds record: %w", types.ErrCorruptBody)
		}
		r.Value = append([]byte(nil), b[off:off+int(valLen)]...)
		off += int(valLen)
	}

	headerCount, n, err := readVarint(b, off)
	off += n
	if err != nil {
		return types.Record{}, err
	}
	for i := int64(0); i < headerCount; i++ {
		keyLen, n, err := readVarint(b, off)
		off += n
		if err != nil {
			return types.Record{}, err
		}
		if off+int(keyLen) > len(b) {
			return types.Record{}, fmt.Errorf("codec: header key exceeds record: %w", types.ErrCorruptBody)
		}
		key := string(b[off : off+int(keyLen)])
		off += int(keyLen)

		valLen, n, err := readVarint(b, off)
		off += n
		if err != nil {
			return types.Record{}, err
		}
		if off+int(valLen) > len(b) {
			return types.Record{}, fmt.Errorf("codec: header value exceeds record: %w", types.ErrCorruptBody)
		}
		val := append([]byte(nil), b[off:off+int(valLen)]...)
		off += int(valLen)

		r.Headers = append(r.Headers, types.Header{Key: key, Value: val})
	}

	return r, nil
}

func readVarint(b []byte, off int) (int64, int, error) {
	if off >= len(b) {
		return 0, 0, fmt.Errorf("codec: varint past end of record: %w", types.ErrCorruptBody)
	}
	v, n := binary.Varint(b[off:])
	if n <= 0 {
		return 0, 0, fmt.Errorf("codec: malformed varint: %w", types.ErrCorruptBody)
	}
	return v, n, nil
}
