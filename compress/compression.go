package compress

import "github.com/streamstore/logengine/types"

var compressors = map[types.CompressionType]Compressor{
	types.CompressionNone:   nil,
	types.CompressionGzip:   &GzipCompressor{},
	types.CompressionSnappy: &SnappyCompressor{},
	types.CompressionLZ4:    &LZ4Compressor{},
	types.CompressionZstd:   &ZSTDCompressor{},
}

// GetCompressor returns the Compressor selected by a batch's Attrs, or nil
// when the batch is uncompressed.
func GetCompressor(attrs types.Attrs) Compressor {
	return compressors[attrs.Compression()]
}

// ForType returns the Compressor for an explicit compression type, or nil
// for CompressionNone.
func ForType(c types.CompressionType) Compressor {
	return compressors[c]
}

// Compressor represents one of the supported compressors
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}
