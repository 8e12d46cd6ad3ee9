package transform

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Frame tags, stored as the first byte of a compressed value. These are
// format constants; changing them breaks stored data.
const (
	frameRaw    byte = 0
	frameLZ4    byte = 1
	frameZstd   byte = 2
	frameSnappy byte = 3
)

// zstdEncoder and zstdDecoder are shared; both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("transform: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("transform: zstd decoder initialization failed: " + err.Error())
	}
}

// Compressor compresses values with one algorithm. Values that do not shrink
// are stored raw behind a one-byte frame tag.
type Compressor struct {
	name string
	tag  byte
}

// Zstd compresses at the default level. Best for larger, text-like values.
func Zstd() *Compressor { return &Compressor{name: "zstd", tag: frameZstd} }

// LZ4 uses block compression. Faster, with a lower ratio than Zstd.
func LZ4() *Compressor { return &Compressor{name: "lz4", tag: frameLZ4} }

// Snappy favors speed over ratio even more than LZ4.
func Snappy() *Compressor { return &Compressor{name: "snappy", tag: frameSnappy} }

// Name returns the algorithm name.
func (c *Compressor) Name() string { return c.name }

func (c *Compressor) TransformOut(s string) (string, error) {
	data := []byte(s)
	var (
		body []byte
		err  error
	)
	switch c.tag {
	case frameZstd:
		body, err = compressZstd(data)
	case frameLZ4:
		body, err = compressLZ4(data)
	case frameSnappy:
		body = snappy.Encode(nil, data)
		if len(body) >= len(data) {
			err = errIncompressible
		}
	default:
		return "", fmt.Errorf("transform: unsupported compression %q", c.name)
	}

	tag := c.tag
	if err == errIncompressible {
		tag, body = frameRaw, data
	} else if err != nil {
		return "", err
	}
	return encodeText(append([]byte{tag}, body...)), nil
}

// TransformIn accepts any frame tag, so a store can switch algorithms
// without rewriting old values.
func (c *Compressor) TransformIn(s string) (string, error) {
	framed, err := decodeText(s)
	if err != nil {
		return "", fmt.Errorf("transform: %s: %w", c.name, err)
	}
	if len(framed) == 0 {
		return "", fmt.Errorf("transform: %s: empty frame", c.name)
	}

	body := framed[1:]
	var data []byte
	switch framed[0] {
	case frameRaw:
		data = body
	case frameZstd:
		data, err = zstdDecoder.DecodeAll(body, nil)
		if err != nil {
			err = fmt.Errorf("zstd decompress: %w", err)
		}
	case frameLZ4:
		data, err = decompressLZ4(body)
	case frameSnappy:
		data, err = snappy.Decode(nil, body)
		if err != nil {
			err = fmt.Errorf("snappy decompress: %w", err)
		}
	default:
		err = fmt.Errorf("unknown frame tag %d", framed[0])
	}
	if err != nil {
		return "", fmt.Errorf("transform: %s: %w", c.name, err)
	}
	return string(data), nil
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, errIncompressible
	}
	return compressed, nil
}

// LZ4 blocks carry no length, so the uncompressed size is prefixed as a uvarint.
func compressLZ4(data []byte) ([]byte, error) {
	header := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(header, uint64(len(data)))

	destination := make([]byte, n+lz4.CompressBlockBound(len(data)))
	copy(destination, header[:n])

	written, err := lz4.CompressBlock(data, destination[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if written == 0 || n+written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:n+written], nil
}

func decompressLZ4(body []byte) ([]byte, error) {
	size, n := binary.Uvarint(body)
	if n <= 0 {
		return nil, fmt.Errorf("lz4 decompress: bad size header")
	}
	// A block expands at most 255 times, so larger headers are corrupt.
	if limit := uint64(len(body)-n)*255 + 16; size > limit {
		return nil, fmt.Errorf("lz4 decompress: size header %d exceeds %d", size, limit)
	}
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(body[n:], destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if uint64(read) != size {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
	}
	return destination, nil
}
