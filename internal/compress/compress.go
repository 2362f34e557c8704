package compress

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies a compression algorithm.
type Codec uint8

const (
	// None stores data uncompressed.
	None Codec = 0
	// LZ4 is fast with a moderate ratio.
	LZ4 Codec = 1
	// Zstd has a better ratio at higher CPU cost.
	Zstd Codec = 2
)

// ErrCorrupt is returned when compressed data cannot be decoded.
var ErrCorrupt = errors.New("corrupt compressed data")

// String returns the configuration name of c.
func (c Codec) String() string {
	switch c {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// ParseCodec parses a configuration name. The empty string selects Zstd.
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(s) {
	case "", "zstd":
		return Zstd, nil
	case "lz4":
		return LZ4, nil
	case "none":
		return None, nil
	default:
		return None, fmt.Errorf("unknown compression %q", s)
	}
}

// ForPath returns the frame codec implied by a file name suffix.
func ForPath(name string) Codec {
	switch {
	case strings.HasSuffix(name, ".zst"):
		return Zstd
	case strings.HasSuffix(name, ".lz4"):
		return LZ4
	default:
		return None
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

const blockHeaderSize = 8

// Block compresses data into a single self-describing block.
func Block(c Codec, data []byte) ([]byte, error) {
	var compressed []byte
	switch c {
	case None:
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n]
	case Zstd:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("unknown codec %d", c)
	}

	// Keep raw when compression does not save at least 10%.
	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		out := make([]byte, blockHeaderSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		copy(out[blockHeaderSize:], data)
		return out, nil
	}

	out := make([]byte, blockHeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[blockHeaderSize:], compressed)
	return out, nil
}

// Unblock decodes a block produced by Block with the same codec.
func Unblock(c Codec, block []byte) ([]byte, error) {
	if len(block) < blockHeaderSize {
		return nil, fmt.Errorf("%w: block too small for header", ErrCorrupt)
	}
	rawSize := binary.LittleEndian.Uint32(block[0:])
	compSize := binary.LittleEndian.Uint32(block[4:])
	body := block[blockHeaderSize:]

	if compSize == 0 {
		if uint32(len(body)) != rawSize {
			return nil, fmt.Errorf("%w: raw block size mismatch", ErrCorrupt)
		}
		return body, nil
	}
	if uint32(len(body)) != compSize {
		return nil, fmt.Errorf("%w: compressed block size mismatch", ErrCorrupt)
	}

	out := make([]byte, rawSize)
	switch c {
	case LZ4:
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint32(n) != rawSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil
	case Zstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		decoded, err := dec.DecodeAll(body, out[:0])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if uint32(len(decoded)) != rawSize {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return decoded, nil
	default:
		return nil, fmt.Errorf("%w: codec %s cannot hold compressed blocks", ErrCorrupt, c)
	}
}

// Frame encodes data as a standard zstd or LZ4 frame stream.
func Frame(c Codec, data []byte) ([]byte, error) {
	switch c {
	case None:
		return data, nil
	case Zstd:
		enc := getZstdEncoder()
		defer zstdEncoderPool.Put(enc)
		return enc.EncodeAll(data, nil), nil
	case LZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown codec %d", c)
	}
}

// Unframe decodes a standard zstd or LZ4 frame stream.
func Unframe(c Codec, data []byte) ([]byte, error) {
	switch c {
	case None:
		return data, nil
	case Zstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return out, nil
	case LZ4:
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown codec %d", c)
	}
}
