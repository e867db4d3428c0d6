// Package compression provides transparent decompression of compressed
// delimited-text inputs. Formats are recognized by magic bytes first and file
// extension second, so a .csv file that is actually gzipped still decodes.
//
// Supported formats: gzip, zstandard, lz4 (frame), snappy (stream framing)
// and s2. Snappy streams are decoded with the s2 reader, which accepts both.
package compression

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/ajitpratap0/comet/pkg/pool"
)

// Format identifies a compression container format.
type Format string

const (
	// None means the input is plain text
	None Format = "none"
	// Gzip is RFC 1952 gzip
	Gzip Format = "gzip"
	// Zstd is zstandard
	Zstd Format = "zstd"
	// LZ4 is the lz4 frame format
	LZ4 Format = "lz4"
	// Snappy is the snappy stream framing format (also covers s2)
	Snappy Format = "snappy"
)

// Magic byte prefixes for supported formats.
var (
	magicGzip   = []byte{0x1f, 0x8b}
	magicZstd   = []byte{0x28, 0xb5, 0x2f, 0xfd}
	magicLZ4    = []byte{0x04, 0x22, 0x4d, 0x18}
	magicSnappy = []byte{0xff, 0x06, 0x00, 0x00, 's', 'N', 'a', 'P', 'p', 'Y'}
)

// MaxMagicLen is the number of leading bytes Detect needs to see.
const MaxMagicLen = 10

// Detect identifies the compression format from the first bytes of the input.
// Plain text inputs return None.
func Detect(head []byte) Format {
	switch {
	case bytes.HasPrefix(head, magicGzip):
		return Gzip
	case bytes.HasPrefix(head, magicZstd):
		return Zstd
	case bytes.HasPrefix(head, magicLZ4):
		return LZ4
	case bytes.HasPrefix(head, magicSnappy):
		return Snappy
	default:
		return None
	}
}

// DetectPath guesses the format from a file extension. Used as a fallback
// when the leading bytes match no known magic number.
func DetectPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return Gzip
	case ".zst", ".zstd":
		return Zstd
	case ".lz4":
		return LZ4
	case ".sz", ".snappy", ".s2":
		return Snappy
	default:
		return None
	}
}

var zstdDecoderPool = sync.Pool{
	New: func() interface{} {
		dec, _ := zstd.NewReader(nil)
		return dec
	},
}

// NewReader wraps src with a decompressing reader for the given format.
// For None the source is returned unchanged.
func NewReader(src io.Reader, format Format) (io.Reader, error) {
	switch format {
	case None:
		return src, nil
	case Gzip:
		r, err := gzip.NewReader(src)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return r, nil
	case Zstd:
		dec := zstdDecoderPool.Get().(*zstd.Decoder)
		if err := dec.Reset(src); err != nil {
			zstdDecoderPool.Put(dec)
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return &zstdReader{dec: dec}, nil
	case LZ4:
		return lz4.NewReader(src), nil
	case Snappy:
		// s2 readers decode snappy stream framing as well
		return s2.NewReader(src), nil
	default:
		return nil, fmt.Errorf("unsupported compression format: %s", format)
	}
}

// zstdReader returns its pooled decoder when the stream is exhausted.
type zstdReader struct {
	dec  *zstd.Decoder
	done bool
}

func (zr *zstdReader) Read(p []byte) (int, error) {
	if zr.done {
		return 0, io.EOF
	}
	n, err := zr.dec.Read(p)
	if err == io.EOF {
		zr.done = true
		zstdDecoderPool.Put(zr.dec)
		zr.dec = nil
	}
	return n, err
}

// Decompress decodes an entire in-memory input. The returned slice comes from
// the global buffer pool when the caller releases it with pool.GlobalBufferPool.Put.
func Decompress(data []byte, format Format) ([]byte, error) {
	if format == None {
		return data, nil
	}

	r, err := NewReader(bytes.NewReader(data), format)
	if err != nil {
		return nil, err
	}

	// Compressed text typically expands 3-4x
	buf := bytes.NewBuffer(pool.GlobalBufferPool.Get(len(data) * 4))
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fmt.Errorf("decompress %s: %w", format, err)
	}
	return buf.Bytes(), nil
}
