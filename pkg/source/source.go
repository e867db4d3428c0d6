// Package source loads delimited-text input from paths, byte slices,
// streams, and sub-processes into a single contiguous buffer. Large files
// are memory-mapped, compressed inputs are transparently decompressed, and
// UTF-8 byte order marks and footer rows are trimmed before parsing.
package source

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"

	"github.com/ajitpratap0/comet/pkg/cometerrors"
	"github.com/ajitpratap0/comet/pkg/compression"
	"github.com/ajitpratap0/comet/pkg/logger"
	"github.com/ajitpratap0/comet/pkg/mmap"
	"github.com/ajitpratap0/comet/pkg/pool"
)

// MmapMode selects how path inputs are brought into memory.
type MmapMode int

const (
	// MmapAuto maps the file when it is large relative to available memory
	MmapAuto MmapMode = iota
	// MmapOn always maps path inputs
	MmapOn
	// MmapOff always reads path inputs into an allocated buffer
	MmapOff
)

// Options configures loading.
type Options struct {
	UseMmap    MmapMode
	FooterSkip int

	// Quote bytes for the footer row scan
	OpenQuote  byte
	CloseQuote byte
	Escape     byte
}

// Buffer is the loaded input. Data[Start:End] is the parseable region after
// BOM and footer trimming; the full slice stays alive so tape offsets remain
// valid. Close releases the mapping or pooled storage.
type Buffer struct {
	Data  []byte
	Start int
	End   int
	Name  string

	mmapReader *mmap.Reader
	pooled     []byte
}

// Bytes returns the parseable region.
func (b *Buffer) Bytes() []byte {
	return b.Data[b.Start:b.End]
}

// Prefetch hints that the byte range will be scanned soon. Only meaningful
// for memory-mapped inputs; otherwise a no-op.
func (b *Buffer) Prefetch(start, end int) {
	if b.mmapReader != nil {
		b.mmapReader.Prefetch(int64(start), int64(end))
	}
}

// Close releases the underlying mapping or pooled buffer. The Data slice is
// invalid afterwards.
func (b *Buffer) Close() error {
	if b.mmapReader != nil {
		err := b.mmapReader.Close()
		b.mmapReader = nil
		b.Data = nil
		return err
	}
	if b.pooled != nil {
		pool.GlobalBufferPool.Put(b.pooled)
		b.pooled = nil
	}
	b.Data = nil
	return nil
}

// Load reads src into a Buffer. src may be a path string, a []byte, an
// io.Reader, or a *exec.Cmd whose stdout is the input. Unreadable sources
// surface as ErrorTypeSource before any parsing begins.
func Load(ctx context.Context, src interface{}, opts *Options) (*Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, cometerrors.Wrap(err, cometerrors.ErrorTypeSource, "load cancelled")
	}
	if opts == nil {
		opts = &Options{}
	}

	var (
		buf *Buffer
		err error
	)
	switch s := src.(type) {
	case string:
		buf, err = loadPath(s, opts)
	case []byte:
		buf, err = loadBytes(s, "<memory>")
	case io.Reader:
		buf, err = loadReader(s, "<stream>")
	case *exec.Cmd:
		buf, err = loadCmd(s)
	default:
		return nil, cometerrors.Newf(cometerrors.ErrorTypeSource, "unsupported source type %T", src)
	}
	if err != nil {
		return nil, err
	}

	buf.End = len(buf.Data)
	stripBOM(buf)
	if opts.FooterSkip > 0 {
		buf.End = trimFooter(buf.Data, buf.Start, buf.End, opts.FooterSkip, opts)
	}

	logger.Debug("source loaded",
		zap.String("source", buf.Name),
		zap.Int("bytes", buf.End-buf.Start),
		zap.Bool("mmap", buf.mmapReader != nil))
	return buf, nil
}

func loadPath(path string, opts *Options) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cometerrors.Wrap(err, cometerrors.ErrorTypeSource, "failed to open input").
			WithDetail("path", path)
	}

	head := make([]byte, compression.MaxMagicLen)
	n, _ := io.ReadFull(f, head)
	format := compression.Detect(head[:n])
	if format == compression.None {
		format = compression.DetectPath(path)
	}

	if format != compression.None {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return nil, cometerrors.Wrap(err, cometerrors.ErrorTypeSource, "failed to rewind input").
				WithDetail("path", path)
		}
		defer f.Close()
		return decompressInto(f, format, path)
	}
	f.Close()

	if shouldMmap(path, opts.UseMmap) {
		r, err := mmap.Open(path)
		if err == nil {
			return &Buffer{Data: r.Data(), Name: path, mmapReader: r}, nil
		}
		logger.Warn("mmap failed, falling back to read",
			zap.String("path", path), zap.Error(err))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cometerrors.Wrap(err, cometerrors.ErrorTypeSource, "failed to read input").
			WithDetail("path", path)
	}
	return &Buffer{Data: data, Name: path}, nil
}

func loadBytes(data []byte, name string) (*Buffer, error) {
	format := compression.Detect(data)
	if format != compression.None {
		out, err := compression.Decompress(data, format)
		if err != nil {
			return nil, cometerrors.Wrap(err, cometerrors.ErrorTypeSource, "failed to decompress input").
				WithDetail("format", string(format))
		}
		return &Buffer{Data: out, Name: name, pooled: out}, nil
	}
	return &Buffer{Data: data, Name: name}, nil
}

func loadReader(r io.Reader, name string) (*Buffer, error) {
	head := make([]byte, compression.MaxMagicLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, cometerrors.Wrap(err, cometerrors.ErrorTypeSource, "failed to read input stream")
	}

	full := io.MultiReader(bytes.NewReader(head[:n]), r)
	return decompressInto(full, compression.Detect(head[:n]), name)
}

func loadCmd(cmd *exec.Cmd) (*Buffer, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, cometerrors.Wrap(err, cometerrors.ErrorTypeSource, "failed to pipe sub-process output")
	}
	if err := cmd.Start(); err != nil {
		return nil, cometerrors.Wrap(err, cometerrors.ErrorTypeSource, "failed to start sub-process").
			WithDetail("cmd", cmd.String())
	}

	buf, err := loadReader(stdout, cmd.String())
	waitErr := cmd.Wait()
	if err != nil {
		return nil, err
	}
	if waitErr != nil {
		buf.Close()
		return nil, cometerrors.Wrap(waitErr, cometerrors.ErrorTypeSource, "sub-process failed").
			WithDetail("cmd", cmd.String())
	}
	return buf, nil
}

// decompressInto drains r (through format decompression) into a pooled
// buffer.
func decompressInto(r io.Reader, format compression.Format, name string) (*Buffer, error) {
	dec, err := compression.NewReader(r, format)
	if err != nil {
		return nil, cometerrors.Wrap(err, cometerrors.ErrorTypeSource, "failed to open decompressor").
			WithDetail("format", string(format))
	}

	out := bytes.NewBuffer(pool.GlobalBufferPool.Get(1 << 20))
	if _, err := io.Copy(out, dec); err != nil {
		return nil, cometerrors.Wrap(err, cometerrors.ErrorTypeSource, "failed to read input").
			WithDetail("source", name)
	}
	data := out.Bytes()
	return &Buffer{Data: data, Name: name, pooled: data}, nil
}

// shouldMmap decides whether to map a path input. Auto mode maps when the
// file exceeds a quarter of available memory, so small files take the cheap
// read path and huge ones avoid doubling resident memory.
func shouldMmap(path string, mode MmapMode) bool {
	switch mode {
	case MmapOn:
		return true
	case MmapOff:
		return false
	}

	st, err := os.Stat(path)
	if err != nil {
		return false
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return st.Size() > 1<<30
	}
	return uint64(st.Size()) > vm.Available/4
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func stripBOM(b *Buffer) {
	if bytes.HasPrefix(b.Data[b.Start:b.End], utf8BOM) {
		b.Start += len(utf8BOM)
	}
}

// trimFooter returns the end offset that excludes the last k rows. The scan
// walks forward tracking quote state so newlines inside quoted fields do not
// count as row boundaries.
func trimFooter(data []byte, start, end, k int, opts *Options) int {
	openQ, closeQ, escape := opts.OpenQuote, opts.CloseQuote, opts.Escape
	if openQ == 0 {
		openQ, closeQ, escape = '"', '"', '"'
	}

	starts := make([]int, 0, k+1)
	rowStart := start
	inQuote := false

	push := func(off int) {
		if len(starts) == k+1 {
			copy(starts, starts[1:])
			starts = starts[:k]
		}
		starts = append(starts, off)
	}
	push(rowStart)

	for i := start; i < end; i++ {
		c := data[i]
		if inQuote {
			if c == escape && escape == closeQ {
				if i+1 < end && data[i+1] == closeQ {
					i++
					continue
				}
				inQuote = false
			} else if c == escape {
				i++
			} else if c == closeQ {
				inQuote = false
			}
			continue
		}
		switch c {
		case openQ:
			inQuote = true
		case '\n':
			if i+1 < end {
				push(i + 1)
			}
		}
	}

	if len(starts) <= k {
		return start
	}
	return starts[len(starts)-k]
}
